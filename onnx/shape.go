package onnx

import (
	"fmt"
	"strings"
)

// DimUnknown marks a dimension whose value could not be resolved during
// tracing. Unknown dimensions are legal until an operator's shape-transfer
// rule strictly needs a concrete value.
const DimUnknown = -1

// Shape is the shape of a traced value in host axis order. A nil Shape means
// even the rank is unknown (scalars do not occur during tracing).
type Shape []int

// MakeShape builds a shape, validating that every entry is positive or
// DimUnknown.
func MakeShape(dims ...int) Shape {
	for _, d := range dims {
		if d <= 0 && d != DimUnknown {
			panic(fmt.Sprintf("onnx.MakeShape: invalid dimension %d in %v", d, dims))
		}
	}
	return dims
}

// Rank returns the number of axes, 0 when the rank itself is unknown.
func (s Shape) Rank() int { return len(s) }

// Clone returns an independent copy.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// String prints the shape in host axis order, "?" for unknown dimensions.
func (s Shape) String() string {
	if s == nil {
		return "(?)"
	}
	parts := make([]string, len(s))
	for i, d := range s {
		if d == DimUnknown {
			parts[i] = "?"
		} else {
			parts[i] = fmt.Sprintf("%d", d)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
