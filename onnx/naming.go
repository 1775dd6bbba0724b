package onnx

import "fmt"

// NamingStrategy assigns the identifier shared by a node and its primary
// output. The hint is the logical identity of the operator being translated
// ("dense", "conv", ...). A strategy must never return the same name twice
// within one export; the builder treats a repeated name as an invariant
// violation.
type NamingStrategy func(hint string) string

// CounterNaming is the default strategy: "<hint>_<n>" with a single monotonic
// counter for the whole export.
func CounterNaming() NamingStrategy {
	var n int
	return func(hint string) string {
		if hint == "" {
			hint = "op"
		}
		name := fmt.Sprintf("%s_%d", hint, n)
		n++
		return name
	}
}

// NameByHint uses the hint verbatim and falls back to a counter suffix only
// when the hint is absent or has already been handed out.
func NameByHint() NamingStrategy {
	used := make(map[string]int)
	return func(hint string) string {
		if hint == "" {
			hint = "op"
		}
		n := used[hint]
		used[hint] = n + 1
		if n == 0 {
			return hint
		}
		return fmt.Sprintf("%s_%d", hint, n)
	}
}

// scopedTo derives a strategy for sub-operators emitted as part of a
// composite translation: names are prefixed with the enclosing node's name so
// the lineage stays readable. The caller restores the outer strategy on the
// probe it returns.
func scopedTo(parent string) NamingStrategy {
	used := make(map[string]int)
	return func(hint string) string {
		if hint == "" {
			hint = "op"
		}
		name := parent + "_" + hint
		n := used[name]
		used[name] = n + 1
		if n == 0 {
			return name
		}
		return fmt.Sprintf("%s_%d", name, n)
	}
}
