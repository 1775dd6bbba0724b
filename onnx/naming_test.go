package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterNaming(t *testing.T) {
	s := CounterNaming()
	assert.Equal(t, "dense_0", s("dense"))
	assert.Equal(t, "conv_1", s("conv"))
	assert.Equal(t, "dense_2", s("dense"))
	assert.Equal(t, "op_3", s(""))
}

func TestNameByHint(t *testing.T) {
	s := NameByHint()
	assert.Equal(t, "dense", s("dense"))
	assert.Equal(t, "dense_1", s("dense"))
	assert.Equal(t, "dense_2", s("dense"))
	assert.Equal(t, "conv", s("conv"))
	assert.Equal(t, "op", s(""))
}

func TestScopedTo(t *testing.T) {
	s := scopedTo("conv_0")
	assert.Equal(t, "conv_0_relu", s("relu"))
	assert.Equal(t, "conv_0_relu_1", s("relu"))
	assert.Equal(t, "conv_0_squeeze", s("squeeze"))
}

func TestStrategiesAreIndependent(t *testing.T) {
	a, b := CounterNaming(), CounterNaming()
	assert.Equal(t, "x_0", a("x"))
	assert.Equal(t, "x_0", b("x"))
}
