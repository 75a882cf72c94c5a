package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValueBinaryOp(t *testing.T) {
	v := NewValue("add", "%temp_add_0", "%x", "1")
	assert.Equal(t, "%temp_add_0 = add %x, 1", formatValue(v))
}

func TestFormatValueLoadAndAlloc(t *testing.T) {
	assert.Equal(t, "%temp_load_0 = load @x_0", formatValue(NewValue("load", "%temp_load_0", "@x_0")))
	assert.Equal(t, "@x_0 = alloc i32", formatValue(NewValue("alloc", "@x_0", "i32")))
}

func TestFormatValueGlobalAlloc(t *testing.T) {
	v := NewValue("global alloc", "@limit_0", "i32", "10")
	assert.Equal(t, "global @limit_0 = alloc i32, 10", formatValue(v))
}

func TestFormatValueCalls(t *testing.T) {
	intCall := NewValue("call_int", "add", "%temp_add_0", "1", "2")
	assert.Equal(t, "%temp_add_0 = call @add(1, 2)", formatValue(intCall))

	voidCall := NewValue("call_void", "putint", "%x")
	assert.Equal(t, "call @putint(%x)", formatValue(voidCall))
}

func TestFormatValueGetPtr(t *testing.T) {
	v := NewValue("getelemptr", "%temp_atptr_0", "@a_0", "3")
	assert.Equal(t, "%temp_atptr_0 = getelemptr @a_0, 3", formatValue(v))
}

func TestFormatValueBranchAndJump(t *testing.T) {
	br := NewValue("br", "%temp_gt_0", "%label_if_then_0", "%label_if_next_0")
	assert.Equal(t, "br %temp_gt_0, %label_if_then_0, %label_if_next_0", formatValue(br))

	jump := NewValue("jump", "%label_while_cond_0")
	assert.Equal(t, "jump %label_while_cond_0", formatValue(jump))
}

func TestFormatValueDiscardTagAppendedAfterOperands(t *testing.T) {
	v := NewValue("alloc", "@x_0", "i32", "//!", "disgard")
	assert.Equal(t, "@x_0 = alloc i32 //! disgard", formatValue(v))
}

func TestFormatValueRetWithAndWithoutOperand(t *testing.T) {
	assert.Equal(t, "ret", formatValue(NewValue("ret")))
	assert.Equal(t, "ret 0", formatValue(NewValue("ret", "0")))
}
