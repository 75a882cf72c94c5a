package riscv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vslc/src/ir"
)

func lastOp(p *Program) Text {
	for i := len(p.Text) - 1; i >= 0; i-- {
		if !p.Text[i].IsLabel() {
			return p.Text[i]
		}
	}
	return nil
}

func TestEmitBinaryImmediateAddPeephole(t *testing.T) {
	c, p := newTestController(nil)
	c.Alloc("@a_0", p, false, 4)
	c.Alloc("%temp_add_0", p, false, 4)

	v := ir.NewValue("add", "%temp_add_0", "@a_0", "5")
	emitBinary(p, c, v)

	op := lastOp(p)
	require.NotEmpty(t, op)
	assert.Equal(t, "addi", op[0], "adding a small immediate must fold into addi rather than li+add")
}

func TestEmitBinaryPowerOfTwoMultiplyUsesShift(t *testing.T) {
	c, p := newTestController(nil)
	c.Alloc("@a_0", p, false, 4)
	c.Alloc("%temp_mul_0", p, false, 4)

	v := ir.NewValue("mul", "%temp_mul_0", "@a_0", "8")
	emitBinary(p, c, v)

	op := lastOp(p)
	require.NotEmpty(t, op)
	assert.Equal(t, "sll", op[0], "multiplying by a power of two must lower to a left shift")
}

func TestEmitBinaryPowerOfTwoDivideUsesArithmeticShift(t *testing.T) {
	c, p := newTestController(nil)
	c.Alloc("@a_0", p, false, 4)
	c.Alloc("%temp_div_0", p, false, 4)

	v := ir.NewValue("div", "%temp_div_0", "@a_0", "4")
	emitBinary(p, c, v)

	op := lastOp(p)
	require.NotEmpty(t, op)
	assert.Equal(t, "sra", op[0], "dividing by a power of two must lower to a right shift")
}

func TestEmitBinaryEqualsZeroUsesSeqz(t *testing.T) {
	c, p := newTestController(nil)
	c.Alloc("@a_0", p, false, 4)
	c.Alloc("%temp_eq_0", p, false, 4)

	v := ir.NewValue("eq", "%temp_eq_0", "@a_0", "0")
	emitBinary(p, c, v)

	op := lastOp(p)
	require.NotEmpty(t, op)
	assert.Equal(t, "seqz", op[0])
}

func TestEmitBinaryModLowersToRem(t *testing.T) {
	c, p := newTestController(nil)
	c.Alloc("@a_0", p, false, 4)
	c.Alloc("@b_0", p, false, 4)
	c.Alloc("%temp_mod_0", p, false, 4)

	v := ir.NewValue("mod", "%temp_mod_0", "@a_0", "@b_0")
	emitBinary(p, c, v)

	op := lastOp(p)
	require.NotEmpty(t, op)
	assert.Equal(t, "rem", op[0])
}

func TestSafeMemUsesDirectOffsetWithinImmediateRange(t *testing.T) {
	p := &Program{}
	SafeMem("lw", "a0", 100, p, "")
	require.Len(t, p.Text, 1)
	assert.Equal(t, Text{"lw", "a0", "-100(fp)"}, p.Text[0])
}

func TestSafeMemRoutesThroughScratchRegisterBeyondImmediateRange(t *testing.T) {
	p := &Program{}
	SafeMem("lw", "a0", IMM12Max+100, p, "")
	require.Len(t, p.Text, 3)
	assert.Equal(t, "li", p.Text[0][0])
	assert.Equal(t, "sub", p.Text[1][0])
	assert.Equal(t, Text{"lw", "a0", "0(t5)"}, p.Text[2])
}
