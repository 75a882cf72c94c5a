package riscv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(args []string) (*Controller, *Program) {
	c := NewController()
	c.SetGlobal(&GlobalInfo{GlobalVar: map[string]string{}, FuncName: map[string]string{}})
	info := &FuncInfo{}
	c.SetFunc(info, args)
	info.InitSaveReg()
	return c, &Program{}
}

func TestControllerBindsScalarArgsToArgRegisters(t *testing.T) {
	c, _ := newTestController([]string{"%arg_x_0: i32", "%arg_y_0: i32"})

	reg, ok := c.getRegPos("@x_0")
	require.True(t, ok)
	assert.Equal(t, "a0", RegNames[reg])

	reg, ok = c.getRegPos("@y_0")
	require.True(t, ok)
	assert.Equal(t, "a1", RegNames[reg])
}

func TestControllerAllocReservesStackSlotOnce(t *testing.T) {
	c, p := newTestController(nil)
	before := c.fn.MemNeed()

	c.Alloc("@a_0", p, false, 4)
	afterFirst := c.fn.MemNeed()
	assert.Greater(t, afterFirst, before)

	c.Alloc("@a_0", p, false, 4)
	assert.Equal(t, afterFirst, c.fn.MemNeed(), "allocating the same name twice must not grow the frame again")
}

func TestControllerLoadSpillsLeastRecentlyUsedWhenFull(t *testing.T) {
	c, p := newTestController(nil)

	names := make([]string, FreeRegNum+1)
	for i := range names {
		names[i] = "@v_" + string(rune('a'+i))
		c.Alloc(names[i], p, false, 4)
		c.Load(names[i], p, true, 0)
	}

	// The first-allocated name should have been evicted to make room once
	// every free register filled up.
	_, stillResident := c.getRegPos(names[0])
	assert.False(t, stillResident, "the least-recently-used binding must be spilled once the free file is exhausted")

	_, lastResident := c.getRegPos(names[len(names)-1])
	assert.True(t, lastResident, "the most recently loaded name must still be resident")
}

func TestControllerLoadWithSpecifyForcesExactRegister(t *testing.T) {
	c, p := newTestController(nil)
	c.Alloc("@a_0", p, false, 4)

	reg := c.Load("@a_0", p, true, A0Reg)
	assert.Equal(t, A0Reg, reg)

	pos, ok := c.getRegPos("@a_0")
	require.True(t, ok)
	assert.Equal(t, A0Reg, pos)
}

func TestControllerTryInvalidateDropsRegisterBinding(t *testing.T) {
	c, p := newTestController(nil)
	c.Alloc("%temp_add_0", p, false, 4)
	c.Load("%temp_add_0", p, true, 0)

	_, ok := c.getRegPos("%temp_add_0")
	require.True(t, ok)

	c.TryInvalidate("%temp_add_0")
	_, ok = c.getRegPos("%temp_add_0")
	assert.False(t, ok)
}

func TestControllerTryInvalidateKeepsAllocVarBinding(t *testing.T) {
	c, p := newTestController(nil)
	c.Alloc("@a_0", p, false, 4)
	c.Load("@a_0", p, true, 0)

	c.TryInvalidate("@a_0")
	_, ok := c.getRegPos("@a_0")
	assert.True(t, ok, "a stack-resident name's register cache must survive TryInvalidate")
}
