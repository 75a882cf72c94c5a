package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectSuperNames flattens a super-block tree's leaf block names in
// visitation order, recording which names came from a nested super-block.
func collectSuperNames(sb *SuperBlock) (flat []string, nested []string) {
	for _, elem := range sb.Blocks {
		switch e := elem.(type) {
		case *Block:
			flat = append(flat, e.Name)
		case *SuperBlock:
			f, n := collectSuperNames(e)
			flat = append(flat, f...)
			nested = append(nested, n...)
			nested = append(nested, f...)
		}
	}
	return flat, nested
}

func TestGatherSuperStraightLineFunction(t *testing.T) {
	prog := lowerSrc(t, `
	int pick(int a, int b) {
		if (a > b) {
			return a;
		} else {
			return b;
		}
	}`)
	fn := findFunc(prog, "pick")
	require.NotNil(t, fn)

	GatherSuper(fn)
	require.NotNil(t, fn.Super)

	flat, nested := collectSuperNames(fn.Super)
	assert.Empty(t, nested, "a function with no loop must produce a single flat super-block")
	assert.Contains(t, flat, "%entry")
	assert.NotContains(t, flat, "%labelexit_pick", "both arms return, so the exit block is unreachable from %entry and is not gathered")
}

func TestGatherSuperNestsLoopBody(t *testing.T) {
	prog := lowerSrc(t, `
	int loop(int n) {
		while (n > 0) {
			n = n - 1;
		}
		return n;
	}`)
	fn := findFunc(prog, "loop")
	require.NotNil(t, fn)

	GatherSuper(fn)
	require.NotNil(t, fn.Super)

	var sawNested bool
	for _, elem := range fn.Super.Blocks {
		if _, ok := elem.(*SuperBlock); ok {
			sawNested = true
		}
	}
	assert.True(t, sawNested, "the while loop's body must be gathered into its own nested super-block")
}

func TestGatherSuperNeverVisitsABlockTwice(t *testing.T) {
	prog := lowerSrc(t, `
	int nested(int n) {
		while (n > 0) {
			while (n > 5) {
				n = n - 2;
			}
			n = n - 1;
		}
		return n;
	}`)
	fn := findFunc(prog, "nested")
	require.NotNil(t, fn)

	GatherSuper(fn)

	var visit func(sb *SuperBlock, seen map[string]bool)
	visit = func(sb *SuperBlock, seen map[string]bool) {
		for _, elem := range sb.Blocks {
			switch e := elem.(type) {
			case *Block:
				assert.False(t, seen[e.Name], "block %s must not be gathered twice", e.Name)
				seen[e.Name] = true
			case *SuperBlock:
				visit(e, seen)
			}
		}
	}
	seen := map[string]bool{}
	visit(fn.Super, seen)

	assert.True(t, seen["%entry"])
	assert.LessOrEqual(t, len(seen), len(fn.Blocks), "gathering must not invent blocks beyond what lowering produced")
}
