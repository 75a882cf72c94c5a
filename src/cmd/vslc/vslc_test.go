package main

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vslc/src/backend/riscv"
	"vslc/src/util"
)

// runToFile drives one full compiler invocation the way main does: it owns
// the ListenWrite/Close lifecycle that util.NewWriter depends on, and
// returns the bytes written to the resolved output path.
func runToFile(t *testing.T, opt util.Options) string {
	t.Helper()

	wg := sync.WaitGroup{}
	f, err := os.OpenFile(opt.Out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()

	util.ListenWrite(opt, f, &wg)
	err = run(opt)
	require.NoError(t, err)
	util.Close()
	wg.Wait()

	b, err := os.ReadFile(opt.Out)
	require.NoError(t, err)
	return string(b)
}

func TestRunKoopaModeEmitsIRText(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "add.vsl")
	require.NoError(t, os.WriteFile(src, []byte(`int add(int a, int b) { return a + b; }`), 0644))

	out := filepath.Join(dir, "add.koopa")
	got := runToFile(t, util.Options{Mode: util.ModeKoopa, Src: src, Out: out})

	assert.Contains(t, got, "fun @add")
	assert.Contains(t, got, "add")
}

func TestRunRiscvModeEmitsAssembly(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "add.vsl")
	require.NoError(t, os.WriteFile(src, []byte(`int add(int a, int b) { return a + b; }`), 0644))

	out := filepath.Join(dir, "add.s")
	got := runToFile(t, util.Options{Mode: util.ModeRiscv, Src: src, Out: out})

	assert.Contains(t, got, "func_add:", "a non-main function's label is prefixed to avoid colliding with libc's symbol table")
	assert.NotContains(t, got, "entry:", "a function's entry block must fall through without its own label")
}

func TestRunPerfModeStillEmitsAssembly(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "loop.vsl")
	require.NoError(t, os.WriteFile(src, []byte(`
	int loop(int n) {
		while (n > 0) {
			n = n - 1;
		}
		return n;
	}`), 0644))

	out := filepath.Join(dir, "loop.s")
	got := runToFile(t, util.Options{Mode: util.ModePerf, Src: src, Out: out})

	assert.Contains(t, got, "func_loop:")
}

func TestRunReportsParseError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.vsl")
	require.NoError(t, os.WriteFile(src, []byte(`int main( { }`), 0644))

	wg := sync.WaitGroup{}
	out := filepath.Join(dir, "bad.s")
	f, err := os.OpenFile(out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()

	opt := util.Options{Mode: util.ModeRiscv, Src: src, Out: out}
	util.ListenWrite(opt, f, &wg)
	err = run(opt)
	util.Close()
	wg.Wait()

	assert.Error(t, err)
}

func TestWriteAssemblySkipsEntryLabelAndJoinsOperands(t *testing.T) {
	p := &riscv.Program{}
	p.Label("add")
	p.Label("entry")
	p.Emit("add", "a0", "a1", "a2")
	p.Label("label_if_then_0")

	dir := t.TempDir()
	out := filepath.Join(dir, "snippet.s")
	f, err := os.OpenFile(out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()

	wg := sync.WaitGroup{}
	util.ListenWrite(util.Options{}, f, &wg)
	w := util.NewWriter()
	writeAssembly(&w, p)
	w.Close()
	util.Close()
	wg.Wait()

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(got), "add:")
	assert.Contains(t, string(got), "\tadd\ta0, a1, a2\n")
	assert.NotContains(t, string(got), "entry:", "the entry block falls through and must not be labeled")
	assert.Contains(t, string(got), "label_if_then_0:")
}
