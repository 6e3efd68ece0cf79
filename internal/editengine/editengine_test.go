package editengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/lspsymbols/internal/symtree"
)

func hashOf(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fakeServer records DidChange calls and returns a canned rename edit.
type fakeServer struct {
	didChangePaths []string
	renameEdit     symtree.WorkspaceEdit
	renameErr      error
}

func (f *fakeServer) DidChange(_ context.Context, path string) error {
	f.didChangePaths = append(f.didChangePaths, path)
	return nil
}

func (f *fakeServer) RenameSymbol(_ context.Context, _ string, _ symtree.Position, _ string) (symtree.WorkspaceEdit, error) {
	return f.renameEdit, f.renameErr
}

type fakeServers struct{ server *fakeServer }

func (f fakeServers) ServerFor(context.Context, string) (Server, error) { return f.server, nil }

type fakeCache struct{ evicted []string }

func (c *fakeCache) Evict(path string) error {
	c.evicted = append(c.evicted, path)
	return nil
}

func symbolAt(tree *symtree.Tree, rng, selection symtree.Range) symtree.Symbol {
	idx := tree.AddNode(symtree.Node{Name: "add", Kind: symtree.KindFunction, Range: rng, SelectionRange: selection}, -1)
	return symtree.Symbol{Tree: tree, Index: idx}
}

func pos(line, char int) symtree.Position { return symtree.Position{Line: line, Character: char} }

func TestReplaceBodyRewritesRangeAndResyncs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	content := "def add(a, b):\n    return a + b\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tree := symtree.NewTree(path)
	tree.ContentHash = hashOf(t, path)
	sym := symbolAt(tree, symtree.Range{Start: pos(0, 0), End: pos(2, 0)}, symtree.Range{Start: pos(0, 4), End: pos(0, 7)})

	server := &fakeServer{}
	cache := &fakeCache{}
	engine := New(fakeServers{server: server}, cache)

	err := engine.ReplaceBody(context.Background(), sym, "def add(a, b):\n    return a + b + 0\n")
	require.NoError(t, err)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "def add(a, b):\n    return a + b + 0\n", string(out))
	assert.Equal(t, []string{path}, server.didChangePaths)
	assert.Equal(t, []string{path}, cache.evicted)
}

func TestReplaceBodyIsIdempotentOnOwnBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	content := "def add(a, b):\n    return a + b\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tree := symtree.NewTree(path)
	tree.ContentHash = hashOf(t, path)
	sym := symbolAt(tree, symtree.Range{Start: pos(0, 0), End: pos(2, 0)}, symtree.Range{Start: pos(0, 4), End: pos(0, 7)})

	engine := New(fakeServers{server: &fakeServer{}}, &fakeCache{})
	require.NoError(t, engine.ReplaceBody(context.Background(), sym, content))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(out))
}

func TestReplaceBodyFailsWithEditConflictOnStaleHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	original := "def add(a, b):\n    return a + b\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	tree := symtree.NewTree(path)
	tree.ContentHash = hashOf(t, path)
	sym := symbolAt(tree, symtree.Range{Start: pos(0, 0), End: pos(1, 17)}, symtree.Range{Start: pos(0, 4), End: pos(0, 7)})

	// mutate the file after the symbol was resolved.
	require.NoError(t, os.WriteFile(path, []byte("def add(a, b):\n    return a - b\n"), 0o644))

	server := &fakeServer{}
	engine := New(fakeServers{server: server}, &fakeCache{})

	err := engine.ReplaceBody(context.Background(), sym, "def add(a, b):\n    return 0\n")
	require.ErrorIs(t, err, ErrEditConflict)
	assert.Empty(t, server.didChangePaths)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "def add(a, b):\n    return a - b\n", string(out))
}

func TestInsertBeforeAndAfterDoNotReflow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	content := "class Calc:\n    def add(self):\n        pass\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tree := symtree.NewTree(path)
	tree.ContentHash = hashOf(t, path)
	sym := symbolAt(tree, symtree.Range{Start: pos(1, 4), End: pos(2, 12)}, symtree.Range{Start: pos(1, 8), End: pos(1, 11)})

	engine := New(fakeServers{server: &fakeServer{}}, &fakeCache{})
	require.NoError(t, engine.InsertBefore(context.Background(), sym, "@decorator\n    "))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "class Calc:\n    @decorator\n    def add(self):\n        pass\n", string(out))

	tree = symtree.NewTree(path)
	tree.ContentHash = hashOf(t, path)
	sym = symbolAt(tree, symtree.Range{Start: pos(2, 4), End: pos(3, 12)}, symtree.Range{Start: pos(2, 8), End: pos(2, 11)})
	require.NoError(t, engine.InsertAfter(context.Background(), sym, "\n\n    def sub(self):\n        pass"))

	out, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "class Calc:\n    @decorator\n    def add(self):\n        pass\n\n    def sub(self):\n        pass\n", string(out))
}

func TestRenameAppliesEditsPerFileInReverseOrder(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(pathA, []byte("old = 1\nprint(old)\n"), 0o644))

	tree := symtree.NewTree(pathA)
	sym := symbolAt(tree, symtree.Range{Start: pos(0, 0), End: pos(0, 3)}, symtree.Range{Start: pos(0, 0), End: pos(0, 3)})

	edit := symtree.WorkspaceEdit{
		pathA: {
			{Range: symtree.Range{Start: pos(0, 0), End: pos(0, 3)}, NewText: "new"},
			{Range: symtree.Range{Start: pos(1, 6), End: pos(1, 9)}, NewText: "new"},
		},
	}
	server := &fakeServer{renameEdit: edit}
	engine := New(fakeServers{server: server}, &fakeCache{})

	result, err := engine.Rename(context.Background(), sym, "new")
	require.NoError(t, err)
	assert.Equal(t, []string{pathA}, result.Applied)
	assert.Empty(t, result.Pending)

	out, err := os.ReadFile(pathA)
	require.NoError(t, err)
	assert.Equal(t, "new = 1\nprint(new)\n", string(out))
}

func TestRenameStopsAtFirstFailureAndReportsPending(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.py")
	pathMissing := filepath.Join(dir, "missing.py")
	require.NoError(t, os.WriteFile(pathA, []byte("old = 1\n"), 0o644))

	tree := symtree.NewTree(pathA)
	sym := symbolAt(tree, symtree.Range{Start: pos(0, 0), End: pos(0, 3)}, symtree.Range{Start: pos(0, 0), End: pos(0, 3)})

	edit := symtree.WorkspaceEdit{
		pathA:       {{Range: symtree.Range{Start: pos(0, 0), End: pos(0, 3)}, NewText: "new"}},
		pathMissing: {{Range: symtree.Range{Start: pos(0, 0), End: pos(0, 3)}, NewText: "new"}},
	}
	server := &fakeServer{renameEdit: edit}
	engine := New(fakeServers{server: server}, &fakeCache{})

	result, err := engine.Rename(context.Background(), sym, "new")
	require.Error(t, err)
	assert.Equal(t, []string{pathA}, result.Applied)
	assert.Equal(t, []string{pathMissing}, result.Pending)
}
