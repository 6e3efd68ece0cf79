package lsproc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/lexcodex/lspsymbols/internal/symtree"
	"github.com/lexcodex/lspsymbols/internal/transport"
)

// newReadyServer wires a LanguageServer directly onto one end of a
// net.Pipe with the given fake-server handler on the other end, skipping
// Start's subprocess spawn and initialize handshake so tests can exercise
// the post-Ready operations in isolation.
func newReadyServer(t *testing.T, cache SymbolCache, handler jsonrpc2.Handler) *LanguageServer {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close(); _ = server.Close() })

	stream := jsonrpc2.NewBufferedStream(server, jsonrpc2.VSCodeObjectCodec{})
	jsonrpc2.NewConn(context.Background(), stream, handler)

	tr := transport.New(context.Background(), client, nil)
	t.Cleanup(func() { _ = tr.Close() })

	return &LanguageServer{
		cfg:         Config{LanguageID: "go"},
		cache:       cache,
		state:       Ready,
		transport:   tr,
		files:       make(map[string]*FileEntry),
		diagnostics: make(map[string][]Diagnostic),
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRequestDocumentSymbolsHierarchical(t *testing.T) {
	path := writeTempFile(t, "package a\n\nfunc Add() {}\n")

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		switch req.Method {
		case "textDocument/documentSymbol":
			return []protocol.DocumentSymbol{
				{
					Name:           "Add",
					Kind:           protocol.SymbolKindFunction,
					Range:          protocol.Range{Start: protocol.Position{Line: 2, Character: 0}, End: protocol.Position{Line: 2, Character: 14}},
					SelectionRange: protocol.Range{Start: protocol.Position{Line: 2, Character: 5}, End: protocol.Position{Line: 2, Character: 8}},
				},
			}, nil
		default:
			return nil, nil
		}
	})

	ls := newReadyServer(t, nil, handler)
	tree, err := ls.RequestDocumentSymbols(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, "Add", tree.Nodes[0].Name)
	assert.Equal(t, symtree.KindFunction, tree.Nodes[0].Kind)
}

// TestConvertFlatParentsUnderSmallestActualContainer exercises the flat
// SymbolInformation shape (no children, ranges only): D nests inside B
// which nests inside A; C is an unrelated, smaller sibling that does not
// contain D. D must parent under B, the smallest range that actually
// contains it, not under whichever node happens to sort last among
// already-placed candidates.
func TestConvertFlatParentsUnderSmallestActualContainer(t *testing.T) {
	span := func(startLine, endLine int) protocol.Range {
		return protocol.Range{
			Start: protocol.Position{Line: uint32(startLine)},
			End:   protocol.Position{Line: uint32(endLine)},
		}
	}
	syms := []protocol.SymbolInformation{
		{Name: "A", Kind: protocol.SymbolKindClass, Location: protocol.Location{Range: span(0, 100)}},
		{Name: "B", Kind: protocol.SymbolKindClass, Location: protocol.Location{Range: span(10, 50)}},
		{Name: "C", Kind: protocol.SymbolKindClass, Location: protocol.Location{Range: span(60, 75)}},
		{Name: "D", Kind: protocol.SymbolKindMethod, Location: protocol.Location{Range: span(20, 25)}},
	}

	tree := convertFlat("a.go", syms)

	byName := make(map[string]symtree.Node)
	for _, n := range tree.Nodes {
		byName[n.Name] = n
	}
	d, ok := byName["D"]
	require.True(t, ok)
	require.GreaterOrEqual(t, d.ParentIndex, 0)
	assert.Equal(t, "B", tree.Nodes[d.ParentIndex].Name)
}

type fakeCache struct {
	store map[CacheKey]*symtree.Tree
	gets  int
	puts  int
}

func newFakeCache() *fakeCache { return &fakeCache{store: make(map[CacheKey]*symtree.Tree)} }

func (c *fakeCache) Get(key CacheKey) (*symtree.Tree, bool) {
	c.gets++
	t, ok := c.store[key]
	return t, ok
}

func (c *fakeCache) Put(key CacheKey, tree *symtree.Tree) {
	c.puts++
	c.store[key] = tree
}

func TestRequestDocumentSymbolsCacheHitSkipsSecondCall(t *testing.T) {
	path := writeTempFile(t, "package a\n\nfunc Add() {}\n")
	calls := 0

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		if req.Method == "textDocument/documentSymbol" {
			calls++
			return []protocol.DocumentSymbol{{Name: "Add", Kind: protocol.SymbolKindFunction}}, nil
		}
		return nil, nil
	})

	cache := newFakeCache()
	ls := newReadyServer(t, cache, handler)

	_, err := ls.RequestDocumentSymbols(context.Background(), path)
	require.NoError(t, err)
	_, err = ls.RequestDocumentSymbols(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.puts)
}

func TestRenameSymbolNotSupported(t *testing.T) {
	path := writeTempFile(t, "package a\n\nfunc Add() {}\n")

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		if req.Method == "textDocument/rename" {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "no rename provider"}
		}
		return nil, nil
	})

	ls := newReadyServer(t, nil, handler)
	_, err := ls.RenameSymbol(context.Background(), path, symtree.Position{Line: 2, Character: 5}, "Sum")
	assert.ErrorIs(t, err, ErrRenameNotSupported)
}

func TestRenameSymbolInvalidWhenNoChanges(t *testing.T) {
	path := writeTempFile(t, "package a\n\nfunc Add() {}\n")

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		if req.Method == "textDocument/rename" {
			return protocol.WorkspaceEdit{}, nil
		}
		return nil, nil
	})

	ls := newReadyServer(t, nil, handler)
	_, err := ls.RenameSymbol(context.Background(), path, symtree.Position{Line: 2, Character: 5}, "Sum")
	assert.ErrorIs(t, err, ErrRenameInvalid)
}

func TestOperationsRejectedOutsideReady(t *testing.T) {
	ls := New(Config{LanguageID: "go"}, nil, nil)
	_, err := ls.RequestHover(context.Background(), "a.go", symtree.Position{})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestEnsureOpenIssuesDidChangeOnContentDrift(t *testing.T) {
	path := writeTempFile(t, "package a\n")
	var openCount, changeCount int
	done := make(chan struct{}, 4)

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		switch req.Method {
		case "textDocument/didOpen":
			openCount++
			done <- struct{}{}
		case "textDocument/didChange":
			changeCount++
			done <- struct{}{}
		}
		return nil, nil
	})

	ls := newReadyServer(t, nil, handler)

	_, err := ls.ensureOpenAtCurrentContent(context.Background(), path)
	require.NoError(t, err)
	<-done

	require.NoError(t, os.WriteFile(path, []byte("package a\n\nfunc F() {}\n"), 0o644))
	_, err = ls.ensureOpenAtCurrentContent(context.Background(), path)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for didChange")
	}

	assert.Equal(t, 1, openCount)
	assert.Equal(t, 1, changeCount)
}

// TestDidChangeBumpsVersionOnAlreadyOpenFile exercises the exported
// DidChange path (not the internal ensureOpenAtCurrentContent helper): a
// file already tracked as open must be resynced via didChange with an
// incremented version, never re-sent as didOpen.
func TestDidChangeBumpsVersionOnAlreadyOpenFile(t *testing.T) {
	path := writeTempFile(t, "package a\n")
	var opens, changes int
	var lastVersion int32
	done := make(chan struct{}, 4)

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		switch req.Method {
		case "textDocument/didOpen":
			opens++
			done <- struct{}{}
		case "textDocument/didChange":
			changes++
			var p protocol.DidChangeTextDocumentParams
			_ = json.Unmarshal(*req.Params, &p)
			lastVersion = p.TextDocument.Version
			done <- struct{}{}
		}
		return nil, nil
	})

	ls := newReadyServer(t, nil, handler)

	_, err := ls.ensureOpenAtCurrentContent(context.Background(), path)
	require.NoError(t, err)
	<-done

	require.NoError(t, os.WriteFile(path, []byte("package a\n\nfunc F() {}\n"), 0o644))
	require.NoError(t, ls.DidChange(context.Background(), path))
	<-done

	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, changes)
	assert.Equal(t, int32(2), lastVersion)

	ls.filesMu.Lock()
	entry := ls.files[path]
	ls.filesMu.Unlock()
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.OpenVersion)
}

// TestDidChangeOpensNeverOpenedFile exercises DidChange's fallback: a
// path with no tracked FileEntry has no prior version to bump, so
// DidChange opens it instead of sending a bogus didChange.
func TestDidChangeOpensNeverOpenedFile(t *testing.T) {
	path := writeTempFile(t, "package a\n")
	var opens, changes int
	done := make(chan struct{}, 1)

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		switch req.Method {
		case "textDocument/didOpen":
			opens++
			done <- struct{}{}
		case "textDocument/didChange":
			changes++
			done <- struct{}{}
		}
		return nil, nil
	})

	ls := newReadyServer(t, nil, handler)
	require.NoError(t, ls.DidChange(context.Background(), path))
	<-done

	assert.Equal(t, 1, opens)
	assert.Equal(t, 0, changes)
}

// TestDidCloseNotifiesAndRemovesEntry exercises DidClose directly: it
// must send textDocument/didClose and drop the file's tracked FileEntry.
func TestDidCloseNotifiesAndRemovesEntry(t *testing.T) {
	path := writeTempFile(t, "package a\n")
	var closes int
	done := make(chan struct{}, 4)

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		switch req.Method {
		case "textDocument/didOpen":
			done <- struct{}{}
		case "textDocument/didClose":
			closes++
			done <- struct{}{}
		}
		return nil, nil
	})

	ls := newReadyServer(t, nil, handler)

	_, err := ls.ensureOpenAtCurrentContent(context.Background(), path)
	require.NoError(t, err)
	<-done

	require.NoError(t, ls.DidClose(context.Background(), path))
	<-done

	assert.Equal(t, 1, closes)
	ls.filesMu.Lock()
	_, tracked := ls.files[path]
	ls.filesMu.Unlock()
	assert.False(t, tracked)
}

// TestDidCloseOnUntrackedPathIsNoop confirms DidClose skips the
// notification entirely when path was never opened.
func TestDidCloseOnUntrackedPathIsNoop(t *testing.T) {
	called := false
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		if req.Method == "textDocument/didClose" {
			called = true
		}
		return nil, nil
	})

	ls := newReadyServer(t, nil, handler)
	require.NoError(t, ls.DidClose(context.Background(), "never-opened.go"))
	assert.False(t, called)
}
