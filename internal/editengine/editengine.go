// Package editengine implements C7: symbol-scoped edits (replace-body,
// insert-before/after, rename) with atomic single-file writes, LS resync,
// and symbol-cache invalidation.
package editengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/lexcodex/lspsymbols/internal/manager"
	"github.com/lexcodex/lspsymbols/internal/symtree"
)

// ErrEditConflict is returned when the file's on-disk content hash no
// longer matches the hash the symbol was resolved against — spec.md's
// S4 stale-symbol scenario. The file is left untouched.
var ErrEditConflict = errors.New("editengine: file changed since symbol was resolved")

// ErrInvalidRange is returned when a symbol's range no longer fits the
// file it claims to belong to (e.g. a position past end-of-file).
var ErrInvalidRange = errors.New("editengine: symbol range invalid for file content")

// Server is the subset of lsproc.LanguageServer that EditEngine needs to
// keep an LS's view of a file in sync after a write, and to ask for a
// rename's WorkspaceEdit. Declared here, at the point of use, so
// EditEngine stays testable against a fake rather than a subprocess.
type Server interface {
	DidChange(ctx context.Context, path string) error
	RenameSymbol(ctx context.Context, path string, pos symtree.Position, newName string) (symtree.WorkspaceEdit, error)
}

// Servers resolves a file to the Server owning its language.
type Servers interface {
	ServerFor(ctx context.Context, path string) (Server, error)
}

// CacheInvalidator is the subset of symbolcache.Cache that EditEngine
// needs: dropping every cached tree for a file once its bytes change.
type CacheInvalidator interface {
	Evict(filePath string) error
}

// RenameResult reports which files a cross-file rename actually touched
// before either completing or hitting a failure. Per spec.md's
// Non-goals, a partial rename is not rolled back — RenameResult is how
// the caller learns what already happened.
type RenameResult struct {
	Applied []string
	Pending []string
}

// EditEngine applies symbol-scoped mutations to source files, keeping
// the owning language server and the on-disk symbol cache consistent
// with the new bytes.
type EditEngine struct {
	servers Servers
	cache   CacheInvalidator

	fileLocks sync.Map // path (string) -> *sync.Mutex
}

// New returns an EditEngine. cache may be nil, in which case cache
// invalidation is a no-op (mirroring lsproc's nil-cache contract).
func New(servers Servers, cache CacheInvalidator) *EditEngine {
	return &EditEngine{servers: servers, cache: cache}
}

// NewWithManager returns an EditEngine backed directly by mgr, the same
// managerAdapter shape internal/retriever.New uses.
func NewWithManager(mgr *manager.Manager, cache CacheInvalidator) *EditEngine {
	return New(managerAdapter{mgr}, cache)
}

// managerAdapter narrows *manager.Manager to the Servers interface; the
// implicit *lsproc.LanguageServer -> Server conversion on return is valid
// because LanguageServer's method set already satisfies Server.
type managerAdapter struct{ m *manager.Manager }

func (a managerAdapter) ServerFor(ctx context.Context, path string) (Server, error) {
	return a.m.ServerFor(ctx, path)
}

// ReplaceBody atomically replaces the byte range [symbol.Range.Start,
// symbol.Range.End) in symbol's file with newText, written verbatim —
// the caller owns leading indentation. Fails with ErrEditConflict,
// without touching the file, if the on-disk content hash no longer
// matches the hash symbol was resolved against.
func (e *EditEngine) ReplaceBody(ctx context.Context, symbol symtree.Symbol, newText string) error {
	if !symbol.Valid() {
		return fmt.Errorf("editengine: invalid symbol")
	}
	rng := symbol.Node().Range
	return e.applyToFile(ctx, symbol.Tree, func(content []byte) ([]byte, error) {
		start, end, err := rangeToOffsets(content, rng)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(content)-(end-start)+len(newText))
		out = append(out, content[:start]...)
		out = append(out, newText...)
		out = append(out, content[end:]...)
		return out, nil
	})
}

// InsertBefore inserts text at symbol's range start with no reflow of
// surrounding content.
func (e *EditEngine) InsertBefore(ctx context.Context, symbol symtree.Symbol, text string) error {
	return e.insertAt(ctx, symbol, symbol.Node().Range.Start, text)
}

// InsertAfter inserts text at symbol's range end with no reflow of
// surrounding content.
func (e *EditEngine) InsertAfter(ctx context.Context, symbol symtree.Symbol, text string) error {
	return e.insertAt(ctx, symbol, symbol.Node().Range.End, text)
}

func (e *EditEngine) insertAt(ctx context.Context, symbol symtree.Symbol, pos symtree.Position, text string) error {
	if !symbol.Valid() {
		return fmt.Errorf("editengine: invalid symbol")
	}
	return e.applyToFile(ctx, symbol.Tree, func(content []byte) ([]byte, error) {
		offset, err := positionToOffset(content, pos)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(content)+len(text))
		out = append(out, content[:offset]...)
		out = append(out, text...)
		out = append(out, content[offset:]...)
		return out, nil
	})
}

// Rename asks the owning LS for a WorkspaceEdit renaming symbol to
// newName and applies it file by file in lexical path order, each
// file's own edits applied in reverse document order so an earlier
// edit never shifts a later one's range. It halts on the first file
// that fails to apply and reports what was already applied; per
// spec.md's Non-goals, files applied before the failure are not rolled
// back.
func (e *EditEngine) Rename(ctx context.Context, symbol symtree.Symbol, newName string) (RenameResult, error) {
	if !symbol.Valid() {
		return RenameResult{}, fmt.Errorf("editengine: invalid symbol")
	}
	path := symbol.Tree.FilePath
	server, err := e.servers.ServerFor(ctx, path)
	if err != nil {
		return RenameResult{}, err
	}
	edit, err := server.RenameSymbol(ctx, path, symbol.Node().SelectionRange.Start, newName)
	if err != nil {
		return RenameResult{}, err
	}

	files := make([]string, 0, len(edit))
	for f := range edit {
		files = append(files, f)
	}
	sort.Strings(files)

	result := RenameResult{Pending: append([]string(nil), files...)}
	for i, f := range files {
		if err := e.applyEditsToPath(ctx, f, edit[f]); err != nil {
			result.Pending = files[i:]
			return result, fmt.Errorf("editengine: rename %s: %w", f, err)
		}
		result.Applied = append(result.Applied, f)
		result.Pending = files[i+1:]
	}
	return result, nil
}

// lockFor returns the mutex guarding path's compound
// read-file/compute-edit/write-file/didChange sequence, per spec.md §5:
// callers sharing one file are serialized so an interleaved writer can
// never leave the LS holding a stale open version.
func (e *EditEngine) lockFor(path string) *sync.Mutex {
	lock, _ := e.fileLocks.LoadOrStore(path, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// applyToFile reads tree's file, transforms its bytes with mutate,
// writes the result atomically, resyncs the owning LS, and invalidates
// the cache — the shared tail of ReplaceBody/InsertBefore/InsertAfter.
// mutate receives the file's current bytes and must not retain them.
func (e *EditEngine) applyToFile(ctx context.Context, tree *symtree.Tree, mutate func([]byte) ([]byte, error)) error {
	path := tree.FilePath
	lock := e.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("editengine: read %s: %w", path, err)
	}
	if tree.ContentHash != "" && contentHash(content) != tree.ContentHash {
		return fmt.Errorf("%w: %s", ErrEditConflict, path)
	}

	newContent, err := mutate(content)
	if err != nil {
		return err
	}
	if err := atomicWrite(path, newContent); err != nil {
		return err
	}
	return e.resync(ctx, path)
}

// applyEditsToPath applies a WorkspaceEdit's edits for one file, in
// reverse document order, without an EditConflict check: a rename's
// WorkspaceEdit is computed by the LS itself against its own current
// view of every touched file, not against a single previously-resolved
// symbol, so there is no prior hash to compare against.
func (e *EditEngine) applyEditsToPath(ctx context.Context, path string, edits []symtree.TextEdit) error {
	lock := e.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("editengine: read %s: %w", path, err)
	}

	ordered := append([]symtree.TextEdit(nil), edits...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[j].Range.Start.Less(ordered[i].Range.Start)
	})

	for _, edit := range ordered {
		start, end, err := rangeToOffsets(content, edit.Range)
		if err != nil {
			return err
		}
		out := make([]byte, 0, len(content)-(end-start)+len(edit.NewText))
		out = append(out, content[:start]...)
		out = append(out, edit.NewText...)
		out = append(out, content[end:]...)
		content = out
	}

	if err := atomicWrite(path, content); err != nil {
		return err
	}
	return e.resync(ctx, path)
}

func (e *EditEngine) resync(ctx context.Context, path string) error {
	if e.cache != nil {
		if err := e.cache.Evict(path); err != nil {
			return fmt.Errorf("editengine: evict cache for %s: %w", path, err)
		}
	}
	server, err := e.servers.ServerFor(ctx, path)
	if err != nil {
		return err
	}
	return server.DidChange(ctx, path)
}

// atomicWrite writes content to path via a same-directory temp file
// plus rename, so a reader never observes a torn write — the same
// pattern symbolcache.Cache.Put uses for its own records.
func atomicWrite(path string, content []byte) error {
	tmp := path + ".editengine.tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("editengine: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("editengine: rename %s: %w", tmp, err)
	}
	return nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// rangeToOffsets converts a Range's Start/End LSP positions to byte
// offsets in content.
func rangeToOffsets(content []byte, r symtree.Range) (start, end int, err error) {
	start, err = positionToOffset(content, r.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err = positionToOffset(content, r.End)
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("%w: end before start", ErrInvalidRange)
	}
	return start, end, nil
}

// positionToOffset converts a zero-based (line, UTF-16 code unit)
// position, the LSP wire format, to a byte offset into content.
func positionToOffset(content []byte, pos symtree.Position) (int, error) {
	line := 0
	lineStart := 0
	for i := 0; i <= len(content); i++ {
		if line == pos.Line {
			lineStart = i
			break
		}
		if i == len(content) {
			return 0, fmt.Errorf("%w: line %d past end of file", ErrInvalidRange, pos.Line)
		}
		if content[i] == '\n' {
			line++
		}
	}

	units := 0
	offset := lineStart
	for offset < len(content) && content[offset] != '\n' {
		if units == pos.Character {
			return offset, nil
		}
		r, size := utf8.DecodeRune(content[offset:])
		units += utf16Width(r)
		offset += size
	}
	if units == pos.Character {
		return offset, nil
	}
	return 0, fmt.Errorf("%w: character %d past end of line %d", ErrInvalidRange, pos.Character, pos.Line)
}

// utf16Width reports how many UTF-16 code units r encodes to: 1 for the
// basic multilingual plane, 2 for anything requiring a surrogate pair.
func utf16Width(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}
