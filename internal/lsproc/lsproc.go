// Package lsproc wraps one language server subprocess: its lifecycle,
// the initialize handshake, open-file bookkeeping, and the semantic
// requests (document symbols, references, definition, hover, rename)
// normalized onto the shared symtree model.
package lsproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/lexcodex/lspsymbols/internal/symtree"
	"github.com/lexcodex/lspsymbols/internal/transport"
)

// ErrStartupFailed is returned by Start when the subprocess cannot be
// spawned or does not complete the initialize handshake in time.
var ErrStartupFailed = errors.New("lsproc: startup failed")

// ErrServerDown is returned by any operation on a server that has
// transitioned to Failed.
var ErrServerDown = errors.New("lsproc: server down")

// ErrNotReady is returned by any operation other than Start invoked
// outside the Ready state.
var ErrNotReady = errors.New("lsproc: not ready")

// ErrRenameNotSupported is returned when the LS has no rename provider.
var ErrRenameNotSupported = errors.New("lsproc: rename not supported")

// ErrRenameInvalid is returned when the LS rejects the rename position.
var ErrRenameInvalid = errors.New("lsproc: rename invalid")

const startupTimeout = 30 * time.Second
const shutdownTimeout = 5 * time.Second

// State is one point in the per-instance lifecycle:
// Unstarted -> Starting -> Ready -> Stopping -> Stopped | Failed.
type State int

const (
	Unstarted State = iota
	Starting
	Ready
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "Unstarted"
	case Starting:
		return "Starting"
	case Ready:
		return "Ready"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Config describes how to launch one language server. StartupTimeout of
// zero uses the package default (startupTimeout).
type Config struct {
	Command        string
	Args           []string
	LanguageID     string
	StartupTimeout time.Duration
}

// Diagnostic is a normalized textDocument/publishDiagnostics entry.
type Diagnostic struct {
	Severity int
	Message  string
	Source   string
	Line     int
}

// FileEntry tracks one file's open state against a running LS.
type FileEntry struct {
	Path        string
	URI         string
	OpenVersion int
	ContentHash string
}

// CacheKey identifies one SymbolCache record.
type CacheKey struct {
	FilePath    string
	ContentHash string
	LSID        string
}

// SymbolCache is the subset of C3's contract that LanguageServer consults;
// defined here at the point of use so lsproc does not import symbolcache
// directly. A nil SymbolCache disables caching without changing behavior,
// matching the "loss of the cache directory must not change observable
// behavior" contract.
type SymbolCache interface {
	Get(key CacheKey) (*symtree.Tree, bool)
	Put(key CacheKey, tree *symtree.Tree)
}

// LanguageServer wraps one LS subprocess and exclusively owns its
// Transport and FileEntry table.
type LanguageServer struct {
	cfg    Config
	logger *log.Logger
	cache  SymbolCache

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	transport *transport.Transport

	filesMu sync.Mutex
	files   map[string]*FileEntry

	diagMu      sync.Mutex
	diagnostics map[string][]Diagnostic
}

// New constructs an unstarted LanguageServer. cache may be nil.
func New(cfg Config, cache SymbolCache, logger *log.Logger) *LanguageServer {
	if logger == nil {
		logger = log.Default()
	}
	return &LanguageServer{
		cfg:         cfg,
		logger:      logger,
		cache:       cache,
		files:       make(map[string]*FileEntry),
		diagnostics: make(map[string][]Diagnostic),
	}
}

// State reports the current lifecycle state.
func (l *LanguageServer) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start spawns the subprocess, performs the initialize/initialized
// handshake against workspaceRoot, and transitions Unstarted -> Ready
// (or Failed on any error along the way).
func (l *LanguageServer) Start(ctx context.Context, workspaceRoot string) error {
	l.mu.Lock()
	if l.state != Unstarted {
		l.mu.Unlock()
		return fmt.Errorf("lsproc: %s already started", l.cfg.LanguageID)
	}
	l.state = Starting
	l.mu.Unlock()

	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		l.fail()
		return fmt.Errorf("%w: %v", ErrStartupFailed, err)
	}

	cmd := exec.CommandContext(ctx, l.cfg.Command, l.cfg.Args...)
	cmd.Dir = absRoot

	stdin, err := cmd.StdinPipe()
	if err != nil {
		l.fail()
		return fmt.Errorf("%w: %v", ErrStartupFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		l.fail()
		return fmt.Errorf("%w: %v", ErrStartupFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		l.fail()
		return fmt.Errorf("%w: %v", ErrStartupFailed, err)
	}

	if err := cmd.Start(); err != nil {
		l.fail()
		return fmt.Errorf("%w: %v", ErrStartupFailed, err)
	}
	go io.Copy(loggerWriter{l.logger}, stderr)

	rwc := &stdioReadWriteCloser{reader: stdout, writer: stdin}
	tr := transport.New(ctx, rwc, l.logger)
	tr.OnNotification("textDocument/publishDiagnostics", l.onPublishDiagnostics)
	tr.OnNotification("window/logMessage", l.onLogMessage)

	l.mu.Lock()
	l.cmd = cmd
	l.transport = tr
	l.mu.Unlock()

	timeout := startupTimeout
	if l.cfg.StartupTimeout > 0 {
		timeout = l.cfg.StartupTimeout
	}
	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := l.initialize(initCtx, absRoot); err != nil {
		_ = tr.Close()
		_ = cmd.Process.Kill()
		l.fail()
		return fmt.Errorf("%w: %v", ErrStartupFailed, err)
	}

	l.mu.Lock()
	l.state = Ready
	l.mu.Unlock()
	return nil
}

func (l *LanguageServer) fail() {
	l.mu.Lock()
	l.state = Failed
	l.mu.Unlock()
}

func (l *LanguageServer) initialize(ctx context.Context, root string) error {
	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		RootURI:   protocol.DocumentURI(pathToURI(root)),
		ClientInfo: &protocol.ClientInfo{
			Name:    "lspsymbols",
			Version: "0.1",
		},
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				Hover:              &protocol.HoverTextDocumentClientCapabilities{},
				Definition:         &protocol.DefinitionTextDocumentClientCapabilities{},
				References:         &protocol.ReferencesTextDocumentClientCapabilities{},
				DocumentSymbol:     &protocol.DocumentSymbolClientCapabilities{},
				Rename:             &protocol.RenameClientCapabilities{PrepareSupport: true},
				PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{},
			},
			Workspace: &protocol.WorkspaceClientCapabilities{
				Symbol: &protocol.WorkspaceClientCapabilitiesSymbol{},
			},
		},
	}
	var result protocol.InitializeResult
	if err := l.transport.Call(ctx, "initialize", params, &result); err != nil {
		return err
	}
	return l.transport.Notify(ctx, "initialized", &protocol.InitializedParams{})
}

func (l *LanguageServer) requireReady() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case Ready:
		return nil
	case Failed:
		return ErrServerDown
	default:
		return ErrNotReady
	}
}

func (l *LanguageServer) onPublishDiagnostics(_ string, params []byte) {
	var p protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	path := uriToPath(string(p.URI))
	out := make([]Diagnostic, 0, len(p.Diagnostics))
	for _, d := range p.Diagnostics {
		out = append(out, Diagnostic{
			Severity: int(d.Severity),
			Message:  d.Message,
			Source:   d.Source,
			Line:     int(d.Range.Start.Line),
		})
	}
	l.diagMu.Lock()
	l.diagnostics[path] = out
	l.diagMu.Unlock()
}

func (l *LanguageServer) onLogMessage(_ string, params []byte) {
	var p protocol.LogMessageParams
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	l.logger.Printf("lsproc[%s]: %s", l.cfg.LanguageID, p.Message)
}

// Diagnostics returns the most recently published diagnostics for path.
func (l *LanguageServer) Diagnostics(path string) []Diagnostic {
	l.diagMu.Lock()
	defer l.diagMu.Unlock()
	return append([]Diagnostic(nil), l.diagnostics[path]...)
}

// ensureOpenAtCurrentContent opens path if unseen, or issues didChange if
// the on-disk content hash has drifted from what the LS was last told.
func (l *LanguageServer) ensureOpenAtCurrentContent(ctx context.Context, path string) (*FileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lsproc: read %s: %w", path, err)
	}
	hash := contentHash(data)
	uri := pathToURI(path)

	l.filesMu.Lock()
	entry, ok := l.files[path]
	if !ok {
		entry = &FileEntry{Path: path, URI: uri, OpenVersion: 1, ContentHash: hash}
		l.files[path] = entry
		l.filesMu.Unlock()
		params := protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        protocol.DocumentURI(uri),
				LanguageID: protocol.LanguageIdentifier(l.cfg.LanguageID),
				Version:    int32(entry.OpenVersion),
				Text:       string(data),
			},
		}
		if err := l.transport.Notify(ctx, "textDocument/didOpen", params); err != nil {
			return nil, err
		}
		return entry, nil
	}
	if entry.ContentHash == hash {
		l.filesMu.Unlock()
		return entry, nil
	}
	entry.OpenVersion++
	entry.ContentHash = hash
	version := entry.OpenVersion
	l.filesMu.Unlock()
	params := protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
			Version:                int32(version),
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: string(data)}},
	}
	if err := l.transport.Notify(ctx, "textDocument/didChange", params); err != nil {
		return nil, err
	}
	return entry, nil
}

// DidChange forces a version bump and full-content resync for path,
// regardless of whether the tracked hash already matches. EditEngine
// calls this immediately after writing a file so the LS's view converges
// with disk before any subsequent semantic query. If path was never
// opened, this opens it instead, since there is no prior version to bump.
func (l *LanguageServer) DidChange(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("lsproc: read %s: %w", path, err)
	}
	hash := contentHash(data)
	uri := pathToURI(path)

	l.filesMu.Lock()
	entry, ok := l.files[path]
	if !ok {
		l.filesMu.Unlock()
		_, err := l.ensureOpenAtCurrentContent(ctx, path)
		return err
	}
	entry.OpenVersion++
	entry.ContentHash = hash
	version := entry.OpenVersion
	l.filesMu.Unlock()

	params := protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
			Version:                int32(version),
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: string(data)}},
	}
	return l.transport.Notify(ctx, "textDocument/didChange", params)
}

// DidClose drops path's FileEntry and notifies the LS.
func (l *LanguageServer) DidClose(ctx context.Context, path string) error {
	l.filesMu.Lock()
	entry, ok := l.files[path]
	delete(l.files, path)
	l.filesMu.Unlock()
	if !ok {
		return nil
	}
	params := protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(entry.URI)},
	}
	return l.transport.Notify(ctx, "textDocument/didClose", params)
}

// RequestDocumentSymbols ensures path is open at current content,
// consults the cache, and otherwise issues textDocument/documentSymbol,
// normalizing either LSP response shape into a symtree.Tree.
func (l *LanguageServer) RequestDocumentSymbols(ctx context.Context, path string) (*symtree.Tree, error) {
	if err := l.requireReady(); err != nil {
		return nil, err
	}
	entry, err := l.ensureOpenAtCurrentContent(ctx, path)
	if err != nil {
		return nil, err
	}

	key := CacheKey{FilePath: path, ContentHash: entry.ContentHash, LSID: l.cfg.LanguageID}
	if l.cache != nil {
		if tree, ok := l.cache.Get(key); ok {
			return tree, nil
		}
	}

	params := protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(entry.URI)},
	}
	var raw json.RawMessage
	if err := l.transport.Call(ctx, "textDocument/documentSymbol", params, &raw); err != nil {
		return nil, err
	}

	// A SymbolInformation array also decodes into []DocumentSymbol (unknown
	// fields are ignored), so the flat shape is told apart by its
	// "location" field.
	var shape []struct {
		Location json.RawMessage `json:"location"`
	}
	_ = json.Unmarshal(raw, &shape)
	isFlat := len(shape) > 0 && shape[0].Location != nil

	var hierarchical []protocol.DocumentSymbol
	var tree *symtree.Tree
	if err := json.Unmarshal(raw, &hierarchical); err == nil && len(hierarchical) > 0 && !isFlat {
		tree = convertHierarchical(path, hierarchical)
	} else {
		var flat []protocol.SymbolInformation
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, fmt.Errorf("lsproc: document symbol response not understood: %w", err)
		}
		tree = convertFlat(path, flat)
	}
	tree.ContentHash = entry.ContentHash

	if l.cache != nil {
		l.cache.Put(key, tree)
	}
	return tree, nil
}

func convertHierarchical(path string, docSymbols []protocol.DocumentSymbol) *symtree.Tree {
	tree := symtree.NewTree(path)
	var walk func(sym protocol.DocumentSymbol, parent int)
	walk = func(sym protocol.DocumentSymbol, parent int) {
		idx := tree.AddNode(symtree.Node{
			Name:           sym.Name,
			Kind:           symtree.Kind(sym.Kind),
			Range:          fromProtocolRange(sym.Range),
			SelectionRange: fromProtocolRange(sym.SelectionRange),
		}, parent)
		for _, child := range sym.Children {
			walk(child, idx)
		}
	}
	for _, sym := range docSymbols {
		walk(sym, -1)
	}
	return tree
}

// convertFlat synthesizes parenthood from ranges for servers returning
// the flat SymbolInformation variant: symbols are sorted by descending
// range size and each is attached under the smallest already-placed
// symbol whose range contains it, or made a root otherwise.
func convertFlat(path string, syms []protocol.SymbolInformation) *symtree.Tree {
	tree := symtree.NewTree(path)
	type placed struct {
		idx int
		rng symtree.Range
	}
	ordered := make([]protocol.SymbolInformation, len(syms))
	copy(ordered, syms)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rangeSpan(fromProtocolRange(ordered[i].Location.Range)) > rangeSpan(fromProtocolRange(ordered[j].Location.Range))
	})

	var placedNodes []placed
	for _, sym := range ordered {
		r := fromProtocolRange(sym.Location.Range)
		parent := -1
		best := -1
		for i, p := range placedNodes {
			if p.rng.Contains(r) && (best == -1 || rangeSpan(p.rng) < rangeSpan(placedNodes[best].rng)) {
				best = i
				parent = p.idx
			}
		}
		idx := tree.AddNode(symtree.Node{
			Name:           sym.Name,
			Kind:           symtree.Kind(sym.Kind),
			Range:          r,
			SelectionRange: r,
		}, parent)
		placedNodes = append(placedNodes, placed{idx: idx, rng: r})
	}
	return tree
}

func rangeSpan(r symtree.Range) int {
	lines := r.End.Line - r.Start.Line
	return lines*100000 + (r.End.Character - r.Start.Character)
}

// RequestReferences issues textDocument/references at pos.
func (l *LanguageServer) RequestReferences(ctx context.Context, path string, pos symtree.Position, includeDecl bool) ([]symtree.Location, error) {
	if err := l.requireReady(); err != nil {
		return nil, err
	}
	entry, err := l.ensureOpenAtCurrentContent(ctx, path)
	if err != nil {
		return nil, err
	}
	params := protocol.ReferenceParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(entry.URI)},
			Position:     toProtocolPosition(pos),
		},
		Context: protocol.ReferenceContext{IncludeDeclaration: includeDecl},
	}
	var resp []protocol.Location
	if err := l.transport.Call(ctx, "textDocument/references", params, &resp); err != nil {
		return nil, err
	}
	return fromProtocolLocations(resp), nil
}

// RequestDefinition issues textDocument/definition at pos.
func (l *LanguageServer) RequestDefinition(ctx context.Context, path string, pos symtree.Position) ([]symtree.Location, error) {
	if err := l.requireReady(); err != nil {
		return nil, err
	}
	entry, err := l.ensureOpenAtCurrentContent(ctx, path)
	if err != nil {
		return nil, err
	}
	params := protocol.DefinitionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(entry.URI)},
			Position:     toProtocolPosition(pos),
		},
	}
	var resp []protocol.Location
	if err := l.transport.Call(ctx, "textDocument/definition", params, &resp); err != nil {
		return nil, err
	}
	return fromProtocolLocations(resp), nil
}

// RequestHover issues textDocument/hover at pos, returning the rendered
// contents string.
func (l *LanguageServer) RequestHover(ctx context.Context, path string, pos symtree.Position) (string, error) {
	if err := l.requireReady(); err != nil {
		return "", err
	}
	entry, err := l.ensureOpenAtCurrentContent(ctx, path)
	if err != nil {
		return "", err
	}
	params := protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(entry.URI)},
			Position:     toProtocolPosition(pos),
		},
	}
	var resp protocol.Hover
	if err := l.transport.Call(ctx, "textDocument/hover", params, &resp); err != nil {
		return "", err
	}
	return fmt.Sprint(resp.Contents.Value), nil
}

// RenameSymbol asks the LS for a WorkspaceEdit renaming the symbol at pos.
func (l *LanguageServer) RenameSymbol(ctx context.Context, path string, pos symtree.Position, newName string) (symtree.WorkspaceEdit, error) {
	if err := l.requireReady(); err != nil {
		return nil, err
	}
	entry, err := l.ensureOpenAtCurrentContent(ctx, path)
	if err != nil {
		return nil, err
	}
	params := protocol.RenameParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(entry.URI)},
			Position:     toProtocolPosition(pos),
		},
		NewName: newName,
	}
	var resp protocol.WorkspaceEdit
	if err := l.transport.Call(ctx, "textDocument/rename", params, &resp); err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) && rpcErr.Code == jsonrpc2.CodeMethodNotFound {
			return nil, ErrRenameNotSupported
		}
		return nil, err
	}
	if len(resp.Changes) == 0 {
		return nil, ErrRenameInvalid
	}
	return fromProtocolWorkspaceEdit(resp), nil
}

// Shutdown notifies didClose for every still-open file, sends shutdown
// then exit, waits up to shutdownTimeout for the process to exit, and
// force-kills stragglers.
func (l *LanguageServer) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.state != Ready {
		l.mu.Unlock()
		return nil
	}
	l.state = Stopping
	tr := l.transport
	cmd := l.cmd
	l.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	l.filesMu.Lock()
	openPaths := make([]string, 0, len(l.files))
	for path := range l.files {
		openPaths = append(openPaths, path)
	}
	l.filesMu.Unlock()
	for _, path := range openPaths {
		if err := l.DidClose(shutdownCtx, path); err != nil {
			l.logger.Printf("lsproc[%s]: didClose %s on shutdown: %v", l.cfg.LanguageID, path, err)
		}
	}

	_ = tr.Call(shutdownCtx, "shutdown", nil, nil)
	_ = tr.Notify(shutdownCtx, "exit", nil)
	_ = tr.Close()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		_ = cmd.Process.Kill()
		<-done
	}

	l.mu.Lock()
	l.state = Stopped
	l.mu.Unlock()
	return nil
}

type stdioReadWriteCloser struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioReadWriteCloser) Read(p []byte) (int, error)  { return s.reader.Read(p) }
func (s *stdioReadWriteCloser) Write(p []byte) (int, error) { return s.writer.Write(p) }
func (s *stdioReadWriteCloser) Close() error {
	_ = s.reader.Close()
	return s.writer.Close()
}

type loggerWriter struct{ l *log.Logger }

func (w loggerWriter) Write(p []byte) (int, error) {
	w.l.Print(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func pathToURI(path string) string {
	path = filepath.Clean(path)
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(path, "\\", "/")
		return "file:///" + strings.ReplaceAll(path, ":", "%3A")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "file://" + path
}

func uriToPath(uri string) string {
	uri = strings.TrimPrefix(uri, "file://")
	uri = strings.ReplaceAll(uri, "%3A", ":")
	return filepath.FromSlash(uri)
}

func toProtocolPosition(p symtree.Position) protocol.Position {
	return protocol.Position{Line: uint32(p.Line), Character: uint32(p.Character)}
}

func fromProtocolRange(r protocol.Range) symtree.Range {
	return symtree.Range{
		Start: symtree.Position{Line: int(r.Start.Line), Character: int(r.Start.Character)},
		End:   symtree.Position{Line: int(r.End.Line), Character: int(r.End.Character)},
	}
}

func fromProtocolLocations(locs []protocol.Location) []symtree.Location {
	out := make([]symtree.Location, 0, len(locs))
	for _, loc := range locs {
		out = append(out, symtree.Location{
			URI:   uriToPath(string(loc.URI)),
			Range: fromProtocolRange(loc.Range),
		})
	}
	return out
}

func fromProtocolWorkspaceEdit(edit protocol.WorkspaceEdit) symtree.WorkspaceEdit {
	out := make(symtree.WorkspaceEdit)
	for uri, edits := range edit.Changes {
		path := uriToPath(string(uri))
		converted := make([]symtree.TextEdit, 0, len(edits))
		for _, e := range edits {
			converted = append(converted, symtree.TextEdit{Range: fromProtocolRange(e.Range), NewText: e.NewText})
		}
		out[path] = converted
	}
	return out
}
