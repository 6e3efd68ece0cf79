package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lexcodex/lspsymbols/internal/editengine"
	"github.com/lexcodex/lspsymbols/internal/retriever"
	"github.com/lexcodex/lspsymbols/internal/symtree"
)

// defaultContextLines mirrors original_source's find_referencing_symbols
// context_lines default.
const defaultContextLines = 2

// scopeIndexTimeout is spec.md §4.8's "symbol-indexing tools get longer"
// allowance for findSymbol, whose scope may be a whole directory.
const scopeIndexTimeout = 10 * time.Minute

// Finder is the subset of retriever.Retriever the tool layer needs.
// Declared here, at the point of use, so tools are testable against a
// fake rather than a live Retriever.
type Finder interface {
	FindByName(ctx context.Context, namePath, scope string, opts symtree.MatchOptions) ([]symtree.Symbol, error)
	FindReferencingSymbols(ctx context.Context, symbol symtree.Symbol) ([]retriever.Reference, error)
	GetOverview(ctx context.Context, path string) ([]retriever.OverviewEntry, error)
	GetDirectoryOverview(ctx context.Context, dir string, maxFiles int) ([]retriever.FileOverview, error)
}

// Editor is the subset of editengine.EditEngine the tool layer needs.
type Editor interface {
	ReplaceBody(ctx context.Context, symbol symtree.Symbol, newText string) error
	InsertBefore(ctx context.Context, symbol symtree.Symbol, text string) error
	InsertAfter(ctx context.Context, symbol symtree.Symbol, text string) error
	Rename(ctx context.Context, symbol symtree.Symbol, newName string) (editengine.RenameResult, error)
}

// RegisterCoreTools registers spec.md §4.8's core tool surface
// (findSymbol, findReferencingSymbols, getSymbolsOverview,
// replaceSymbolBody, insertBeforeSymbol/insertAfterSymbol, renameSymbol)
// onto d.
func RegisterCoreTools(d *Dispatcher, finder Finder, editor Editor) error {
	tools := []Tool{
		&findSymbolTool{finder: finder},
		&findReferencingSymbolsTool{finder: finder},
		&getSymbolsOverviewTool{finder: finder},
		&replaceSymbolBodyTool{finder: finder, editor: editor},
		&insertSymbolTool{finder: finder, editor: editor, before: true},
		&insertSymbolTool{finder: finder, editor: editor, before: false},
		&renameSymbolTool{finder: finder, editor: editor},
	}
	for _, t := range tools {
		if err := d.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// resolveOne resolves namePath within scope to exactly one Symbol,
// applying the occurrence-based disambiguation policy adopted from
// original_source (SPEC_FULL.md §11): a single candidate always
// resolves; more than one requires a 1-based occurrence index into the
// candidate list, in the order FindByName returns them.
func resolveOne(ctx context.Context, finder Finder, namePath, scope string, occurrence int) (symtree.Symbol, error) {
	candidates, err := finder.FindByName(ctx, namePath, scope, symtree.MatchOptions{})
	if err != nil {
		return symtree.Symbol{}, err
	}
	switch {
	case len(candidates) == 0:
		return symtree.Symbol{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, namePath)
	case len(candidates) == 1:
		return candidates[0], nil
	case occurrence >= 1 && occurrence <= len(candidates):
		return candidates[occurrence-1], nil
	default:
		return symtree.Symbol{}, fmt.Errorf("%w: %s has %d candidates", ErrAmbiguousSymbol, namePath, len(candidates))
	}
}

func decodeArgs(argsJSON json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(argsJSON, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// findSymbolTool wraps C6.findByName.
type findSymbolTool struct{ finder Finder }

func (*findSymbolTool) Name() string        { return "findSymbol" }
func (*findSymbolTool) Description() string { return "Resolves a name-path to matching symbols within a file or directory scope." }
func (*findSymbolTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"namePath":   {Type: "string", Description: "Slash-separated symbol path, e.g. Calc/add"},
			"scope":      {Type: "string", Description: "File or directory to search"},
			"substring":  {Type: "boolean", Description: "Match the final segment as a substring"},
			"kinds":      {Type: "array", Description: "Restrict to these SymbolKind names"},
			"maxResults": {Type: "integer", Description: "Cap the number of results"},
		},
		Required: []string{"namePath", "scope"},
	}
}
func (t *findSymbolTool) Timeout() time.Duration { return scopeIndexTimeout }

func (t *findSymbolTool) Invoke(ctx context.Context, argsJSON json.RawMessage) (json.RawMessage, error) {
	var args struct {
		NamePath   string   `json:"namePath"`
		Scope      string   `json:"scope"`
		Substring  bool     `json:"substring"`
		Kinds      []string `json:"kinds"`
		MaxResults int      `json:"maxResults"`
	}
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	if args.NamePath == "" || args.Scope == "" {
		return nil, fmt.Errorf("%w: namePath and scope are required", ErrInvalidInput)
	}
	opts := symtree.MatchOptions{SubstringMatch: args.Substring, MaxResults: args.MaxResults}
	if len(args.Kinds) > 0 {
		opts.KindsIncluded = make(map[symtree.Kind]bool, len(args.Kinds))
		for _, name := range args.Kinds {
			k, ok := symtree.ParseKind(name)
			if !ok {
				return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, name)
			}
			opts.KindsIncluded[k] = true
		}
	}
	symbols, err := t.finder.FindByName(ctx, args.NamePath, args.Scope, opts)
	if err != nil {
		return nil, err
	}
	out := make([]symbolView, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, newSymbolView(s))
	}
	return json.Marshal(out)
}

// findReferencingSymbolsTool wraps C6.findReferencingSymbols.
type findReferencingSymbolsTool struct{ finder Finder }

func (*findReferencingSymbolsTool) Name() string { return "findReferencingSymbols" }
func (*findReferencingSymbolsTool) Description() string {
	return "Finds references to the symbol at namePath and resolves each reference's enclosing symbol."
}
func (*findReferencingSymbolsTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"namePath":     {Type: "string"},
			"path":         {Type: "string"},
			"contextLines": {Type: "integer", Description: "Lines of surrounding source to include per match (default 2)"},
		},
		Required: []string{"namePath", "path"},
	}
}

func (t *findReferencingSymbolsTool) Invoke(ctx context.Context, argsJSON json.RawMessage) (json.RawMessage, error) {
	var args struct {
		NamePath     string `json:"namePath"`
		Path         string `json:"path"`
		Occurrence   int    `json:"occurrence"`
		ContextLines *int   `json:"contextLines"`
	}
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	contextLines := defaultContextLines
	if args.ContextLines != nil {
		contextLines = *args.ContextLines
	}
	symbol, err := resolveOne(ctx, t.finder, args.NamePath, args.Path, args.Occurrence)
	if err != nil {
		return nil, err
	}
	refs, err := t.finder.FindReferencingSymbols(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]referenceView, 0, len(refs))
	for _, r := range refs {
		view := referenceView{Location: r.Location}
		if r.Enclosing.Valid() {
			view.Enclosing = newSymbolView(r.Enclosing)
		}
		if contextLines > 0 {
			view.ContextBefore, view.ContextAfter = surroundingLines(r.Location, contextLines)
		}
		out = append(out, view)
	}
	return json.Marshal(out)
}

// surroundingLines reads loc's file off disk and returns up to n lines
// immediately before and after loc.Range.Start.Line, trimmed of trailing
// carriage returns. It returns (nil, nil) rather than an error when the
// file is unreadable, since context lines are convenience data
// supplementing findReferencingSymbols' C6 (Symbol, Location) contract,
// not part of it.
func surroundingLines(loc symtree.Location, n int) (before, after []string) {
	data, err := os.ReadFile(loc.URI)
	if err != nil {
		return nil, nil
	}
	lines := strings.Split(string(data), "\n")
	target := loc.Range.Start.Line

	start := target - n
	if start < 0 {
		start = 0
	}
	for i := start; i < target && i < len(lines); i++ {
		before = append(before, strings.TrimSuffix(lines[i], "\r"))
	}

	end := target + n
	if end >= len(lines) {
		end = len(lines) - 1
	}
	for i := target + 1; i <= end; i++ {
		after = append(after, strings.TrimSuffix(lines[i], "\r"))
	}
	return before, after
}

// getSymbolsOverviewTool wraps C6.getOverview.
type getSymbolsOverviewTool struct{ finder Finder }

func (*getSymbolsOverviewTool) Name() string { return "getSymbolsOverview" }
func (*getSymbolsOverviewTool) Description() string {
	return "Lists a file's top-level and one-level-deep symbols, or, for a directory, each file's top-level symbols."
}
func (*getSymbolsOverviewTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"path":     {Type: "string"},
			"maxFiles": {Type: "integer", Description: "Directory mode only: cap on files summarized (default 20)"},
		},
		Required: []string{"path"},
	}
}

func (t *getSymbolsOverviewTool) Invoke(ctx context.Context, argsJSON json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Path     string `json:"path"`
		MaxFiles int    `json:"maxFiles"`
	}
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}

	info, err := os.Stat(args.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if info.IsDir() {
		files, err := t.finder.GetDirectoryOverview(ctx, args.Path, args.MaxFiles)
		if err != nil {
			return nil, err
		}
		out := make([]fileOverviewView, 0, len(files))
		for _, f := range files {
			view := fileOverviewView{Path: f.Path}
			for _, e := range f.Symbols {
				view.Symbols = append(view.Symbols, overviewView{NamePath: e.NamePath.String(), Kind: e.Kind.String()})
			}
			out = append(out, view)
		}
		return json.Marshal(out)
	}

	entries, err := t.finder.GetOverview(ctx, args.Path)
	if err != nil {
		return nil, err
	}
	out := make([]overviewView, 0, len(entries))
	for _, e := range entries {
		out = append(out, overviewView{NamePath: e.NamePath.String(), Kind: e.Kind.String()})
	}
	return json.Marshal(out)
}

// replaceSymbolBodyTool wraps C7.replaceBody.
type replaceSymbolBodyTool struct {
	finder Finder
	editor Editor
}

func (*replaceSymbolBodyTool) Name() string        { return "replaceSymbolBody" }
func (*replaceSymbolBodyTool) Description() string { return "Replaces a symbol's body verbatim." }
func (*replaceSymbolBodyTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"namePath": {Type: "string"},
			"path":     {Type: "string"},
			"newBody":  {Type: "string"},
		},
		Required: []string{"namePath", "path", "newBody"},
	}
}

func (t *replaceSymbolBodyTool) Invoke(ctx context.Context, argsJSON json.RawMessage) (json.RawMessage, error) {
	var args struct {
		NamePath   string `json:"namePath"`
		Path       string `json:"path"`
		NewBody    string `json:"newBody"`
		Occurrence int    `json:"occurrence"`
	}
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	symbol, err := resolveOne(ctx, t.finder, args.NamePath, args.Path, args.Occurrence)
	if err != nil {
		return nil, err
	}
	if err := t.editor.ReplaceBody(ctx, symbol, ensureTrailingNewline(args.NewBody)); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"path": args.Path})
}

// ensureTrailingNewline trims any trailing newlines from body and
// re-appends exactly one, mirroring original_source's UX at the
// tool boundary. EditEngine.ReplaceBody itself writes bytes verbatim;
// this normalization happens here, before the engine ever sees newBody.
func ensureTrailingNewline(body string) string {
	return strings.TrimRight(body, "\n") + "\n"
}

// insertSymbolTool wraps C7.insertBefore/insertAfter, selected by
// before at registration.
type insertSymbolTool struct {
	finder Finder
	editor Editor
	before bool
}

func (t *insertSymbolTool) Name() string {
	if t.before {
		return "insertBeforeSymbol"
	}
	return "insertAfterSymbol"
}
func (t *insertSymbolTool) Description() string {
	if t.before {
		return "Inserts text immediately before a symbol's range, with no reflow."
	}
	return "Inserts text immediately after a symbol's range, with no reflow."
}
func (*insertSymbolTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"namePath": {Type: "string"},
			"path":     {Type: "string"},
			"text":     {Type: "string"},
		},
		Required: []string{"namePath", "path", "text"},
	}
}

func (t *insertSymbolTool) Invoke(ctx context.Context, argsJSON json.RawMessage) (json.RawMessage, error) {
	var args struct {
		NamePath   string `json:"namePath"`
		Path       string `json:"path"`
		Text       string `json:"text"`
		Occurrence int    `json:"occurrence"`
	}
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	symbol, err := resolveOne(ctx, t.finder, args.NamePath, args.Path, args.Occurrence)
	if err != nil {
		return nil, err
	}
	if t.before {
		err = t.editor.InsertBefore(ctx, symbol, args.Text)
	} else {
		err = t.editor.InsertAfter(ctx, symbol, args.Text)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"path": args.Path})
}

// renameSymbolTool wraps C7.rename.
type renameSymbolTool struct {
	finder Finder
	editor Editor
}

func (*renameSymbolTool) Name() string        { return "renameSymbol" }
func (*renameSymbolTool) Description() string { return "Renames a symbol and every reference the LS reports, across files." }
func (*renameSymbolTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"namePath": {Type: "string"},
			"path":     {Type: "string"},
			"newName":  {Type: "string"},
		},
		Required: []string{"namePath", "path", "newName"},
	}
}

func (t *renameSymbolTool) Invoke(ctx context.Context, argsJSON json.RawMessage) (json.RawMessage, error) {
	var args struct {
		NamePath   string `json:"namePath"`
		Path       string `json:"path"`
		NewName    string `json:"newName"`
		Occurrence int    `json:"occurrence"`
	}
	if err := decodeArgs(argsJSON, &args); err != nil {
		return nil, err
	}
	symbol, err := resolveOne(ctx, t.finder, args.NamePath, args.Path, args.Occurrence)
	if err != nil {
		return nil, err
	}
	result, err := t.editor.Rename(ctx, symbol, args.NewName)
	if err != nil {
		if len(result.Applied) > 0 {
			return nil, fmt.Errorf("%w: applied %v, pending %v: %v", ErrPartialEdit, result.Applied, result.Pending, err)
		}
		return nil, err
	}
	return json.Marshal(map[string][]string{"applied": result.Applied})
}

// symbolView, referenceView, and overviewView are the tool layer's
// JSON-facing shapes; symtree.Symbol itself is an arena handle, not
// something a caller outside this process should serialize.
type symbolView struct {
	NamePath string        `json:"namePath"`
	Kind     string        `json:"kind"`
	Range    symtree.Range `json:"range"`
}

func newSymbolView(s symtree.Symbol) symbolView {
	return symbolView{NamePath: symtree.NameOf(s).String(), Kind: s.Node().Kind.String(), Range: s.Node().Range}
}

type referenceView struct {
	Location      symtree.Location `json:"location"`
	Enclosing     symbolView       `json:"enclosing"`
	ContextBefore []string         `json:"contextBefore,omitempty"`
	ContextAfter  []string         `json:"contextAfter,omitempty"`
}

type overviewView struct {
	NamePath string `json:"namePath"`
	Kind     string `json:"kind"`
}

// fileOverviewView is one file's entry in getSymbolsOverview's
// directory-mode output.
type fileOverviewView struct {
	Path    string         `json:"path"`
	Symbols []overviewView `json:"symbols"`
}
