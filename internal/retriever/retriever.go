// Package retriever implements the high-level, language-agnostic symbol
// queries (C6): find-by-name-path across a scope, find-referencing-
// symbols, and the file overview used by the tool layer.
package retriever

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/lexcodex/lspsymbols/internal/langreg"
	"github.com/lexcodex/lspsymbols/internal/manager"
	"github.com/lexcodex/lspsymbols/internal/symtree"
)

// Reference pairs a reference's location with the enclosing symbol found
// in that location's file, per spec.md §4.6.
type Reference struct {
	Location  symtree.Location
	Enclosing symtree.Symbol
}

// OverviewEntry is one line of getOverview's output.
type OverviewEntry struct {
	NamePath symtree.NamePath
	Kind     symtree.Kind
}

// FileOverview is one file's top-level-only symbol summary, as returned
// by GetDirectoryOverview's per-file entries.
type FileOverview struct {
	Path    string
	Symbols []OverviewEntry
}

// defaultMaxOverviewFiles mirrors original_source's get_symbols_overview
// directory-mode default file cap.
const defaultMaxOverviewFiles = 20

// Server is the subset of lsproc.LanguageServer that Retriever needs.
// Declaring it here, at the point of use, keeps Retriever testable
// without a real subprocess: fakes only need these two methods.
type Server interface {
	RequestDocumentSymbols(ctx context.Context, path string) (*symtree.Tree, error)
	RequestReferences(ctx context.Context, path string, pos symtree.Position, includeDecl bool) ([]symtree.Location, error)
}

// Servers resolves a file to the Server that owns its language, mirroring
// manager.Manager.ServerFor's signature.
type Servers interface {
	ServerFor(ctx context.Context, path string) (Server, error)
}

// LanguageDetector reports whether path has a registered language,
// mirroring langreg.Registry.LanguageForPath.
type LanguageDetector interface {
	LanguageForPath(path string) (string, bool)
}

// Retriever answers symbol queries by fanning requests out to the
// project's language servers and applying symtree's pure matchers to the
// trees they return.
type Retriever struct {
	servers  Servers
	detector LanguageDetector
	logger   *log.Logger
}

// New returns a Retriever backed by mgr for server access and registry
// for language-aware file enumeration.
func New(mgr *manager.Manager, registry *langreg.Registry, logger *log.Logger) *Retriever {
	return newWithServers(managerAdapter{mgr}, registry, logger)
}

func newWithServers(servers Servers, detector LanguageDetector, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.Default()
	}
	return &Retriever{servers: servers, detector: detector, logger: logger}
}

// managerAdapter narrows *manager.Manager to the Servers interface; the
// implicit *lsproc.LanguageServer -> Server conversion on return is valid
// because LanguageServer's method set already satisfies Server.
type managerAdapter struct{ m *manager.Manager }

func (a managerAdapter) ServerFor(ctx context.Context, path string) (Server, error) {
	return a.m.ServerFor(ctx, path)
}

// FindByName enumerates candidate files under scope (a file or a
// directory, filtered by supported languages), asks each file's LS for
// its symbol tree, applies C4's matcher, and merges results. Files are
// visited in lexical path order, and each file's own matches preserve
// their pre-order traversal index, satisfying the tie-break rule in
// spec.md §3.
func (r *Retriever) FindByName(ctx context.Context, namePath string, scope string, opts symtree.MatchOptions) ([]symtree.Symbol, error) {
	files, err := r.enumerateFiles(scope)
	if err != nil {
		return nil, err
	}
	parsed := symtree.ParseNamePath(namePath)

	var results []symtree.Symbol
	for _, file := range files {
		if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
			break
		}
		tree, err := r.treeFor(ctx, file)
		if err != nil {
			r.logger.Printf("retriever: skip %s: %v", file, err)
			continue
		}
		remaining := opts
		if opts.MaxResults > 0 {
			remaining.MaxResults = opts.MaxResults - len(results)
		}
		results = append(results, symtree.FindByNamePath(tree, parsed, remaining)...)
	}
	if opts.MaxResults > 0 && len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results, nil
}

// FindReferencingSymbols issues references on symbol.selectionRange.start
// and resolves the enclosing symbol of each result location.
func (r *Retriever) FindReferencingSymbols(ctx context.Context, symbol symtree.Symbol) ([]Reference, error) {
	if !symbol.Valid() {
		return nil, fmt.Errorf("retriever: invalid symbol")
	}
	path := symbol.Tree.FilePath
	server, err := r.servers.ServerFor(ctx, path)
	if err != nil {
		return nil, err
	}
	locations, err := server.RequestReferences(ctx, path, symbol.Node().SelectionRange.Start, false)
	if err != nil {
		return nil, err
	}

	out := make([]Reference, 0, len(locations))
	for _, loc := range locations {
		enclosing, ok := r.enclosingSymbol(ctx, loc)
		ref := Reference{Location: loc}
		if ok {
			ref.Enclosing = enclosing
		}
		out = append(out, ref)
	}
	return out, nil
}

func (r *Retriever) enclosingSymbol(ctx context.Context, loc symtree.Location) (symtree.Symbol, bool) {
	tree, err := r.treeFor(ctx, loc.URI)
	if err != nil {
		return symtree.Symbol{}, false
	}
	return symtree.SmallestContaining(tree, loc.Range.Start)
}

// GetOverview returns path's top-level symbols and their direct children
// only, in pre-order.
func (r *Retriever) GetOverview(ctx context.Context, path string) ([]OverviewEntry, error) {
	tree, err := r.treeFor(ctx, path)
	if err != nil {
		return nil, err
	}
	var out []OverviewEntry
	for _, rootIdx := range tree.Roots {
		root := symtree.Symbol{Tree: tree, Index: rootIdx}
		out = append(out, OverviewEntry{NamePath: symtree.NameOf(root), Kind: root.Node().Kind})
		for _, child := range root.Children() {
			out = append(out, OverviewEntry{NamePath: symtree.NameOf(child), Kind: child.Node().Kind})
		}
	}
	return out, nil
}

// GetDirectoryOverview summarizes up to maxFiles files under dir (in
// lexical path order), each reduced to its top-level symbols only —
// unlike GetOverview's single-file mode, one-level-deep children are not
// included, keeping the invariant that getOverview never returns nested
// bodies. maxFiles <= 0 defaults to defaultMaxOverviewFiles, mirroring
// the original's directory-mode get_symbols_overview.
func (r *Retriever) GetDirectoryOverview(ctx context.Context, dir string, maxFiles int) ([]FileOverview, error) {
	if maxFiles <= 0 {
		maxFiles = defaultMaxOverviewFiles
	}
	files, err := r.enumerateFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) > maxFiles {
		files = files[:maxFiles]
	}

	out := make([]FileOverview, 0, len(files))
	for _, file := range files {
		tree, err := r.treeFor(ctx, file)
		if err != nil {
			r.logger.Printf("retriever: skip %s: %v", file, err)
			continue
		}
		summary := FileOverview{Path: file}
		for _, rootIdx := range tree.Roots {
			root := symtree.Symbol{Tree: tree, Index: rootIdx}
			summary.Symbols = append(summary.Symbols, OverviewEntry{NamePath: symtree.NameOf(root), Kind: root.Node().Kind})
		}
		out = append(out, summary)
	}
	return out, nil
}

func (r *Retriever) treeFor(ctx context.Context, path string) (*symtree.Tree, error) {
	server, err := r.servers.ServerFor(ctx, path)
	if err != nil {
		return nil, err
	}
	return server.RequestDocumentSymbols(ctx, path)
}

// enumerateFiles resolves scope to a sorted list of files with a
// registered language. A file scope that itself has no registered
// language yields no candidates rather than an error, since scope may
// legitimately mix supported and unsupported files when it is a
// directory.
func (r *Retriever) enumerateFiles(scope string) ([]string, error) {
	info, err := os.Stat(scope)
	if err != nil {
		return nil, fmt.Errorf("retriever: stat %s: %w", scope, err)
	}
	if !info.IsDir() {
		if _, ok := r.detector.LanguageForPath(scope); !ok {
			return nil, nil
		}
		return []string{scope}, nil
	}

	var files []string
	err = filepath.WalkDir(scope, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := r.detector.LanguageForPath(path); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("retriever: walk %s: %w", scope, err)
	}
	sort.Strings(files)
	return files, nil
}
