// Package langreg maps file extensions to the language server that
// should own them, generalizing the teacher's per-language LSP client
// factory table into a data-driven registry the Manager consults.
package langreg

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lexcodex/lspsymbols/internal/lsproc"
)

// Descriptor is everything the Manager needs to lazily start a language
// server for a given language key. StartupTimeout of zero means
// "use lsproc's own default" — internal/config only sets it when a
// server's settings file overrides the default.
type Descriptor struct {
	LanguageKey    string
	Command        string
	Args           []string
	Extensions     []string
	StartupTimeout time.Duration
}

func (d Descriptor) config() lsproc.Config {
	return lsproc.Config{Command: d.Command, Args: d.Args, LanguageID: d.LanguageKey, StartupTimeout: d.StartupTimeout}
}

// Registry maps file extensions and language keys to Descriptors.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Descriptor
	byExt map[string]string // extension -> language key
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey: make(map[string]Descriptor),
		byExt: make(map[string]string),
	}
}

// NewDefaultRegistry returns a registry pre-populated with the language
// servers the teacher already knew how to launch.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Descriptor{LanguageKey: "go", Command: "gopls", Args: []string{"serve"}, Extensions: []string{"go"}})
	r.Register(Descriptor{LanguageKey: "rust", Command: "rust-analyzer", Extensions: []string{"rs"}})
	r.Register(Descriptor{LanguageKey: "clangd", Command: "clangd", Extensions: []string{"c", "h", "cpp", "hpp", "cc", "cxx"}})
	r.Register(Descriptor{LanguageKey: "haskell", Command: "haskell-language-server-wrapper", Args: []string{"--lsp"}, Extensions: []string{"hs"}})
	r.Register(Descriptor{LanguageKey: "typescript", Command: "typescript-language-server", Args: []string{"--stdio"}, Extensions: []string{"ts", "tsx", "js", "jsx"}})
	r.Register(Descriptor{LanguageKey: "lua", Command: "lua-language-server", Extensions: []string{"lua"}})
	r.Register(Descriptor{LanguageKey: "python", Command: "pylsp", Extensions: []string{"py"}})
	return r
}

// Register adds or replaces d, indexing it by language key and by every
// extension it declares.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[d.LanguageKey] = d
	for _, ext := range d.Extensions {
		r.byExt[strings.ToLower(ext)] = d.LanguageKey
	}
}

// LanguageForPath returns the language key registered for path's
// extension, or ("", false) if none matches.
func (r *Registry) LanguageForPath(path string) (string, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byExt[ext]
	return key, ok
}

// ConfigFor returns the lsproc.Config to launch the language server for
// key, or (Config{}, false) if key is unregistered.
func (r *Registry) ConfigFor(key string) (lsproc.Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[key]
	if !ok {
		return lsproc.Config{}, false
	}
	return d.config(), true
}

// Descriptor returns the registered Descriptor for key, letting a
// caller (internal/config) merge overrides onto the seeded defaults
// instead of replacing extensions it doesn't know about.
func (r *Registry) Descriptor(key string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[key]
	return d, ok
}

// Keys returns every registered language key.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	return keys
}
