// Package manager owns a project's fleet of language servers: one
// LanguageServer per language, started lazily on first use, with
// concurrent first-request callers for the same language coalescing
// onto a single in-flight start.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lexcodex/lspsymbols/internal/langreg"
	"github.com/lexcodex/lspsymbols/internal/lsproc"
)

// ErrUnsupportedLanguage is returned by ServerFor when no registry entry
// matches the file's extension.
var ErrUnsupportedLanguage = errors.New("manager: unsupported language")

// ErrServerFailed is returned by ServerFor when the language's server
// previously failed to start, wrapped together with that start error. A
// server whose process exits after a successful start is not marked
// failed: ServerFor keeps returning it and its requests fail with
// transport.ErrClosed. Per spec.md's Open Question (a),
// a failed language server does not auto-restart — it requires an
// explicit Reactivate call so failure stays observable to the caller
// instead of silently retrying and masking a broken LS install.
var ErrServerFailed = errors.New("manager: language server failed, reactivate required")

const shutdownAllDeadline = 10 * time.Second

// Recorder is an optional audit sink for project activation and
// deactivation, satisfied by internal/history.ManagerRecorder. A Manager
// with no Recorder set behaves exactly as before.
type Recorder interface {
	RecordActivation(ctx context.Context, root, previousRoot string) error
	RecordDeactivation(ctx context.Context, root string) error
}

type entry struct {
	server *lsproc.LanguageServer
	// startOnce coalesces concurrent first-request callers for this
	// language onto a single in-flight Start call.
	startOnce sync.Once

	mu       sync.Mutex
	startErr error
	failed   bool
}

// Manager owns a project root and a language -> LanguageServer mapping.
// It is the exclusive owner of every LanguageServer instance it creates.
type Manager struct {
	registry *langreg.Registry
	cache    lsproc.SymbolCache
	logger   *log.Logger
	recorder Recorder

	mu      sync.Mutex
	root    string
	entries map[string]*entry
}

// SetRecorder wires an audit sink for activation and deactivation
// events. Passing nil disables recording (the default).
func (m *Manager) SetRecorder(r Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder = r
}

// New returns an unactivated Manager. cache may be nil.
func New(registry *langreg.Registry, cache lsproc.SymbolCache, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		registry: registry,
		cache:    cache,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Activate sets root as the active project. Reactivating the same root is
// a no-op. Activating a different root first fully shuts down the
// previous project's fleet.
func (m *Manager) Activate(ctx context.Context, root string) error {
	m.mu.Lock()
	if m.root == root {
		m.mu.Unlock()
		return nil
	}
	previousRoot := m.root
	m.mu.Unlock()

	if previousRoot != "" {
		if err := m.ShutdownAll(ctx); err != nil {
			return fmt.Errorf("manager: shut down previous project: %w", err)
		}
	}

	m.mu.Lock()
	m.root = root
	m.entries = make(map[string]*entry)
	recorder := m.recorder
	m.mu.Unlock()

	if recorder != nil {
		if err := recorder.RecordActivation(ctx, root, previousRoot); err != nil {
			m.logger.Printf("manager: record activation of %s: %v", root, err)
		}
	}
	return nil
}

// ServerFor determines path's language, lazily starts that language's
// server on first use, and returns the ready instance. Concurrent
// first-request callers for the same language coalesce onto one start.
func (m *Manager) ServerFor(ctx context.Context, path string) (*lsproc.LanguageServer, error) {
	langKey, ok := m.registry.LanguageForPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, path)
	}
	cfg, ok := m.registry.ConfigFor(langKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, langKey)
	}

	m.mu.Lock()
	root := m.root
	e, exists := m.entries[langKey]
	if !exists {
		e = &entry{server: lsproc.New(cfg, m.cache, m.logger)}
		m.entries[langKey] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	alreadyFailed, failedErr := e.failed, e.startErr
	e.mu.Unlock()
	if alreadyFailed {
		return nil, fmt.Errorf("%w: %w", ErrServerFailed, failedErr)
	}

	e.startOnce.Do(func() {
		if err := e.server.Start(ctx, root); err != nil {
			e.mu.Lock()
			e.startErr = err
			e.failed = true
			e.mu.Unlock()
		}
	})

	e.mu.Lock()
	startErr := e.startErr
	e.mu.Unlock()
	if startErr != nil {
		return nil, startErr
	}
	return e.server, nil
}

// Reactivate clears a previously failed language's entry so the next
// ServerFor call attempts a fresh start. This is the sole recovery path
// for a Failed language server.
func (m *Manager) Reactivate(langKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, langKey)
}

// ShutdownAll fans out Shutdown across every started language server,
// joining with a bounded deadline and leaving stragglers to lsproc's own
// force-kill inside Shutdown.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	root := m.root
	recorder := m.recorder
	m.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownAllDeadline)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		failed := e.failed
		e.mu.Unlock()
		if failed || e.server.State() != lsproc.Ready {
			continue
		}
		wg.Add(1)
		go func(i int, e *entry) {
			defer wg.Done()
			errs[i] = e.server.Shutdown(shutdownCtx)
		}(i, e)
	}
	wg.Wait()

	m.mu.Lock()
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	if recorder != nil && root != "" {
		if err := recorder.RecordDeactivation(ctx, root); err != nil {
			m.logger.Printf("manager: record deactivation of %s: %v", root, err)
		}
	}

	return errors.Join(errs...)
}
