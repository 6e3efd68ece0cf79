// Package dispatch implements C8: a registry of named tools, each with a
// JSON-schema-subset input description and an invocation function, run
// with a per-tool timeout and reporting a uniform {ok, text} or
// {error, kind, message} result.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lexcodex/lspsymbols/internal/editengine"
	"github.com/lexcodex/lspsymbols/internal/lsproc"
	"github.com/lexcodex/lspsymbols/internal/manager"
	"github.com/lexcodex/lspsymbols/internal/transport"
)

// defaultTimeout is spec.md §4.8's per-tool default; symbol-indexing
// tools (findSymbol over a directory scope) override it via
// TimeoutOverrider.
const defaultTimeout = 240 * time.Second

// ErrSymbolNotFound is returned when a namePath resolves to no candidate.
var ErrSymbolNotFound = errors.New("dispatch: symbol not found")

// ErrAmbiguousSymbol is returned when a namePath resolves to more than
// one candidate and the call supplies no (or an out-of-range) occurrence
// index — the Open Question (SPEC_FULL.md §11) decision adopted from
// original_source's occurrence-based disambiguation.
var ErrAmbiguousSymbol = errors.New("dispatch: ambiguous symbol, supply an occurrence index")

// ErrInvalidInput is returned when a tool's arguments fail to decode or
// omit a required field.
var ErrInvalidInput = errors.New("dispatch: invalid input")

// ErrPartialEdit is returned when a rename halts partway through a
// multi-file WorkspaceEdit.
var ErrPartialEdit = errors.New("dispatch: partial edit")

// Property describes one named input field.
type Property struct {
	Type        string
	Description string
}

// Schema is the JSON Schema subset spec.md §4.8 calls for: an object
// with typed named properties and a required list.
type Schema struct {
	Type       string
	Properties map[string]Property
	Required   []string
}

// Tool is the capability set spec.md §9's Design Notes describe:
// {name(), schema(), invoke(argsJson, ctx) -> resultJson}. Argument
// decoding happens inside Invoke, not in the dispatcher.
type Tool interface {
	Name() string
	Description() string
	InputSchema() Schema
	Invoke(ctx context.Context, argsJSON json.RawMessage) (json.RawMessage, error)
}

// TimeoutOverrider is implemented by tools that need more than
// defaultTimeout, e.g. a directory-scoped findSymbol.
type TimeoutOverrider interface {
	Timeout() time.Duration
}

// Result is the dispatcher's uniform response envelope.
type Result struct {
	OK      bool   `json:"ok"`
	Text    string `json:"text,omitempty"`
	Error   bool   `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Dispatcher is a registry of named Tools, invoked by name with a
// per-tool timeout.
type Dispatcher struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{tools: make(map[string]Tool)}
}

// Register adds tool to the registry. Registering a name twice is an
// error, matching the teacher's ToolRegistry.Register.
func (d *Dispatcher) Register(tool Tool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[tool.Name()]; exists {
		return fmt.Errorf("dispatch: tool %q already registered", tool.Name())
	}
	d.tools[tool.Name()] = tool
	return nil
}

// Tools returns every registered tool, for a schema-advertisement front
// end to enumerate.
func (d *Dispatcher) Tools() []Tool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Tool, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, t)
	}
	return out
}

// Dispatch invokes the named tool with a per-tool timeout. On timeout,
// the tool's work context is cancelled; if the tool is blocked inside a
// Transport call, the underlying request is abandoned rather than
// cancelled at the LS (see internal/transport).
func (d *Dispatcher) Dispatch(ctx context.Context, name string, argsJSON json.RawMessage) Result {
	d.mu.RLock()
	tool, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		return errorResult("InvalidInput", fmt.Sprintf("unknown tool %q", name))
	}

	timeout := defaultTimeout
	if to, ok := tool.(TimeoutOverrider); ok {
		timeout = to.Timeout()
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultJSON, err := tool.Invoke(toolCtx, argsJSON)
	if err != nil {
		return errorResult(classify(err), err.Error())
	}
	return Result{OK: true, Text: string(resultJSON)}
}

func errorResult(kind, message string) Result {
	return Result{Error: true, Kind: kind, Message: message}
}

// classify maps a returned error onto spec.md §7's taxonomy by walking
// the sentinel chain each lower layer already establishes.
func classify(err error) string {
	switch {
	case errors.Is(err, manager.ErrUnsupportedLanguage):
		return "UnsupportedLanguage"
	case errors.Is(err, manager.ErrServerFailed), errors.Is(err, lsproc.ErrServerDown):
		return "ServerDown"
	case errors.Is(err, lsproc.ErrStartupFailed):
		return "StartupFailed"
	case errors.Is(err, transport.ErrClosed):
		return "TransportClosed"
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, ErrSymbolNotFound):
		return "SymbolNotFound"
	case errors.Is(err, ErrAmbiguousSymbol):
		return "AmbiguousSymbol"
	case errors.Is(err, editengine.ErrEditConflict):
		return "EditConflict"
	case errors.Is(err, ErrPartialEdit):
		return "PartialEdit"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, editengine.ErrInvalidRange):
		return "InvalidInput"
	default:
		return "LspError"
	}
}
