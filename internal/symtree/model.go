// Package symtree implements the in-memory symbol tree, name-path
// resolution, and the pure traversal helpers used across the engine.
package symtree

import (
	"strings"
)

// Position is a zero-based (line, column) pair using UTF-16 code-unit
// offsets, matching the LSP wire format.
type Position struct {
	Line      int
	Character int
}

// Less reports whether p sorts before o.
func (p Position) Less(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Character < o.Character
}

// Range is a half-open [Start, End) span of positions.
type Range struct {
	Start Position
	End   Position
}

// Contains reports whether r strictly contains o (o is a proper subset).
func (r Range) Contains(o Range) bool {
	return !o.Start.Less(r.Start) && !r.End.Less(o.End) && (o.Start != r.Start || o.End != r.End)
}

// ContainsPosition reports whether p falls within [Start, End).
func (r Range) ContainsPosition(p Position) bool {
	return !p.Less(r.Start) && p.Less(r.End)
}

// Location pairs a file with a range inside it. URI holds the file's
// filesystem path: lsproc converts LSP file URIs to paths.
type Location struct {
	URI   string
	Range Range
}

// TextEdit replaces the byte span covered by Range with NewText.
type TextEdit struct {
	Range   Range
	NewText string
}

// WorkspaceEdit maps a file's filesystem path to its ordered,
// non-overlapping edits.
// EditEngine applies each file's edits in reverse document order so that an
// earlier edit never shifts the range of a later one.
type WorkspaceEdit map[string][]TextEdit

// Kind mirrors the LSP SymbolKind enumeration.
type Kind int

const (
	KindFile Kind = iota + 1
	KindModule
	KindNamespace
	KindPackage
	KindClass
	KindMethod
	KindProperty
	KindField
	KindConstructor
	KindEnum
	KindInterface
	KindFunction
	KindVariable
	KindConstant
	KindString
	KindNumber
	KindBoolean
	KindArray
	KindObject
	KindKey
	KindNull
	KindEnumMember
	KindStruct
	KindEvent
	KindOperator
	KindTypeParameter
)

var kindNames = map[Kind]string{
	KindFile: "File", KindModule: "Module", KindNamespace: "Namespace",
	KindPackage: "Package", KindClass: "Class", KindMethod: "Method",
	KindProperty: "Property", KindField: "Field", KindConstructor: "Constructor",
	KindEnum: "Enum", KindInterface: "Interface", KindFunction: "Function",
	KindVariable: "Variable", KindConstant: "Constant", KindString: "String",
	KindNumber: "Number", KindBoolean: "Boolean", KindArray: "Array",
	KindObject: "Object", KindKey: "Key", KindNull: "Null",
	KindEnumMember: "EnumMember", KindStruct: "Struct", KindEvent: "Event",
	KindOperator: "Operator", KindTypeParameter: "TypeParameter",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

var kindByName map[string]Kind

func init() {
	kindByName = make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		kindByName[name] = k
	}
}

// ParseKind resolves a SymbolKind's display name (e.g. "Class",
// "Function") back to its Kind value, for tool-layer inputs that name
// kinds as strings.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindByName[name]
	return k, ok
}

// Node is one entry in a file's symbol arena. Children are referenced by
// index rather than pointer so the tree serializes flatly and carries no
// owning back-reference cycles; ParentIndex is -1 for a file root.
type Node struct {
	Name           string
	Kind           Kind
	Range          Range
	SelectionRange Range
	BodyText       string
	ParentIndex    int
	ChildIndices   []int
}

// Tree is the arena of Nodes extracted for one file at one content version.
// ContentHash, when set by the producer, pins the tree to the exact bytes
// it was extracted from, letting a later writer detect that the file
// changed underneath it (EditConflict).
type Tree struct {
	FilePath    string
	ContentHash string
	Nodes       []Node
	Roots       []int
}

// NewTree creates an empty tree for filePath.
func NewTree(filePath string) *Tree {
	return &Tree{FilePath: filePath}
}

// AddNode appends a node under parentIndex (-1 for a root) and returns its
// index in the arena.
func (t *Tree) AddNode(n Node, parentIndex int) int {
	n.ParentIndex = parentIndex
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, n)
	if parentIndex < 0 {
		t.Roots = append(t.Roots, idx)
	} else {
		t.Nodes[parentIndex].ChildIndices = append(t.Nodes[parentIndex].ChildIndices, idx)
	}
	return idx
}

// Symbol is a resolved handle into a Tree: the tree it belongs to plus the
// arena index of the node. Symbol values are cheap to copy and compare.
type Symbol struct {
	Tree  *Tree
	Index int
}

// Node returns the underlying arena node.
func (s Symbol) Node() Node {
	return s.Tree.Nodes[s.Index]
}

// Valid reports whether s refers to a real node.
func (s Symbol) Valid() bool {
	return s.Tree != nil && s.Index >= 0 && s.Index < len(s.Tree.Nodes)
}

// Children returns the direct children of s in original order.
func (s Symbol) Children() []Symbol {
	node := s.Node()
	out := make([]Symbol, 0, len(node.ChildIndices))
	for _, idx := range node.ChildIndices {
		out = append(out, Symbol{Tree: s.Tree, Index: idx})
	}
	return out
}

// Parent returns the parent symbol and true, or the zero Symbol and false
// when s is a file root.
func (s Symbol) Parent() (Symbol, bool) {
	node := s.Node()
	if node.ParentIndex < 0 {
		return Symbol{}, false
	}
	return Symbol{Tree: s.Tree, Index: node.ParentIndex}, true
}

// NamePath is an ordered sequence of name segments. An absolute path's
// first element is conceptually anchored at a file root; String renders
// that as a leading "/".
type NamePath struct {
	Segments []string
	Absolute bool
}

// ParseNamePath splits "a/b/c" or "/a/b/c" into a NamePath.
func ParseNamePath(s string) NamePath {
	absolute := strings.HasPrefix(s, "/")
	s = strings.TrimPrefix(s, "/")
	var segments []string
	if s != "" {
		segments = strings.Split(s, "/")
	}
	return NamePath{Segments: segments, Absolute: absolute}
}

// String renders the NamePath back to its slash-joined form.
func (p NamePath) String() string {
	joined := strings.Join(p.Segments, "/")
	if p.Absolute {
		return "/" + joined
	}
	return joined
}

// NameOf ascends s's ancestor chain via ParentIndex and returns the
// resulting NamePath, absolute when the topmost ancestor is a file root
// (i.e. always, since every node ultimately reaches a root in Tree.Roots).
func NameOf(s Symbol) NamePath {
	var segments []string
	cur := s
	for {
		segments = append([]string{cur.Node().Name}, segments...)
		parent, ok := cur.Parent()
		if !ok {
			break
		}
		cur = parent
	}
	return NamePath{Segments: segments, Absolute: true}
}

// IterAncestors returns s's ancestors from immediate parent to file root.
// The slice is computed eagerly (finite, not restartable per the caller
// contract, but a fresh slice each call satisfies that trivially).
func IterAncestors(s Symbol) []Symbol {
	var out []Symbol
	cur := s
	for {
		parent, ok := cur.Parent()
		if !ok {
			return out
		}
		out = append(out, parent)
		cur = parent
	}
}

// IterDescendants returns all descendants of s in pre-order.
func IterDescendants(s Symbol) []Symbol {
	var out []Symbol
	var walk func(Symbol)
	walk = func(n Symbol) {
		for _, child := range n.Children() {
			out = append(out, child)
			walk(child)
		}
	}
	walk(s)
	return out
}

// MatchOptions controls FindByNamePath.
type MatchOptions struct {
	SubstringMatch bool
	KindsIncluded  map[Kind]bool
	MaxResults     int
	MaxDepth       int
}

// FindByNamePath resolves NamePath p against tree using pre-order
// traversal with early termination at opts.MaxResults. When
// opts.SubstringMatch is true, only the final segment is matched as a
// case-sensitive substring; every earlier segment must match exactly.
//
// An absolute p (leading "/") anchors its first segment at a file root.
// A relative p may anchor its first segment at any node in the tree —
// per spec.md's NamePath resolution, S0 need only be some node, not
// necessarily a root — so every node is tried as a chain start, in
// pre-order.
func FindByNamePath(tree *Tree, p NamePath, opts MatchOptions) []Symbol {
	if len(p.Segments) == 0 {
		return nil
	}
	var results []Symbol
	full := func() bool {
		return opts.MaxResults > 0 && len(results) >= opts.MaxResults
	}
	appendMatches := func(node Symbol) {
		results = append(results, matchChain(node, p.Segments, 0, opts, 1)...)
		if opts.MaxResults > 0 && len(results) > opts.MaxResults {
			results = results[:opts.MaxResults]
		}
	}

	if p.Absolute {
		for _, rootIdx := range tree.Roots {
			if full() {
				break
			}
			appendMatches(Symbol{Tree: tree, Index: rootIdx})
		}
		return results
	}

	var walk func(Symbol) bool
	walk = func(node Symbol) bool {
		if full() {
			return false
		}
		appendMatches(node)
		for _, child := range node.Children() {
			if !walk(child) {
				return false
			}
		}
		return true
	}
	for _, rootIdx := range tree.Roots {
		if !walk(Symbol{Tree: tree, Index: rootIdx}) {
			break
		}
	}
	return results
}

func matchChain(node Symbol, segments []string, segIdx int, opts MatchOptions, depth int) []Symbol {
	if opts.MaxDepth > 0 && depth > opts.MaxDepth {
		return nil
	}
	last := segIdx == len(segments)-1
	if !segmentMatches(node.Node().Name, segments[segIdx], last && opts.SubstringMatch) {
		return nil
	}
	if last {
		if !kindAllowed(node.Node().Kind, opts.KindsIncluded) {
			return nil
		}
		return []Symbol{node}
	}
	var out []Symbol
	for _, child := range node.Children() {
		if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
			break
		}
		out = append(out, matchChain(child, segments, segIdx+1, opts, depth+1)...)
	}
	return out
}

func segmentMatches(name, segment string, substring bool) bool {
	if substring {
		return strings.Contains(name, segment)
	}
	return name == segment
}

func kindAllowed(k Kind, allowed map[Kind]bool) bool {
	if len(allowed) == 0 {
		return true
	}
	return allowed[k]
}

// SmallestContaining returns the smallest-range symbol in tree whose range
// contains pos, or the zero Symbol and false when none does. Used by
// SymbolRetriever to resolve the enclosing symbol of a reference location.
func SmallestContaining(tree *Tree, pos Position) (Symbol, bool) {
	var best Symbol
	found := false
	var walk func(Symbol)
	walk = func(s Symbol) {
		node := s.Node()
		if !node.Range.ContainsPosition(pos) {
			return
		}
		if !found || rangeSize(node.Range) < rangeSize(best.Node().Range) {
			best = s
			found = true
		}
		for _, child := range s.Children() {
			walk(child)
		}
	}
	for _, rootIdx := range tree.Roots {
		walk(Symbol{Tree: tree, Index: rootIdx})
	}
	return best, found
}

func rangeSize(r Range) int {
	lines := r.End.Line - r.Start.Line
	return lines*100000 + (r.End.Character - r.Start.Character)
}

// WellFormed checks the tree invariants from spec.md §3/§8: child ranges
// strictly contained in parent ranges, siblings pairwise non-overlapping,
// selectionRange within range.
func WellFormed(tree *Tree) bool {
	for i := range tree.Nodes {
		node := &tree.Nodes[i]
		if node.SelectionRange.Start.Less(node.Range.Start) || node.Range.End.Less(node.SelectionRange.End) {
			return false
		}
		if node.ParentIndex >= 0 {
			parent := tree.Nodes[node.ParentIndex]
			if !parent.Range.Contains(node.Range) {
				return false
			}
		}
		siblings := node.ChildIndices
		for a := 0; a < len(siblings); a++ {
			for b := a + 1; b < len(siblings); b++ {
				ra := tree.Nodes[siblings[a]].Range
				rb := tree.Nodes[siblings[b]].Range
				if rangesOverlap(ra, rb) {
					return false
				}
			}
		}
	}
	return true
}

func rangesOverlap(a, b Range) bool {
	return a.Start.Less(b.End) && b.Start.Less(a.End)
}
