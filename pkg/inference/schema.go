/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: schema.go
Description: Schema tree for structure inference. A SchemaNode records the kinds
seen at one path, how often, and for mappings which fields appeared in how many
of them. Type sets only grow. Merging two trees sums counts and unions shapes,
so merge order and grouping never change the result.
*/

package inference

import (
	"sort"

	"github.com/kleascm/akaylee-reader/pkg/value"
)

// TypeSet is a bitset over value kinds
type TypeSet uint16

// Has reports whether k is in the set
func (t TypeSet) Has(k value.Kind) bool { return t&(1<<k) != 0 }

// Add returns the set with k included
func (t TypeSet) Add(k value.Kind) TypeSet { return t | 1<<k }

// Union returns the union of two sets
func (t TypeSet) Union(o TypeSet) TypeSet { return t | o }

// Contains reports whether every kind of o is in t
func (t TypeSet) Contains(o TypeSet) bool { return t&o == o }

// Kinds lists the kinds in the set in kind order
func (t TypeSet) Kinds() []value.Kind {
	var out []value.Kind
	for _, k := range value.Kinds {
		if t.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Names lists kind names in alphabetical order
func (t TypeSet) Names() []string {
	kinds := t.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	sort.Strings(names)
	return names
}

// Field is one named child of a mapping node
type Field struct {
	Name string
	Node *SchemaNode
}

// SchemaNode describes the inferred shape at one path
type SchemaNode struct {
	Types TypeSet
	Count int64 // values merged at this path, nulls included
	Nulls int64 // null values merged at this path

	// Present counts parent mappings that held this field. Zero on the root
	// and on sequence elements.
	Present int64
	// Missing counts parent mappings that lacked this field
	Missing int64

	Maps   int64    // mapping values merged here
	Fields []*Field // first-seen order
	Elem   *SchemaNode

	index map[string]int
}

// NewSchemaNode returns an empty node
func NewSchemaNode() *SchemaNode {
	return &SchemaNode{}
}

// Nullable reports whether a value at this path may be null or absent
func (n *SchemaNode) Nullable() bool {
	return n.Types.Has(value.KindNull) || n.Missing > 0
}

// Field returns the child for name, or nil
func (n *SchemaNode) Field(name string) *SchemaNode {
	if i, ok := n.index[name]; ok {
		return n.Fields[i].Node
	}
	return nil
}

// child returns the child for name, creating it on first sight
func (n *SchemaNode) child(name string) *SchemaNode {
	if node := n.Field(name); node != nil {
		return node
	}
	if n.index == nil {
		n.index = make(map[string]int)
	}
	node := NewSchemaNode()
	n.index[name] = len(n.Fields)
	n.Fields = append(n.Fields, &Field{Name: name, Node: node})
	return node
}

// settle recomputes field absence from the mapping count
func (n *SchemaNode) settle() {
	for _, f := range n.Fields {
		f.Node.Missing = n.Maps - f.Node.Present
	}
}

// observe merges one value into the node
func (n *SchemaNode) observe(v value.Value) {
	n.Types = n.Types.Add(v.Kind())
	n.Count++

	switch v.Kind() {
	case value.KindNull:
		n.Nulls++
	case value.KindMapping:
		n.Maps++
		for _, p := range v.Pairs() {
			c := n.child(p.Key)
			c.Present++
			c.observe(p.Value)
		}
		n.settle()
	case value.KindSequence:
		for _, item := range v.Items() {
			if n.Elem == nil {
				n.Elem = NewSchemaNode()
			}
			n.Elem.observe(item)
		}
	}
}

// Merge folds src into dst. src is not modified and shares nothing with dst
// afterwards.
func Merge(dst, src *SchemaNode) {
	if src == nil {
		return
	}
	dst.Types = dst.Types.Union(src.Types)
	dst.Count += src.Count
	dst.Nulls += src.Nulls
	dst.Present += src.Present
	dst.Maps += src.Maps

	for _, f := range src.Fields {
		if existing := dst.Field(f.Name); existing != nil {
			Merge(existing, f.Node)
			continue
		}
		c := dst.child(f.Name)
		Merge(c, f.Node)
	}
	if len(dst.Fields) > 0 {
		dst.settle()
	}

	if src.Elem != nil {
		if dst.Elem == nil {
			dst.Elem = NewSchemaNode()
		}
		Merge(dst.Elem, src.Elem)
	}
}

// Clone returns a deep copy
func (n *SchemaNode) Clone() *SchemaNode {
	out := NewSchemaNode()
	Merge(out, n)
	out.Missing = n.Missing
	return out
}

// MergeAll reduces schemas pairwise into a new tree. Inputs are not modified.
func MergeAll(nodes ...*SchemaNode) *SchemaNode {
	level := make([]*SchemaNode, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			level = append(level, n.Clone())
		}
	}
	if len(level) == 0 {
		return NewSchemaNode()
	}
	for len(level) > 1 {
		next := make([]*SchemaNode, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				Merge(level[i], level[i+1])
			}
			next = append(next, level[i])
		}
		level = next
	}
	return level[0]
}

// Size counts nodes in the tree
func (n *SchemaNode) Size() int {
	if n == nil {
		return 0
	}
	size := 1
	for _, f := range n.Fields {
		size += f.Node.Size()
	}
	return size + n.Elem.Size()
}

// SameShape compares type sets, nullability and field sets, ignoring counts
// and field order
func SameShape(a, b *SchemaNode) bool {
	return compare(a, b, false)
}

// Equal compares shapes and counts, ignoring field order
func Equal(a, b *SchemaNode) bool {
	return compare(a, b, true)
}

func compare(a, b *SchemaNode, counts bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Types != b.Types || a.Nullable() != b.Nullable() || len(a.Fields) != len(b.Fields) {
		return false
	}
	if counts && (a.Count != b.Count || a.Nulls != b.Nulls || a.Present != b.Present || a.Missing != b.Missing || a.Maps != b.Maps) {
		return false
	}
	for _, f := range a.Fields {
		other := b.Field(f.Name)
		if other == nil || !compare(f.Node, other, counts) {
			return false
		}
	}
	return compare(a.Elem, b.Elem, counts)
}
