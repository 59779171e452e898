package hierarchy

import (
	"path"
	"strings"

	"github.com/eykd/dmearchive/internal/naming"
)

// Node is one collection in the archive. Children point at their parent;
// parents hold no references to children.
type Node struct {
	Type    CollectionType
	Name    string // the identity value the segment was built from
	Segment string // prefix + name, as it appears in the path
	Parent  *Node
	// Base is the archive root a parentless node hangs from, e.g.
	// "/FNL_SF_Archive". It is ignored when Parent is set.
	Base string
	// Identity is the record the node was derived from.
	Identity naming.Identity
	// Attributes is metadata supplied with the node rather than derived
	// from Identity.
	Attributes []Attribute
}

// Attribute is one name/value pair carried by a Node.
type Attribute struct {
	Name  string
	Value string
}

// Path returns the absolute archive path of n.
func (n *Node) Path() string {
	if n.Parent != nil {
		return n.Parent.Path() + "/" + n.Segment
	}
	return strings.TrimSuffix(n.Base, "/") + "/" + n.Segment
}

// Ancestors returns the parents of n, root first.
func (n *Node) Ancestors() []*Node {
	var out []*Node
	for p := n.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Child returns a new node of type t below n, using the default prefix for t.
func (n *Node) Child(t CollectionType, name string) *Node {
	return &Node{
		Type:     t,
		Name:     name,
		Segment:  t.DefaultPrefix() + segmentValue(name),
		Parent:   n,
		Identity: n.Identity,
	}
}

// DataObjectPath is the archive path of a file registered below parent.
func DataObjectPath(parent *Node, fileName string) string {
	return parent.Path() + "/" + path.Base(fileName)
}

func segmentValue(v string) string {
	if v == "" {
		return naming.Unspecified
	}
	return v
}
