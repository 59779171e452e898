package hierarchy

import (
	"fmt"

	"github.com/eykd/dmearchive/internal/naming"
)

// Builder turns identity records into linked collection nodes for one
// template. It is pure: equal inputs give equal paths.
type Builder struct {
	tmpl Template
}

// NewBuilder validates tmpl and returns a builder for it.
func NewBuilder(tmpl Template) (*Builder, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &Builder{tmpl: tmpl}, nil
}

// Template returns the template in use.
func (b *Builder) Template() Template {
	return b.tmpl
}

// Chain returns the nodes from the root level down to recordType, each
// linked to its parent.
func (b *Builder) Chain(recordType CollectionType, id naming.Identity) ([]*Node, error) {
	if !recordType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollectionType, recordType)
	}
	d := b.tmpl.depth(recordType)
	if d < 0 {
		return nil, fmt.Errorf("%w: %s is not a level of template %s", ErrInvalidCollectionType, recordType, b.tmpl.Name)
	}
	chain := make([]*Node, 0, d+1)
	var parent *Node
	for _, l := range b.tmpl.Levels[:d+1] {
		name := id.Get(l.Field)
		n := &Node{
			Type:     l.Type,
			Name:     name,
			Segment:  l.Prefix + segmentValue(name),
			Parent:   parent,
			Base:     b.tmpl.Base,
			Identity: id,
		}
		chain = append(chain, n)
		parent = n
	}
	return chain, nil
}

// Leaf returns the node for recordType with its parents linked.
func (b *Builder) Leaf(recordType CollectionType, id naming.Identity) (*Node, error) {
	chain, err := b.Chain(recordType, id)
	if err != nil {
		return nil, err
	}
	return chain[len(chain)-1], nil
}

// Path returns the archive path of recordType for id.
func (b *Builder) Path(recordType CollectionType, id naming.Identity) (string, error) {
	n, err := b.Leaf(recordType, id)
	if err != nil {
		return "", err
	}
	return n.Path(), nil
}

// Named returns a node of recordType below parent (nil for the root level)
// whose segment is the level prefix followed by segment. name is the value
// recorded as the collection name.
func (b *Builder) Named(recordType CollectionType, parent *Node, name, segment string) (*Node, error) {
	d := b.tmpl.depth(recordType)
	if !recordType.Valid() || d < 0 {
		return nil, fmt.Errorf("%w: %q is not a level of template %s", ErrInvalidCollectionType, recordType, b.tmpl.Name)
	}
	n := &Node{
		Type:    recordType,
		Name:    name,
		Segment: b.tmpl.Levels[d].Prefix + segmentValue(segment),
		Parent:  parent,
		Base:    b.tmpl.Base,
	}
	if parent != nil {
		n.Identity = parent.Identity
	}
	return n, nil
}
