// internal/tree/node.go
package tree

import (
	"fmt"

	"arca/internal/vcserrors"
)

// Node is a single entry in a snapshot tree: either a file leaf carrying
// the content hash and byte size, or a directory holding children keyed
// by name. The discriminant is fixed at construction.
type Node struct {
	name     string
	isFile   bool
	hash     string
	size     int64
	children map[string]*Node
}

// NewFileNode creates a file leaf. File nodes never have children.
func NewFileNode(name, contentHash string, size int64) *Node {
	return &Node{
		name:   name,
		isFile: true,
		hash:   contentHash,
		size:   size,
	}
}

// NewDirNode creates a directory node with no children.
func NewDirNode(name string) *Node {
	return &Node{
		name:     name,
		children: make(map[string]*Node),
	}
}

func (n *Node) Name() string { return n.name }

func (n *Node) IsFile() bool { return n.isFile }

// ContentHash returns the hex digest of the file content. Empty for
// directory nodes.
func (n *Node) ContentHash() string { return n.hash }

// Size returns the file size in bytes. Zero for directory nodes.
func (n *Node) Size() int64 { return n.size }

// AddChild attaches a child to a directory node. An existing child with
// the same name is replaced (a single directory scan never produces true
// duplicates, so last write wins). Adding to a file node is a structural
// conflict.
func (n *Node) AddChild(child *Node) error {
	if n.isFile {
		return vcserrors.Conflict(fmt.Sprintf("cannot add child %q to file node %q", child.name, n.name))
	}
	n.children[child.name] = child
	return nil
}

// Child returns the named child, or false if absent. Always false on
// file nodes.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

func (n *Node) ChildCount() int { return len(n.children) }

// FormatSize renders the file size for display. Presentation only; not
// part of any integrity calculation.
func (n *Node) FormatSize() string {
	const (
		kb = 1024
		mb = 1024 * 1024
	)
	switch {
	case n.size < kb:
		return fmt.Sprintf("%d B", n.size)
	case n.size < mb:
		return fmt.Sprintf("%.1f KB", float64(n.size)/kb)
	default:
		return fmt.Sprintf("%.1f MB", float64(n.size)/mb)
	}
}

func (n *Node) clone() *Node {
	c := &Node{
		name:   n.name,
		isFile: n.isFile,
		hash:   n.hash,
		size:   n.size,
	}
	if n.children != nil {
		c.children = make(map[string]*Node, len(n.children))
		for name, child := range n.children {
			c.children[name] = child.clone()
		}
	}
	return c
}
