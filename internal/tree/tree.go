// internal/tree/tree.go
package tree

import (
	"fmt"
	"sort"
	"strings"

	"arca/internal/vcserrors"
)

// FileTree is the N-ary tree for one full directory snapshot. The root is
// always a directory with an empty name; every node is reachable by a
// unique sequence of child-name lookups. Paths use forward slashes.
type FileTree struct {
	root *Node
}

// FileEntry is one file node paired with its full path from the root.
type FileEntry struct {
	Path string
	Node *Node
}

func New() *FileTree {
	return &FileTree{root: NewDirNode("")}
}

func (t *FileTree) Root() *Node { return t.root }

// Insert adds a file at path, creating missing intermediate directories.
// Inserting over an existing file replaces it. If any segment of the path
// already exists with the wrong variant (an intermediate segment as a
// file, or the terminal segment as a directory) Insert fails with a
// structural conflict and leaves the tree's prior entries intact.
func (t *FileTree) Insert(path, contentHash string, size int64) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return vcserrors.Validation("empty path", nil)
	}

	current := t.root
	for _, part := range parts[:len(parts)-1] {
		child, ok := current.Child(part)
		if !ok {
			child = NewDirNode(part)
			if err := current.AddChild(child); err != nil {
				return err
			}
		} else if child.IsFile() {
			return vcserrors.Conflict(fmt.Sprintf("path segment %q of %q already exists as a file", part, path))
		}
		current = child
	}

	name := parts[len(parts)-1]
	if existing, ok := current.Child(name); ok && !existing.IsFile() {
		return vcserrors.Conflict(fmt.Sprintf("path %q already exists as a directory", path))
	}
	return current.AddChild(NewFileNode(name, contentHash, size))
}

// Find returns the node at path without mutating the tree. The empty
// path resolves to the root.
func (t *FileTree) Find(path string) (*Node, bool) {
	parts := splitPath(path)
	current := t.root
	for _, part := range parts {
		child, ok := current.Child(part)
		if !ok {
			return nil, false
		}
		current = child
	}
	return current, true
}

// AllFiles enumerates every file node as (path, node) pairs, ordered
// lexicographically by path. The ordering is what makes history display
// and commit digests reproducible.
func (t *FileTree) AllFiles() []FileEntry {
	var entries []FileEntry
	collectFiles(t.root, "", &entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries
}

func collectFiles(node *Node, prefix string, entries *[]FileEntry) {
	for name, child := range node.children {
		childPath := name
		if prefix != "" {
			childPath = prefix + "/" + name
		}
		if child.IsFile() {
			*entries = append(*entries, FileEntry{Path: childPath, Node: child})
		} else {
			collectFiles(child, childPath, entries)
		}
	}
}

func (t *FileTree) FileCount() int {
	return len(t.AllFiles())
}

func (t *FileTree) IsEmpty() bool {
	return t.root.ChildCount() == 0
}

// Render returns an indented textual dump of the tree for diagnostics.
func (t *FileTree) Render() string {
	var b strings.Builder
	renderNode(t.root, 0, &b)
	return b.String()
}

func renderNode(node *Node, level int, b *strings.Builder) {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child := node.children[name]
		b.WriteString(strings.Repeat("  ", level))
		if child.IsFile() {
			fmt.Fprintf(b, "%s (%s)\n", name, child.FormatSize())
		} else {
			fmt.Fprintf(b, "%s/\n", name)
			renderNode(child, level+1, b)
		}
	}
}

// Clone returns a deep copy sharing no nodes with the original.
func (t *FileTree) Clone() *FileTree {
	return &FileTree{root: t.root.clone()}
}

func splitPath(path string) []string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}
