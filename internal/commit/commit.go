// internal/commit/commit.go
package commit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
	"time"

	"arca/internal/tree"
	"arca/internal/vcserrors"
)

// Commit is an immutable snapshot with provenance. Its identity is a
// sha256 digest over a canonical encoding of the tree contents, message,
// author, timestamp and parent id, so two commits differing only in
// timestamp still get distinct ids. There are no mutators.
type Commit struct {
	id        string
	message   string
	author    string
	timestamp time.Time
	parentID  string
	tree      *tree.FileTree
}

// New builds a commit from the supplied tree, capturing the current time.
// The tree is deep-copied: the caller's value is never aliased.
func New(message, author, parentID string, t *tree.FileTree) (*Commit, error) {
	return NewAt(message, author, parentID, t, time.Now())
}

// NewAt is New with an explicit timestamp. Used by deserialization and
// tests; the digest depends on the timestamp, so it must round-trip
// exactly.
func NewAt(message, author, parentID string, t *tree.FileTree, ts time.Time) (*Commit, error) {
	message = strings.TrimSpace(message)
	author = strings.TrimSpace(author)
	if message == "" {
		return nil, vcserrors.Validation("commit message cannot be empty", nil)
	}
	if author == "" {
		return nil, vcserrors.Validation("commit author cannot be empty", nil)
	}
	if t == nil {
		t = tree.New()
	}

	c := &Commit{
		message:   message,
		author:    author,
		timestamp: ts,
		parentID:  parentID,
		tree:      t.Clone(),
	}
	c.id = c.digest()
	return c, nil
}

// Rehydrate rebuilds a commit loaded from storage and verifies that the
// recomputed digest matches the stored id. A mismatch means the stored
// record was corrupted or tampered with.
func Rehydrate(id, message, author, parentID string, t *tree.FileTree, ts time.Time) (*Commit, error) {
	c, err := NewAt(message, author, parentID, t, ts)
	if err != nil {
		return nil, err
	}
	if c.id != id {
		return nil, vcserrors.Storage(
			fmt.Sprintf("commit digest mismatch: stored %s, computed %s", shorten(id), shorten(c.id)), nil)
	}
	return c, nil
}

func (c *Commit) ID() string           { return c.id }
func (c *Commit) Message() string      { return c.message }
func (c *Commit) Author() string       { return c.author }
func (c *Commit) Timestamp() time.Time { return c.timestamp }

// ParentID returns the parent commit id, or "" for the initial commit.
func (c *Commit) ParentID() string { return c.parentID }

func (c *Commit) HasParent() bool { return c.parentID != "" }

func (c *Commit) IsInitial() bool { return c.parentID == "" }

// Files enumerates the snapshot's file entries, lexicographically by path.
func (c *Commit) Files() []tree.FileEntry {
	return c.tree.AllFiles()
}

// Find looks up a path in the snapshot tree.
func (c *Commit) Find(path string) (*tree.Node, bool) {
	return c.tree.Find(path)
}

func (c *Commit) FileCount() int {
	return c.tree.FileCount()
}

// RenderTree dumps the snapshot tree for diagnostics.
func (c *Commit) RenderTree() string {
	return c.tree.Render()
}

// FormattedTimestamp is presentation only.
func (c *Commit) FormattedTimestamp() string {
	return c.timestamp.Format("2006-01-02 15:04:05")
}

// ShortMessage truncates the message for list views.
func (c *Commit) ShortMessage(max int) string {
	if len(c.message) <= max || max < 4 {
		return c.message
	}
	return c.message[:max-3] + "..."
}

// digest computes the canonical content hash. Every field is written
// length-prefixed so no two distinct commits share an encoding.
func (c *Commit) digest() string {
	h := sha256.New()
	writeField(h, "arca-commit-v1")
	writeField(h, c.parentID)
	writeField(h, c.author)
	writeField(h, c.message)
	writeField(h, fmt.Sprintf("%d", c.timestamp.UnixNano()))
	for _, entry := range c.tree.AllFiles() {
		writeField(h, entry.Path)
		writeField(h, entry.Node.ContentHash())
		writeField(h, fmt.Sprintf("%d", entry.Node.Size()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	fmt.Fprintf(h, "%d:%s", len(s), s)
}

func shorten(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
