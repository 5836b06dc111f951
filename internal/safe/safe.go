// internal/safe/safe.go
package safe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"arca/internal/vcserrors"
)

// BlobMeta stores metadata about stored content
type BlobMeta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	RefCount   uint32    `json:"ref_count"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

// Safe is the content-addressed blob store: blob files fanned out under
// root by hash prefix, metadata in badger, an LRU read cache in front.
// The hash identity always covers the uncompressed bytes, and every
// read-back is verified against it.
type Safe struct {
	root     string
	db       *badger.DB
	cache    *lru.Cache[string, []byte]
	compress *compressionManager
}

// Options configures Safe behavior
type Options struct {
	Root        string // Root directory path
	CacheSize   int    // Number of items to cache
	Compression CompressionOptions
}

// New creates a new Safe instance
func New(db *badger.DB, opts Options) (*Safe, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}

	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	if opts.CacheSize == 0 {
		opts.CacheSize = 1000
	}
	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	if opts.Compression.MinSize == 0 && opts.Compression.Level == 0 {
		opts.Compression = DefaultCompressionOptions()
	}
	cm, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compression manager: %w", err)
	}

	return &Safe{
		root:     opts.Root,
		db:       db,
		cache:    cache,
		compress: cm,
	}, nil
}

// Store saves content and returns its hash. Duplicate content is not
// rewritten; its reference count is bumped instead. name is only used
// for the compression skip list.
func (s *Safe) Store(name string, content []byte) (string, error) {
	if content == nil {
		content = []byte{} // Empty files are valid
	}

	hash := HashContent(content)

	exists, err := s.Exists(hash)
	if err != nil {
		return "", fmt.Errorf("checking existence: %w", err)
	}

	if exists {
		if err := s.incrementRefCount(hash); err != nil {
			return "", fmt.Errorf("incrementing ref count: %w", err)
		}
		return hash, nil
	}

	stored, compressed := s.compress.compress(name, content)

	blobPath := s.blobPath(hash)
	if err := os.MkdirAll(filepath.Dir(blobPath), 0755); err != nil {
		return "", vcserrors.Storage("creating blob directory", err)
	}

	if err := os.WriteFile(blobPath, stored, 0644); err != nil {
		return "", vcserrors.Storage("writing blob file", err)
	}

	meta := BlobMeta{
		Hash:       hash,
		Size:       int64(len(content)),
		RefCount:   1,
		Compressed: compressed,
		CreatedAt:  time.Now(),
		AccessedAt: time.Now(),
	}

	if err := s.storeMeta(meta); err != nil {
		// Cleanup on failure
		os.Remove(blobPath)
		return "", vcserrors.Storage("storing blob metadata", err)
	}

	s.cache.Add(hash, content)

	return hash, nil
}

// Get retrieves content by hash, verifying integrity on the way out.
func (s *Safe) Get(hash string) ([]byte, error) {
	if !s.isValidHash(hash) {
		return nil, vcserrors.Validation(fmt.Sprintf("invalid content hash: %q", hash), nil)
	}

	// Check cache first
	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	meta, err := s.getMeta(hash)
	if err != nil {
		return nil, err
	}

	blobPath := s.blobPath(hash)
	content, err := os.ReadFile(blobPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vcserrors.Storage(fmt.Sprintf("blob file missing for %s", hash), err)
		}
		return nil, vcserrors.Storage("reading blob", err)
	}

	if meta.Compressed {
		content, err = s.compress.decompress(content)
		if err != nil {
			return nil, vcserrors.Storage(fmt.Sprintf("decompressing blob %s", hash), err)
		}
	}

	// Corruption is reported, never repaired
	if HashContent(content) != hash {
		return nil, vcserrors.Storage(fmt.Sprintf("blob hash mismatch for %s", hash), nil)
	}

	s.cache.Add(hash, content)
	meta.AccessedAt = time.Now()
	if err := s.storeMeta(meta); err != nil {
		return nil, vcserrors.Storage("updating blob metadata", err)
	}

	return content, nil
}

// Exists checks if content exists
func (s *Safe) Exists(hash string) (bool, error) {
	if !s.isValidHash(hash) {
		return false, vcserrors.Validation(fmt.Sprintf("invalid content hash: %q", hash), nil)
	}

	if s.cache.Contains(hash) {
		return true, nil
	}

	_, err := s.getMeta(hash)
	if err != nil {
		if vcserrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Verify checks content integrity without returning the bytes.
func (s *Safe) Verify(hash string) error {
	_, err := s.Get(hash)
	return err
}

// Meta returns the stored metadata for a blob.
func (s *Safe) Meta(hash string) (BlobMeta, error) {
	return s.getMeta(hash)
}

// HashContent is the canonical content digest: sha256, hex-encoded.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Internal helper functions

func (s *Safe) blobPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func (s *Safe) isValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func (s *Safe) incrementRefCount(hash string) error {
	meta, err := s.getMeta(hash)
	if err != nil {
		return err
	}

	meta.RefCount++
	return s.storeMeta(meta)
}

func (s *Safe) storeMeta(meta BlobMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(fmt.Sprintf("blob:%s", meta.Hash))
		return txn.Set(key, data)
	})
}

func (s *Safe) getMeta(hash string) (BlobMeta, error) {
	var meta BlobMeta

	err := s.db.View(func(txn *badger.Txn) error {
		key := []byte(fmt.Sprintf("blob:%s", hash))
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return vcserrors.NotFound(fmt.Sprintf("blob not found: %s", hash))
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &meta); err != nil {
				return vcserrors.Storage("decoding blob metadata", err)
			}
			return nil
		})
	})

	return meta, err
}
