// internal/repo/repo.go
package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"arca/internal/commit"
	"arca/internal/config"
	"arca/internal/logging"
	"arca/internal/safe"
	"arca/internal/storage"
	"arca/internal/tree"
	"arca/internal/vcserrors"
)

const schemaVersion = 1

// Repository orchestrates scanning, commit creation, persistence and
// restoration for one working directory. It holds only paths and a
// logger: every operation opens the persisted state, works, and closes
// it again, so no handle survives across calls.
type Repository struct {
	workDir    string
	storageDir string
	cfg        *config.Config
	log        *logging.Logger
}

// HistoryEntry pairs a commit id with its loaded commit.
type HistoryEntry struct {
	ID     string
	Commit *commit.Commit
}

// FileHistoryEntry is one commit in which a given path was present.
type FileHistoryEntry struct {
	ID     string
	Commit *commit.Commit
	Node   *tree.Node
}

// Status is a read-only snapshot of repository state.
type Status struct {
	WorkDir      string
	Head         string // empty when no commits exist
	TrackedFiles int    // file count in the head commit
	TotalCommits int
}

// Open binds a Repository to a working directory. It does not require
// the directory to be initialized; Init does that.
func Open(workDir string, cfg *config.Config, log *logging.Logger) (*Repository, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolving working directory %s: %w", workDir, err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.NewNop()
	}

	return &Repository{
		workDir:    abs,
		storageDir: filepath.Join(abs, cfg.StorageDir),
		cfg:        cfg,
		log:        log,
	}, nil
}

func (r *Repository) WorkDir() string { return r.workDir }

// StorageDir is the reserved subtree, excluded from every scan.
func (r *Repository) StorageDir() string { return r.storageDir }

func (r *Repository) IsInitialized() bool {
	_, err := os.Stat(r.dbDir())
	return err == nil
}

func (r *Repository) dbDir() string      { return filepath.Join(r.storageDir, "db") }
func (r *Repository) contentDir() string { return filepath.Join(r.storageDir, "content") }

// Init creates the reserved storage subtree and empty persisted state.
// Head starts absent; no implicit initial commit is created.
func (r *Repository) Init() error {
	log := r.log.WithOperation("init")

	if _, err := os.Stat(r.storageDir); err == nil {
		return vcserrors.Idempotency(fmt.Sprintf("repository already initialized in %s", r.workDir))
	} else if !os.IsNotExist(err) {
		return vcserrors.Storage("checking storage directory", err)
	}

	for _, dir := range []string{r.dbDir(), r.contentDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return vcserrors.Storage(fmt.Sprintf("creating directory %s", dir), err)
		}
	}

	sess, err := r.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.meta.Create(&repoMeta{SchemaVersion: schemaVersion}); err != nil {
		return err
	}

	log.Info("initialized repository", zap.String("work_dir", r.workDir))
	return nil
}

// Commit scans the working directory and persists a new snapshot.
// The operation is all-or-nothing: the commit record and the advanced
// index are written in a single transaction, so a failure anywhere
// leaves commits and head untouched. Returns the new commit id.
func (r *Repository) Commit(message, author string) (string, error) {
	log := r.log.WithOperation("commit")

	if strings.TrimSpace(message) == "" {
		return "", vcserrors.Validation("commit message cannot be empty", nil)
	}
	if strings.TrimSpace(author) == "" {
		return "", vcserrors.Validation("commit author cannot be empty", nil)
	}

	sess, err := r.openSession()
	if err != nil {
		return "", err
	}
	defer sess.Close()

	meta, err := r.loadMeta(sess)
	if err != nil {
		return "", err
	}

	t, err := r.scanWorkingTree(sess, log)
	if err != nil {
		return "", err
	}

	c, err := commit.New(message, author, meta.Head, t)
	if err != nil {
		return "", err
	}

	rec := toRecord(c)
	meta.Head = c.ID()
	meta.CommitIDs = append(meta.CommitIDs, c.ID())

	err = sess.db.Update(func(txn *badger.Txn) error {
		if err := sess.commits.Put(txn, rec); err != nil {
			return err
		}
		return sess.meta.Put(txn, meta)
	})
	if err != nil {
		return "", vcserrors.Storage("persisting commit", err)
	}

	log.Info("created commit",
		zap.String("commit_id", c.ID()),
		zap.String("author", c.Author()),
		zap.Int("files", c.FileCount()))

	return c.ID(), nil
}

// GetHistory returns all commits oldest-first. The stored insertion
// order must agree with the parent links; a disagreement means the index
// is corrupt and is reported, not repaired.
func (r *Repository) GetHistory() ([]HistoryEntry, error) {
	sess, err := r.openSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	meta, err := r.loadMeta(sess)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(meta.CommitIDs))
	prev := ""
	for _, id := range meta.CommitIDs {
		c, err := r.getCommit(sess, id)
		if err != nil {
			return nil, err
		}
		if c.ParentID() != prev {
			return nil, vcserrors.Storage(
				fmt.Sprintf("commit index disagrees with parent links at %s", shortID(id)), nil)
		}
		entries = append(entries, HistoryEntry{ID: id, Commit: c})
		prev = id
	}

	return entries, nil
}

// GetFileHistory returns, in chronological order, every commit in which
// path is present as a file. Absence in a commit is simply skipped;
// there is no deletion tracking.
func (r *Repository) GetFileHistory(path string) ([]FileHistoryEntry, error) {
	history, err := r.GetHistory()
	if err != nil {
		return nil, err
	}

	p := filepath.ToSlash(path)
	var entries []FileHistoryEntry
	for _, h := range history {
		if n, ok := h.Commit.Find(p); ok && n.IsFile() {
			entries = append(entries, FileHistoryEntry{ID: h.ID, Commit: h.Commit, Node: n})
		}
	}
	return entries, nil
}

// GetCommit loads a single commit by id.
func (r *Repository) GetCommit(id string) (*commit.Commit, error) {
	sess, err := r.openSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return r.getCommit(sess, id)
}

// Status reports head, working directory and tracked-file count.
func (r *Repository) Status() (*Status, error) {
	sess, err := r.openSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	meta, err := r.loadMeta(sess)
	if err != nil {
		return nil, err
	}

	st := &Status{
		WorkDir:      r.workDir,
		Head:         meta.Head,
		TotalCommits: len(meta.CommitIDs),
	}
	if meta.Head != "" {
		head, err := r.getCommit(sess, meta.Head)
		if err != nil {
			return nil, err
		}
		st.TrackedFiles = head.FileCount()
	}
	return st, nil
}

// scanWorkingTree walks the working directory, stores every regular
// file's content in the blob store and inserts it into a fresh tree.
// The reserved storage subtree is never descended into.
func (r *Repository) scanWorkingTree(sess *session, log *zap.Logger) (*tree.FileTree, error) {
	t := tree.New()

	err := filepath.WalkDir(r.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == r.storageDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(r.workDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		content, err := os.ReadFile(path)
		if err != nil {
			return vcserrors.Storage(fmt.Sprintf("reading %s", relPath), err)
		}

		hash, err := sess.blobs.Store(relPath, content)
		if err != nil {
			return fmt.Errorf("storing content for %s: %w", relPath, err)
		}

		if err := t.Insert(relPath, hash, int64(len(content))); err != nil {
			return err
		}

		log.Debug("scanned file",
			zap.String("path", relPath),
			zap.String("hash", shortID(hash)),
			zap.Int("size", len(content)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (r *Repository) getCommit(sess *session, id string) (*commit.Commit, error) {
	var rec commitRecord
	if err := sess.commits.Get(id, &rec); err != nil {
		if vcserrors.IsNotFound(err) {
			return nil, vcserrors.NotFound(fmt.Sprintf("commit not found: %s", id))
		}
		return nil, err
	}
	return fromRecord(&rec)
}

func (r *Repository) loadMeta(sess *session) (*repoMeta, error) {
	var meta repoMeta
	if err := sess.meta.Get(metaID, &meta); err != nil {
		if vcserrors.IsNotFound(err) {
			return nil, vcserrors.Storage("repository metadata missing", nil)
		}
		return nil, err
	}
	if meta.SchemaVersion != schemaVersion {
		return nil, vcserrors.Storage(
			fmt.Sprintf("unsupported schema version %d", meta.SchemaVersion), nil)
	}
	return &meta, nil
}

// session bundles the per-operation storage handles.
type session struct {
	db      *badger.DB
	blobs   *safe.Safe
	commits *storage.BadgerStore
	meta    *storage.BadgerStore
}

func (r *Repository) openSession() (*session, error) {
	if !r.IsInitialized() {
		return nil, vcserrors.NotFound(
			fmt.Sprintf("no repository in %s (run init first)", r.workDir))
	}

	opts := badger.DefaultOptions(r.dbDir())
	opts.Logger = nil // Badger's own logging is just noise here

	db, err := badger.Open(opts)
	if err != nil {
		return nil, vcserrors.Storage("opening database", err)
	}

	comp := safe.DefaultCompressionOptions()
	comp.MinSize = r.cfg.Compression.MinSize
	comp.Level = r.cfg.Compression.Level

	blobs, err := safe.New(db, safe.Options{
		Root:        r.contentDir(),
		CacheSize:   r.cfg.Cache.Size,
		Compression: comp,
	})
	if err != nil {
		db.Close()
		return nil, vcserrors.Storage("opening blob store", err)
	}

	return &session{
		db:      db,
		blobs:   blobs,
		commits: storage.NewBadgerStore(db, "commit"),
		meta:    storage.NewBadgerStore(db, "repo"),
	}, nil
}

func (s *session) Close() error {
	return s.db.Close()
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

// Persisted schema. Records are deliberately decoupled from the
// in-memory types so the format can evolve behind the version number.

const metaID = "meta"

type fileRecord struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

type commitRecord struct {
	SchemaVersion int          `json:"schema_version"`
	ID            string       `json:"id"`
	Author        string       `json:"author"`
	Message       string       `json:"message"`
	Timestamp     time.Time    `json:"timestamp"`
	ParentID      string       `json:"parent_id,omitempty"`
	Files         []fileRecord `json:"files"`
}

func (c *commitRecord) GetID() string { return c.ID }

type repoMeta struct {
	SchemaVersion int      `json:"schema_version"`
	Head          string   `json:"head,omitempty"`
	CommitIDs     []string `json:"commit_ids"`
}

func (m *repoMeta) GetID() string { return metaID }

func toRecord(c *commit.Commit) *commitRecord {
	files := c.Files()
	rec := &commitRecord{
		SchemaVersion: schemaVersion,
		ID:            c.ID(),
		Author:        c.Author(),
		Message:       c.Message(),
		Timestamp:     c.Timestamp(),
		ParentID:      c.ParentID(),
		Files:         make([]fileRecord, 0, len(files)),
	}
	for _, entry := range files {
		rec.Files = append(rec.Files, fileRecord{
			Path: entry.Path,
			Hash: entry.Node.ContentHash(),
			Size: entry.Node.Size(),
		})
	}
	return rec
}

func fromRecord(rec *commitRecord) (*commit.Commit, error) {
	t := tree.New()
	for _, f := range rec.Files {
		if err := t.Insert(f.Path, f.Hash, f.Size); err != nil {
			return nil, vcserrors.Storage(
				fmt.Sprintf("rebuilding tree for commit %s", shortID(rec.ID)), err)
		}
	}
	return commit.Rehydrate(rec.ID, rec.Message, rec.Author, rec.ParentID, t, rec.Timestamp)
}
