// internal/repo/checkout.go
package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// FileFailure records one per-file OS failure during checkout.
type FileFailure struct {
	Path   string `json:"path"`
	Op     string `json:"op"` // "remove" or "restore"
	Reason string `json:"reason"`
}

// PartialFailureReport aggregates per-file failures from a checkout that
// otherwise ran to completion. A partially restored tree is still useful
// for manual recovery, so checkout never aborts on the first failure.
type PartialFailureReport struct {
	CommitID string        `json:"commit_id"`
	Failures []FileFailure `json:"failures"`
}

func (r *PartialFailureReport) Error() string {
	return fmt.Sprintf("checkout of %s completed with %d per-file failures",
		shortID(r.CommitID), len(r.Failures))
}

// Checkout restores the working directory to the snapshot of the given
// commit. Head is not changed: checkout is pure time-travel and history
// stays strictly linear. The reserved storage subtree is never part of
// the cleared path set, so a mid-operation failure cannot take the
// repository's own state with it. Returns a *PartialFailureReport as
// error when some files could not be removed or restored.
func (r *Repository) Checkout(commitID string) error {
	log := r.log.WithOperation("checkout")

	sess, err := r.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	c, err := r.getCommit(sess, commitID)
	if err != nil {
		return err
	}

	report := &PartialFailureReport{CommitID: commitID}

	// Clearing works on an explicitly computed path set, not on whatever
	// a traversal happens to visit: first every tracked file, then the
	// emptied directories, deepest first.
	files, dirs, err := r.trackedPaths()
	if err != nil {
		return err
	}

	for _, relPath := range files {
		abs := filepath.Join(r.workDir, filepath.FromSlash(relPath))
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			report.Failures = append(report.Failures, FileFailure{
				Path: relPath, Op: "remove", Reason: err.Error(),
			})
			log.Warn("failed to remove file", zap.String("path", relPath), zap.Error(err))
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], "/") > strings.Count(dirs[j], "/")
	})
	for _, relPath := range dirs {
		// Directories that still hold failed removals simply stay.
		_ = os.Remove(filepath.Join(r.workDir, filepath.FromSlash(relPath)))
	}

	restored := 0
	for _, entry := range c.Files() {
		abs := filepath.Join(r.workDir, filepath.FromSlash(entry.Path))

		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			report.Failures = append(report.Failures, FileFailure{
				Path: entry.Path, Op: "restore", Reason: err.Error(),
			})
			continue
		}

		content, err := sess.blobs.Get(entry.Node.ContentHash())
		if err != nil {
			report.Failures = append(report.Failures, FileFailure{
				Path: entry.Path, Op: "restore", Reason: err.Error(),
			})
			log.Warn("failed to fetch blob",
				zap.String("path", entry.Path),
				zap.String("hash", shortID(entry.Node.ContentHash())),
				zap.Error(err))
			continue
		}

		if err := os.WriteFile(abs, content, 0644); err != nil {
			report.Failures = append(report.Failures, FileFailure{
				Path: entry.Path, Op: "restore", Reason: err.Error(),
			})
			log.Warn("failed to write file", zap.String("path", entry.Path), zap.Error(err))
			continue
		}
		restored++
	}

	log.Info("checkout finished",
		zap.String("commit_id", shortID(commitID)),
		zap.Int("restored", restored),
		zap.Int("failures", len(report.Failures)))

	if len(report.Failures) > 0 {
		return report
	}
	return nil
}

// trackedPaths enumerates the current working-directory content as two
// relative path sets: regular files and directories. The storage subtree
// is excluded at the walk, so it can never end up in the cleared set.
func (r *Repository) trackedPaths() (files, dirs []string, err error) {
	err = filepath.WalkDir(r.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == r.workDir {
			return nil
		}

		relPath, err := filepath.Rel(r.workDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path == r.storageDir {
				return filepath.SkipDir
			}
			dirs = append(dirs, relPath)
			return nil
		}
		files = append(files, relPath)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Strings(files)
	return files, dirs, nil
}
