// Package filestore stores attachments on the local filesystem.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/steveyegge/rmimport/internal/target"
)

// Store saves attachments under Root/projects/<id>/attachments/<owner>/.
// Saving identical content under an existing name returns that name again,
// so re-running a failed persist does not duplicate files.
type Store struct {
	Root string
}

var _ target.AttachmentStore = (*Store)(nil)

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{Root: dir}
}

func (s *Store) dir(projectID int64, ownerID string) string {
	return filepath.Join(s.Root, "projects", strconv.FormatInt(projectID, 10), "attachments", ownerID)
}

// Save writes r to a temporary file, then moves it into place under the
// first free variant of filename.
func (s *Store) Save(ctx context.Context, projectID int64, ownerID, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid attachment name %q", filename)
	}

	dir := s.dir(projectID, ownerID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating attachment dir: %w", err)
	}

	tmp := filepath.Join(dir, ".upload-"+uuid.New().String())
	sum, err := writeFile(tmp, r)
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("saving attachment %s: %w", filename, err)
	}

	var same string
	stored := target.UniqueName(name, func(candidate string) bool {
		existing, err := hashFile(filepath.Join(dir, candidate))
		if errors.Is(err, os.ErrNotExist) {
			return false
		}
		if err == nil && existing == sum && same == "" {
			same = candidate
		}
		return true
	})
	if same != "" {
		_ = os.Remove(tmp)
		return same, nil
	}
	if err := os.Rename(tmp, filepath.Join(dir, stored)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storing attachment %s: %w", filename, err)
	}
	return stored, nil
}

func (s *Store) URLFor(projectID int64, ownerID, stored string) string {
	return target.DownloadPath(projectID, ownerID, stored)
}

// Remove deletes a stored attachment and its owner directory once empty.
func (s *Store) Remove(ctx context.Context, projectID int64, ownerID, stored string) error {
	if err := os.Remove(s.Path(projectID, ownerID, stored)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing attachment %s: %w", stored, err)
	}
	// fails while other attachments remain
	_ = os.Remove(s.dir(projectID, ownerID))
	return nil
}

// Path returns the filesystem location of a stored attachment.
func (s *Store) Path(projectID int64, ownerID, stored string) string {
	return filepath.Join(s.dir(projectID, ownerID), stored)
}

func writeFile(path string, r io.Reader) (uint64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640) // #nosec G304 - path is built from the store root
	if err != nil {
		return 0, err
	}
	h := xxhash.New()
	if _, err := io.Copy(io.MultiWriter(f, h), r); err != nil {
		_ = f.Close()
		return 0, err
	}
	return h.Sum64(), f.Close()
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path) // #nosec G304 - path is built from the store root
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
