package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const outputPrefix = "audio-"

// OutputFile is a file found in the output workspace.
type OutputFile struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// FileStorage manages the output workspace shared by the job controller and
// the retention sweeper.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a new FileStorage instance with the given directory.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: filepath.Clean(dir)}
}

// Dir returns the workspace directory.
func (s *FileStorage) Dir() string {
	return s.dir
}

// EnsureDir creates the workspace directory if it does not exist.
func (s *FileStorage) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", s.dir, err)
	}
	return nil
}

// OutputTemplate returns the tool output template for a job; the tool
// substitutes %(ext)s with the final extension.
func (s *FileStorage) OutputTemplate(jobID uuid.UUID) string {
	return filepath.Join(s.dir, outputPrefix+jobID.String()+".%(ext)s")
}

// OutputPath returns the path of a job's final file with extension ext.
func (s *FileStorage) OutputPath(jobID uuid.UUID, ext string) string {
	return filepath.Join(s.dir, outputPrefix+jobID.String()+"."+ext)
}

// Exists checks whether path exists.
func (s *FileStorage) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes path. A file that is already gone is not an error.
func (s *FileStorage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// RemoveJobArtifacts deletes every file that belongs to jobID, including
// partial downloads left by a failed run.
func (s *FileStorage) RemoveJobArtifacts(jobID uuid.UUID) error {
	matches, err := filepath.Glob(filepath.Join(s.dir, outputPrefix+jobID.String()+"*"))
	if err != nil {
		return fmt.Errorf("glob job artifacts: %w", err)
	}
	var errs []error
	for _, m := range matches {
		if err := s.Remove(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List returns the regular files in the workspace. A missing workspace is empty.
func (s *FileStorage) List() ([]OutputFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}

	files := make([]OutputFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		files = append(files, OutputFile{
			Path:    filepath.Join(s.dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return files, nil
}
