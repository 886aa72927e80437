package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"atcserver/internal/logger"

	"github.com/google/uuid"
)

const (
	tmpDirName   = "tmp"
	cropsDirName = "crops"
	cropFileName = "crop.jpg"
)

// WorkspaceService hands out per-request directories under the upload
// directory so concurrent requests never share an intermediate file.
type WorkspaceService struct {
	uploadDir string
	logger    *logger.Logger
}

// Workspace is the private scratch directory of one request.
type Workspace struct {
	ID  string
	Dir string
}

// NewWorkspaceService creates the upload directory layout if it is missing.
func NewWorkspaceService(uploadDir string, logger *logger.Logger) (*WorkspaceService, error) {
	for _, dir := range []string{uploadDir, filepath.Join(uploadDir, tmpDirName), filepath.Join(uploadDir, cropsDirName)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &WorkspaceService{uploadDir: uploadDir, logger: logger}, nil
}

// Create makes a fresh workspace named by a random UUID.
func (s *WorkspaceService) Create() (*Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.uploadDir, tmpDirName, id)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// SaveUpload writes src into the workspace. Only the lowercased extension of
// filename is kept, so client-supplied names never reach the filesystem.
func (w *Workspace) SaveUpload(filename string, src io.Reader) (string, error) {
	path := filepath.Join(w.Dir, "upload"+strings.ToLower(filepath.Ext(filename)))

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

// CropPath is where the detector writes this request's crop.
func (w *Workspace) CropPath() string {
	return filepath.Join(w.Dir, cropFileName)
}

// Cleanup removes the workspace and everything in it.
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}

// KeepCrop moves a workspace crop to the permanent location of result id.
func (s *WorkspaceService) KeepCrop(id int64, cropPath string) (string, error) {
	dst := s.CropPathFor(id)
	if err := os.Rename(cropPath, dst); err != nil {
		return "", fmt.Errorf("failed to keep crop for result %d: %w", id, err)
	}
	return dst, nil
}

// CropPathFor is the permanent crop location of result id.
func (s *WorkspaceService) CropPathFor(id int64) string {
	return filepath.Join(s.uploadDir, cropsDirName, strconv.FormatInt(id, 10)+".jpg")
}

// PurgeStale removes workspaces older than maxAge, left behind by crashes.
// It returns the number of removed directories.
func (s *WorkspaceService) PurgeStale(maxAge time.Duration) int {
	root := filepath.Join(s.uploadDir, tmpDirName)
	entries, err := os.ReadDir(root)
	if err != nil {
		s.logger.Error("Error reading workspace directory: %v", err)
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !entry.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			s.logger.Error("Error removing stale workspace %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("Purged %d stale workspaces", removed)
	}
	return removed
}

// Run purges stale workspaces every interval until ctx is done.
func (s *WorkspaceService) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PurgeStale(maxAge)
		}
	}
}
