package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/presencesync/agent/internal/services"
)

var (
	// ErrCameraBusy means another capture attempt currently owns the
	// frame source
	ErrCameraBusy = errors.New("camera already in use")
	// ErrNoFreshFrame means the frame directory holds no frame recent
	// enough to represent a live capture
	ErrNoFreshFrame = errors.New("no fresh frame available")
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
	".heif": true,
}

// DirectoryCamera adapts a kiosk camera helper that drops frames into a
// spool directory. Acquire grants exclusive use, mirroring real camera
// hardware; Still picks the newest frame no older than maxAge.
type DirectoryCamera struct {
	dir    string
	maxAge time.Duration

	mu    sync.Mutex
	inUse bool
}

// NewDirectoryCamera creates a camera over the given frame directory
func NewDirectoryCamera(dir string, maxAgeSeconds int) *DirectoryCamera {
	maxAge := time.Duration(maxAgeSeconds) * time.Second
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &DirectoryCamera{dir: dir, maxAge: maxAge}
}

// Acquire claims the frame source for one capture attempt
func (c *DirectoryCamera) Acquire(ctx context.Context) (services.CameraSession, error) {
	if _, err := os.Stat(c.dir); err != nil {
		return nil, fmt.Errorf("frame directory unavailable: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inUse {
		return nil, ErrCameraBusy
	}
	c.inUse = true

	return &directorySession{camera: c}, nil
}

func (c *DirectoryCamera) release() {
	c.mu.Lock()
	c.inUse = false
	c.mu.Unlock()
}

// newestFrame returns the most recently modified frame file within the
// freshness window
func (c *DirectoryCamera) newestFrame() (string, time.Time, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to read frame directory: %w", err)
	}

	cutoff := time.Now().Add(-c.maxAge)
	var newestPath string
	var newestTime time.Time

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !frameExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		if info.ModTime().After(newestTime) {
			newestTime = info.ModTime()
			newestPath = filepath.Join(c.dir, entry.Name())
		}
	}

	if newestPath == "" {
		return "", time.Time{}, ErrNoFreshFrame
	}
	return newestPath, newestTime, nil
}

type directorySession struct {
	camera *DirectoryCamera
	once   sync.Once
}

func (s *directorySession) Still(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	path, _, err := s.camera.newestFrame()
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read frame: %w", err)
	}
	return data, filepath.Base(path), nil
}

func (s *directorySession) Release() {
	s.once.Do(s.camera.release)
}
