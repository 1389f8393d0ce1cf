package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/nicholasching/Perception/pkg/camera"
)

// Image is a transient photo written to the store's directory.
type Image struct {
	ID       string
	Path     string
	MimeType string
	Size     int
}

// Store keeps captured photos as temporary files until they are released.
type Store struct {
	dir   string
	owned bool

	mu   sync.Mutex
	live map[string]*Image
}

// NewStore creates a store in dir. An empty dir creates a private temporary
// directory that Close removes.
func NewStore(dir string) (*Store, error) {
	owned := false
	if dir == "" {
		d, err := os.MkdirTemp("", "isight-captures-")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		dir = d
		owned = true
	} else if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &Store{dir: dir, owned: owned, live: make(map[string]*Image)}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes photo to a new file.
func (s *Store) Put(photo *camera.Photo) (*Image, error) {
	if photo == nil || len(photo.Data) == 0 {
		return nil, ErrNoPhoto
	}

	id := uuid.New().String()
	img := &Image{
		ID:       id,
		Path:     filepath.Join(s.dir, id+extension(photo.MimeType)),
		MimeType: photo.MimeType,
		Size:     len(photo.Data),
	}
	if err := os.WriteFile(img.Path, photo.Data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write capture: %w", err)
	}

	s.mu.Lock()
	s.live[id] = img
	s.mu.Unlock()
	return img, nil
}

// Read returns the bytes of a live image.
func (s *Store) Read(img *Image) ([]byte, error) {
	if img == nil {
		return nil, ErrNoPhoto
	}
	return os.ReadFile(img.Path)
}

// Release deletes img. Releasing an image twice, or one already removed by
// ReleaseAll, is not an error.
func (s *Store) Release(img *Image) error {
	if img == nil {
		return nil
	}
	s.mu.Lock()
	delete(s.live, img.ID)
	s.mu.Unlock()

	if err := os.Remove(img.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete capture: %w", err)
	}
	return nil
}

// ReleaseAll deletes every live image and returns how many were removed.
func (s *Store) ReleaseAll() int {
	s.mu.Lock()
	imgs := make([]*Image, 0, len(s.live))
	for _, img := range s.live {
		imgs = append(imgs, img)
	}
	s.live = make(map[string]*Image)
	s.mu.Unlock()

	for _, img := range imgs {
		os.Remove(img.Path)
	}
	return len(imgs)
}

// Live returns the number of images not yet released.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Close releases every image and removes the directory if the store
// created it.
func (s *Store) Close() error {
	s.ReleaseAll()
	if s.owned {
		return os.RemoveAll(s.dir)
	}
	return nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
