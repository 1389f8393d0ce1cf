package capture

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/nicholasching/Perception/pkg/camera"
)

func TestStorePutRelease(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	img, err := s.Put(&camera.Photo{Data: []byte("jpeg"), MimeType: "image/jpeg"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(img.Path, ".jpg") || img.Size != 4 {
		t.Errorf("image = %+v", img)
	}

	data, err := s.Read(img)
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("Read() = %q, %v", data, err)
	}
	if s.Live() != 1 {
		t.Errorf("Live() = %d", s.Live())
	}

	if err := s.Release(img); err != nil {
		t.Fatal(err)
	}
	if err := s.Release(img); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(img.Path); !os.IsNotExist(err) {
		t.Error("file should be deleted")
	}
}

func TestStoreRejectsEmptyPhoto(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	if _, err := s.Put(&camera.Photo{}); !errors.Is(err, ErrNoPhoto) {
		t.Errorf("err = %v, want ErrNoPhoto", err)
	}
	if _, err := s.Put(nil); !errors.Is(err, ErrNoPhoto) {
		t.Errorf("err = %v, want ErrNoPhoto", err)
	}
}

func TestStoreOwnedDirRemovedOnClose(t *testing.T) {
	s, err := NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	s.Put(&camera.Photo{Data: []byte{1}, MimeType: "image/png"})
	s.Put(&camera.Photo{Data: []byte{2}, MimeType: "image/png"})

	if n := s.ReleaseAll(); n != 2 {
		t.Errorf("ReleaseAll() = %d", n)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Error("owned directory should be removed")
	}
}
