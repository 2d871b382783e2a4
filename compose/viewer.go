package compose

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/browser"
)

// Viewer presents a composite to the user
type Viewer interface {
	Show(name string, img image.Image) error
}

// BrowserViewer writes the composite to a temporary PNG and opens it with the
// desktop's default handler. The file is left behind for the viewer to read;
// NewBrowserViewer keeps all of a run's files in one directory.
type BrowserViewer struct {
	// Dir holds the temporary files, os.TempDir() when empty
	Dir string

	open func(path string) error
}

// NewBrowserViewer creates a BrowserViewer writing into a fresh directory under
// os.TempDir()
func NewBrowserViewer() (BrowserViewer, error) {
	dir, err := os.MkdirTemp("", "comfybatch-")
	if err != nil {
		return BrowserViewer{}, err
	}
	return BrowserViewer{Dir: dir}, nil
}

func (v BrowserViewer) Show(name string, img image.Image) error {
	f, err := os.CreateTemp(v.Dir, safeName(name)+"-*.png")
	if err != nil {
		return err
	}
	if err := EncodePNG(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	open := v.open
	if open == nil {
		open = browser.OpenFile
	}
	slog.Debug("Opening composite", "path", f.Name())
	if err := open(f.Name()); err != nil {
		return fmt.Errorf("opening %s: %w", f.Name(), err)
	}
	return nil
}

// DirViewer saves composites as <Dir>/<name>.png
type DirViewer struct {
	Dir string
}

func (v DirViewer) Show(name string, img image.Image) error {
	if err := os.MkdirAll(v.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(v.Dir, safeName(name)+".png")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodePNG(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("Saved composite", "path", path)
	return nil
}

// NopViewer discards composites
type NopViewer struct{}

func (NopViewer) Show(string, image.Image) error { return nil }

func safeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
	if name == "" {
		return "composite"
	}
	return name
}
