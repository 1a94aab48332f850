// Package imaging writes an image citation's original and thumbnail files
// to disk: decode, measure, write the original, scale to a fixed thumbnail
// geometry over an opaque background, write the thumbnail.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/png"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
)

// ThumbnailGeometry is the fixed output size of a committed thumbnail.
const ThumbnailGeometry = 150

// Sink writes original/thumbnail files under a fixed directory, renaming
// from a temp name only once the write is complete so a citation's files
// are never observed half-written.
type Sink struct {
	path string
}

// NewSink validates that path exists and is writable before returning, so
// a misconfigured directory fails at startup rather than on the first
// upload.
func NewSink(path string) (*Sink, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("imaging: image citations path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("imaging: image citations path is not a directory")
	}
	probe := filepath.Join(path, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return nil, fmt.Errorf("imaging: image citations path is not writable: %w", err)
	}
	_ = os.Remove(probe)
	return &Sink{path: path}, nil
}

// Size decodes just enough of the image to report its original geometry.
func Size(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("imaging: decode config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Commit decodes the image once, writes the full-size original as
// "<id>_orig.png" and a ThumbnailGeometry x ThumbnailGeometry resize as
// "<id>.png". The original is re-encoded as decoded, transparency
// included; only the thumbnail is drawn over an opaque white background,
// so thumbnails here never carry transparency. Both files are written
// under a temp name and renamed into place last.
func (s *Sink) Commit(id int64, data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("imaging: decode: %w", err)
	}

	origPath := filepath.Join(s.path, fmt.Sprintf("%d_orig.png", id))
	if err := writePNGAtomic(origPath, img); err != nil {
		return err
	}

	thumb := opaqueResize(img, ThumbnailGeometry, ThumbnailGeometry)
	thumbPath := filepath.Join(s.path, fmt.Sprintf("%d.png", id))
	return writePNGAtomic(thumbPath, thumb)
}

func opaqueResize(src image.Image, w, h int) image.Image {
	bg := image.NewRGBA(image.Rect(0, 0, w, h))
	stddraw.Draw(bg, bg.Bounds(), &image.Uniform{C: color.White}, image.Point{}, stddraw.Src)
	draw.CatmullRom.Scale(bg, bg.Bounds(), src, src.Bounds(), draw.Over, nil)
	return bg
}

func writePNGAtomic(finalPath string, img image.Image) error {
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("imaging: create temp file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("imaging: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("imaging: close: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("imaging: rename into place: %w", err)
	}
	return nil
}
