package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/scan"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// ImageDir replays a directory of recorded frames in file-name order. Frame
// times are derived from the capture fps, not from file metadata.
type ImageDir struct {
	dir   string
	epoch time.Time

	mu    sync.Mutex
	files []string
	next  int
	fps   int
	start time.Time
}

func NewImageDir(dir string) *ImageDir {
	return &ImageDir{dir: dir}
}

// WithEpoch fixes the timestamp of the first frame.
func (d *ImageDir) WithEpoch(t time.Time) *ImageDir {
	d.epoch = t
	return d
}

func (d *ImageDir) Open(ctx context.Context, mode ppg.Mode, cfg scan.CaptureConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.files != nil {
		return fmt.Errorf("image dir %s: %w", d.dir, scan.ErrDeviceBusy)
	}

	entries, err := os.ReadDir(d.dir)
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("image dir %s: %w", d.dir, scan.ErrPermissionDenied)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("image dir %s: %w", d.dir, scan.ErrDeviceNotFound)
	case err != nil:
		return fmt.Errorf("image dir %s: %w", d.dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(d.dir, e.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("image dir %s has no frames: %w", d.dir, scan.ErrDeviceNotFound)
	}
	sort.Strings(files)

	d.files = files
	d.next = 0
	d.fps = cfg.FPS
	if d.fps <= 0 {
		d.fps = scan.DefaultCaptureConfig().FPS
	}
	d.start = d.epoch
	if d.start.IsZero() {
		d.start = time.Now()
	}
	return nil
}

func (d *ImageDir) Next(ctx context.Context) (ppg.Frame, error) {
	if err := ctx.Err(); err != nil {
		return ppg.Frame{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.files) {
		return ppg.Frame{}, scan.ErrSourceExhausted
	}

	i := d.next
	d.next++
	img, err := decodeFile(d.files[i])
	if err != nil {
		return ppg.Frame{}, err
	}
	return ppg.Frame{
		Seq:       uint64(i),
		Timestamp: d.start.Add(time.Duration(i) * time.Second / time.Duration(d.fps)),
		Image:     img,
	}, nil
}

func (d *ImageDir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = nil
	d.next = 0
	return nil
}

// Len returns the number of frames found at Open.
func (d *ImageDir) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.files)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}
