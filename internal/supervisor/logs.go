package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	defaultLogMaxSize  = 10 << 20
	defaultLogMaxFiles = 3
)

// rotatingWriter writes a streamer's capture output to
// <dir>/<streamer>.log, rotating to .1, .2, ... when the size cap is hit
// and keeping at most maxFiles rotated copies.
type rotatingWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	maxSize  int64
	maxFiles int
}

func newRotatingWriter(dir, streamer string, maxSize int64, maxFiles int) (*rotatingWriter, error) {
	if maxSize <= 0 {
		maxSize = defaultLogMaxSize
	}
	if maxFiles <= 0 {
		maxFiles = defaultLogMaxFiles
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating capture log dir: %w", err)
	}

	name := strings.ToLower(streamer)
	if name == "" {
		name = "capture"
	}
	path := filepath.Join(dir, name+".log")

	w := &rotatingWriter{
		path:     path,
		maxSize:  maxSize,
		maxFiles: maxFiles,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening capture log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("statting capture log: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer. Rotation failures are swallowed so a full disk
// cannot take down the capture itself.
func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return len(p), nil
	}
	if w.size+int64(len(p)) > w.maxSize {
		w.rotate()
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return len(p), nil
	}
	return n, nil
}

// rotate shifts <name>.log -> .1 -> .2 ... dropping the oldest.
func (w *rotatingWriter) rotate() {
	w.file.Close()

	os.Remove(fmt.Sprintf("%s.%d", w.path, w.maxFiles))
	for i := w.maxFiles - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", w.path, i), fmt.Sprintf("%s.%d", w.path, i+1))
	}
	os.Rename(w.path, w.path+".1")

	if err := w.open(); err != nil {
		w.file = nil
		w.size = 0
	}
}

// Close closes the underlying file.
func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
