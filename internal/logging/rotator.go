package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileRotator is an io.Writer over a log file that rotates it by size and
// once per day, keeping at most MaxBackups old files for MaxAge days.
type FileRotator struct {
	config *Config

	mu     sync.Mutex
	file   *os.File
	size   int64
	opened time.Time
	bg     sync.WaitGroup
}

// NewFileRotator opens (or creates) cfg.FilePath for appending.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	r := &FileRotator{config: cfg}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) openFile() error {
	file, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = file
	r.size = info.Size()
	r.opened = time.Now()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if r.shouldRotate(int64(len(p)), time.Now()) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) shouldRotate(writeSize int64, now time.Time) bool {
	if r.size == 0 {
		return false
	}
	if limit := r.config.MaxSize * 1024 * 1024; limit > 0 && r.size+writeSize > limit {
		return true
	}
	y1, m1, d1 := r.opened.Date()
	y2, m2, d2 := now.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// Rotate forces a rotation regardless of size or age.
func (r *FileRotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotate()
}

func (r *FileRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
		r.file = nil
	}

	dir, name, ext := r.parts()
	stamp := time.Now().Format("20060102-150405.000000")
	rotated := filepath.Join(dir, fmt.Sprintf("%s-%s%s", name, stamp, ext))

	if err := os.Rename(r.config.FilePath, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.openFile(); err != nil {
		return err
	}

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		if r.config.Compress {
			compressFile(rotated)
		}
		r.cleanup()
	}()
	return nil
}

func (r *FileRotator) parts() (dir, name, ext string) {
	base := filepath.Base(r.config.FilePath)
	ext = filepath.Ext(base)
	return filepath.Dir(r.config.FilePath), strings.TrimSuffix(base, ext), ext
}

// compressFile gzips path into path.gz and removes the original.
func compressFile(path string) {
	input, err := os.Open(path)
	if err != nil {
		return
	}
	defer input.Close()

	output, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer output.Close()

	gz := gzip.NewWriter(output)
	gz.Name = filepath.Base(path)
	gz.ModTime = time.Now()

	if _, err := io.Copy(gz, input); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return
	}
	if err := gz.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}

	os.Remove(path)
}

// cleanup applies the MaxBackups and MaxAge retention limits.
func (r *FileRotator) cleanup() {
	backups, err := r.Backups()
	if err != nil {
		return
	}

	type entry struct {
		path    string
		modTime time.Time
	}
	files := make([]entry, 0, len(backups))
	for _, path := range backups {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, entry{path: path, modTime: info.ModTime()})
	}

	// Newest first.
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	cutoff := time.Now().AddDate(0, 0, -r.config.MaxAge)
	for i, f := range files {
		if i >= r.config.MaxBackups || (r.config.MaxAge > 0 && f.modTime.Before(cutoff)) {
			os.Remove(f.path)
		}
	}
}

// Backups lists rotated log files, compressed or not.
func (r *FileRotator) Backups() ([]string, error) {
	dir, name, ext := r.parts()
	return filepath.Glob(filepath.Join(dir, name+"-*"+ext+"*"))
}

// Close waits for pending compression and closes the current file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bg.Wait()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Sync flushes the current file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}
