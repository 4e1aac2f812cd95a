package logging

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrRotatorClosed is returned by Write after Close.
var ErrRotatorClosed = errors.New("log rotator closed")

const dateLayout = "2006-01-02"

// LogRotator is an io.Writer over daily files named <prefix>_YYYY-MM-DD.log.
// When the date changes the previous file is gzipped in the background.
type LogRotator struct {
	dir    string
	prefix string
	useUTC bool
	logger *logrus.Logger
	now    func() time.Time

	mu   sync.Mutex
	file *os.File
	date string

	compressing sync.WaitGroup
}

// NewLogRotator creates dir if needed and opens today's file.
func NewLogRotator(dir, prefix string, useUTC bool, logger *logrus.Logger) (*LogRotator, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	r := &LogRotator{
		dir:    dir,
		prefix: prefix,
		useUTC: useUTC,
		logger: logger,
		now:    time.Now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(r.today()); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}

	return r, nil
}

// SetClock replaces the time source.
func (r *LogRotator) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

func (r *LogRotator) today() string {
	t := r.now()
	if r.useUTC {
		t = t.UTC()
	}
	return t.Format(dateLayout)
}

func (r *LogRotator) fileName(date string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_%s.log", r.prefix, date))
}

// Write appends p to the current day's file, rotating first if the date
// has moved on.
func (r *LogRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, ErrRotatorClosed
	}
	if err := r.rotateLocked(); err != nil {
		return 0, err
	}
	return r.file.Write(p)
}

// Run checks for a date change every minute so idle days still rotate.
func (r *LogRotator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.file != nil {
				if err := r.rotateLocked(); err != nil {
					r.logger.WithError(err).Error("Failed to rotate log file")
				}
			}
			r.mu.Unlock()
		}
	}
}

func (r *LogRotator) rotateLocked() error {
	date := r.today()
	if date == r.date {
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"old_date": r.date,
		"new_date": date,
	}).Info("Rotating log file")

	old := r.date
	if err := r.file.Close(); err != nil {
		r.logger.WithError(err).Error("Failed to close old log file")
	}
	r.file = nil

	r.compressing.Add(1)
	go func() {
		defer r.compressing.Done()
		if err := r.compress(old); err != nil {
			r.logger.WithError(err).WithField("date", old).Error("Failed to compress log file")
		}
	}()

	return r.openLocked(date)
}

func (r *LogRotator) openLocked(date string) error {
	name := r.fileName(date)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", name, err)
	}
	r.file = f
	r.date = date
	r.logger.WithField("file", name).Info("Opened log file")
	return nil
}

// compress gzips the file for date and removes the original.
func (r *LogRotator) compress(date string) error {
	src := r.fileName(date)
	dst := src + ".gz"

	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(src)
	gz.ModTime = time.Now()

	if _, err := io.Copy(gz, in); err != nil {
		out.Close()
		return fmt.Errorf("compress %s: %w", src, err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return fmt.Errorf("flush %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s: %w", src, err)
	}
	r.logger.WithField("file", dst).Info("Log file compressed")
	return nil
}

// CurrentFile returns the path being written, or "" after Close.
func (r *LogRotator) CurrentFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ""
	}
	return r.fileName(r.date)
}

// Files lists every log for this prefix, compressed ones included.
func (r *LogRotator) Files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.dir, r.prefix+"_*.log*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}
	return files, nil
}

// Cleanup removes logs last modified more than maxDays ago.
func (r *LogRotator) Cleanup(maxDays int) (int, error) {
	if maxDays <= 0 {
		return 0, fmt.Errorf("maxDays must be positive, got %d", maxDays)
	}

	files, err := r.Files()
	if err != nil {
		return 0, err
	}

	cutoff := r.now().AddDate(0, 0, -maxDays)
	current := r.CurrentFile()
	removed := 0
	for _, file := range files {
		if file == current {
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			r.logger.WithError(err).WithField("file", file).Warn("Failed to stat log file")
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(file); err != nil {
			r.logger.WithError(err).WithField("file", file).Error("Failed to remove old log file")
			continue
		}
		removed++
	}

	r.logger.WithField("count", removed).Info("Cleaned up old log files")
	return removed, nil
}

// Close closes the current file and waits for pending compressions.
func (r *LogRotator) Close() error {
	r.mu.Lock()
	var err error
	if r.file != nil {
		err = r.file.Close()
		r.file = nil
	}
	r.mu.Unlock()

	r.compressing.Wait()
	return err
}
