package sinks

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// FileConfig mirrors the {max_file_size_bytes, max_files,
// size_check_interval_events, compress_rotated} rotation contract.
type FileConfig struct {
	Path                    string
	MaxFileSizeBytes        int64
	MaxFiles                int
	SizeCheckIntervalEvents int
	CompressRotated         bool
}

// File is a rotating line-oriented JSON logger. It holds an exclusive
// write lock on the current file handle for the duration of a Write;
// rotation acquires that same lock, swaps the handle, and releases it —
// the same exclusive-write-then-swap shape the teacher uses for its
// ledger's append-and-rotate path, generalized from an audit trail to a
// generic line logger.
//
// Rotation failure (disk full, rename race) is logged to stderr and
// writing continues to the current file unrotated: this sink must never
// drop an incoming event for a rotation problem.
type File struct {
	mu           sync.Mutex
	cfg          FileConfig
	f            *os.File
	sizeEstimate int64
	sinceCheck   int
	logger       *slog.Logger
}

func NewFile(cfg FileConfig, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 100 * 1024 * 1024
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	if cfg.SizeCheckIntervalEvents <= 0 {
		cfg.SizeCheckIntervalEvents = 100
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sinks: open %s: %w", cfg.Path, err)
	}
	info, err := f.Stat()
	var size int64
	if err == nil {
		size = info.Size()
	}
	return &File{cfg: cfg, f: f, sizeEstimate: size, logger: logger}, nil
}

func (s *File) Write(ev eventmodel.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sinks: marshal event: %w", err)
	}
	n, err := s.f.Write(append(raw, '\n'))
	if err != nil {
		return fmt.Errorf("sinks: write event: %w", err)
	}
	s.sizeEstimate += int64(n)
	s.sinceCheck++

	if s.sinceCheck >= s.cfg.SizeCheckIntervalEvents {
		s.sinceCheck = 0
		if s.sizeEstimate >= s.cfg.MaxFileSizeBytes {
			if err := s.rotate(); err != nil {
				s.logger.Error("sinks: rotation failed, continuing on current file", "error", err)
			}
		}
	}
	return nil
}

// rotate closes the current file, shifts numeric suffixes upward
// (optionally gzipping the rotated-away file), deletes anything beyond
// MaxFiles, and opens a fresh current file. Callers hold s.mu.
func (s *File) rotate() error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}

	// Shift existing suffixes upward, highest first: renaming
	// MaxFiles-1 onto MaxFiles overwrites (discards) whatever was
	// already at the oldest slot, which is exactly "files beyond
	// max_files are deleted".
	for i := s.cfg.MaxFiles - 1; i >= 1; i-- {
		from := s.suffixed(i)
		to := s.suffixed(i + 1)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, to); err != nil {
			// Keep writing to the unrotated current file rather than
			// losing events.
			if f, reopenErr := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); reopenErr == nil {
				s.f = f
			}
			return fmt.Errorf("rename %s to %s: %w", from, to, err)
		}
	}

	target := s.suffixed(1)
	if err := os.Rename(s.cfg.Path, target); err != nil {
		// Rename failed (disk full, race): reopen the existing file in
		// append mode rather than losing events.
		f, reopenErr := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if reopenErr != nil {
			return fmt.Errorf("rename failed (%w) and reopen failed: %v", err, reopenErr)
		}
		s.f = f
		return fmt.Errorf("rename current to %s: %w", target, err)
	}

	if s.cfg.CompressRotated {
		if err := gzipInPlace(target); err != nil {
			s.logger.Warn("sinks: failed to gzip rotated file", "file", target, "error", err)
		}
	}

	f, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open fresh current file: %w", err)
	}
	s.f = f
	s.sizeEstimate = 0
	return nil
}

func (s *File) suffixed(n int) string {
	return fmt.Sprintf("%s.%d", s.cfg.Path, n)
}

func gzipInPlace(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(path+".gz", path)
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
