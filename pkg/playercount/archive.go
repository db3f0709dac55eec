package playercount

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	archivePrefix = "playerCounts-"
	archiveExt    = ".log.gz"
	legacyExt     = ".log"
)

// Archive is the durable, date-partitioned store for player count samples.
// Each local calendar day maps to at most one gzip-compressed NDJSON file
// named playerCounts-YYYY-MM-DD.log.gz; uncompressed .log files from the
// pre-compression era remain readable.
//
// There is no cross-process locking: exactly one sampler process owns the
// archive directory for writes.
type Archive struct {
	dir string
}

// NewArchive creates the archive directory if needed and returns a handle.
func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
	}
	return &Archive{dir: dir}, nil
}

// Dir returns the archive directory path.
func (a *Archive) Dir() string {
	return a.dir
}

// FilePath returns the archive file path for a day key.
func (a *Archive) FilePath(dayKey string) string {
	return filepath.Join(a.dir, archivePrefix+dayKey+archiveExt)
}

// Append writes the batch as one compressed NDJSON file for the given day
// key, replacing any existing file for that day. The batch is written to a
// temp file and renamed into place so a concurrent reader never observes a
// half-written archive.
func (a *Archive) Append(dayKey string, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory %s: %w", a.dir, err)
	}

	tmp, err := os.CreateTemp(a.dir, archivePrefix+dayKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp archive file: %w", err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	for _, sample := range samples {
		line, err := json.Marshal(sample)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode sample: %w", err)
		}
		if _, err := gz.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write archive %s: %w", dayKey, err)
		}
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to finish compressing archive %s: %w", dayKey, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp archive file: %w", err)
	}

	if err := os.Rename(tmp.Name(), a.FilePath(dayKey)); err != nil {
		return fmt.Errorf("failed to move archive %s into place: %w", dayKey, err)
	}
	return nil
}

// ListFiles enumerates all archive files, compressed and legacy. Order is
// whatever the filesystem returns; callers must not assume chronological.
func (a *Archive) ListFiles() ([]string, error) {
	compressed, err := filepath.Glob(filepath.Join(a.dir, "*"+archiveExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list archive files: %w", err)
	}
	legacy, err := filepath.Glob(filepath.Join(a.dir, "*"+legacyExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy archive files: %w", err)
	}
	return append(compressed, legacy...), nil
}

// ReadAll decompresses (if needed) and returns the file's non-empty lines.
func (a *Archive) ReadAll(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	var scanner *bufio.Scanner
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress archive %s: %w", path, err)
		}
		defer gz.Close()
		scanner = bufio.NewScanner(gz)
	} else {
		scanner = bufio.NewScanner(f)
	}
	// Upstream snapshots are small, but a day of them in one line-buffer
	// default (64 KB) is cutting it close; allow up to 4 MB per line.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines [][]byte
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", path, err)
	}
	return lines, nil
}
