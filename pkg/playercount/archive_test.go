package playercount

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

func testSamples(day time.Time, n int) []Sample {
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, Sample{
			Timestamp: day.Add(time.Duration(i) * 30 * time.Minute),
			Metrics:   map[string]float64{"annihilation": float64(100 + i)},
		})
	}
	return samples
}

func TestArchive_AppendAndReadAll(t *testing.T) {
	archive, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local)
	samples := testSamples(day, 5)

	if err := archive.Append("2024-01-15", samples); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	path := archive.FilePath("2024-01-15")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected archive file at %s: %v", path, err)
	}

	lines, err := archive.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(lines) != 5 {
		t.Fatalf("Expected 5 lines, got %d", len(lines))
	}

	sample, err := ParseLine(lines[0])
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if sample.Metrics["annihilation"] != 100 {
		t.Errorf("Expected annihilation=100, got %v", sample.Metrics)
	}
}

func TestArchive_AppendEmptyIsNoOp(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	if err := archive.Append("2024-01-15", nil); err != nil {
		t.Fatalf("Append of empty batch failed: %v", err)
	}

	files, err := archive.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("Expected no files, got %v", files)
	}
}

func TestArchive_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local)
	if err := archive.Append("2024-01-15", testSamples(day, 3)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp") {
			t.Errorf("Temp file left behind: %s", entry.Name())
		}
	}
}

func TestArchive_ListsLegacyFiles(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	legacy := filepath.Join(dir, "playerCounts-2023-06-01.log")
	content := `{"timestamp":"2023-06-01T12:00:00.000Z","annihilation":90}` + "\n\n" +
		`{"timestamp":"2023-06-01T12:30:00.000Z","annihilation":95}` + "\n"
	if err := os.WriteFile(legacy, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local)
	if err := archive.Append("2024-01-15", testSamples(day, 2)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	files, err := archive.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 files (compressed + legacy), got %v", files)
	}

	// Legacy files read without decompression, empty lines dropped
	lines, err := archive.ReadAll(legacy)
	if err != nil {
		t.Fatalf("ReadAll legacy failed: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("Expected 2 legacy lines, got %d", len(lines))
	}
}

func TestArchive_OverwritesExistingDay(t *testing.T) {
	archive, err := NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local)
	if err := archive.Append("2024-01-15", testSamples(day, 5)); err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	if err := archive.Append("2024-01-15", testSamples(day, 2)); err != nil {
		t.Fatalf("Second append failed: %v", err)
	}

	lines, err := archive.ReadAll(archive.FilePath("2024-01-15"))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("Expected the later batch to replace the file, got %d lines", len(lines))
	}
}

// writeRawArchive writes arbitrary pre-built lines as a compressed archive,
// used to simulate corrupt files from older runs.
func writeRawArchive(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	gz := gzip.NewWriter(f)
	for _, line := range lines {
		if _, err := gz.Write([]byte(line + "\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
