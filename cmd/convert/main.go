// Command convert migrates legacy uncompressed player count logs into the
// compressed archive format, removing the originals on success.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"annistats/pkg/config"
)

func main() {
	legacyDir := flag.String("from", filepath.Join("logs", "playerCounts"), "directory containing legacy .log files")
	targetDir := flag.String("to", config.DefaultArchiveDir, "archive directory for .log.gz files")
	keep := flag.Bool("keep", false, "keep legacy files after conversion")
	flag.Parse()

	if err := os.MkdirAll(*targetDir, 0o755); err != nil {
		log.Fatalf("Failed to create archive directory: %v", err)
	}

	legacyFiles, err := filepath.Glob(filepath.Join(*legacyDir, "*.log"))
	if err != nil {
		log.Fatalf("Failed to list legacy logs: %v", err)
	}
	if len(legacyFiles) == 0 {
		log.Println("No legacy player count logs found to convert.")
		return
	}

	var failures int
	for _, file := range legacyFiles {
		base := strings.TrimSuffix(filepath.Base(file), ".log")
		target := filepath.Join(*targetDir, base+".log.gz")

		if err := compressFile(file, target); err != nil {
			log.Printf("Failed to convert %s: %v", file, err)
			failures++
			continue
		}
		if !*keep {
			if err := os.Remove(file); err != nil {
				log.Printf("Converted %s but could not remove it: %v", file, err)
			}
		}
		log.Printf("Converted %s -> %s", file, target)
	}

	if failures > 0 {
		os.Exit(1)
	}
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	if _, err := io.Copy(gz, in); err != nil {
		tmp.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
