// Command tail prints the last lines of the newest player count archive,
// for eyeballing what the sampler has been writing.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"annistats/pkg/config"
)

func main() {
	dir := flag.String("dir", config.DefaultArchiveDir, "archive directory")
	lines := flag.Int("n", 300, "number of lines to print")
	flag.Parse()

	latest, err := findLatestArchive(*dir)
	if err != nil {
		log.Fatalf("Failed to locate latest archive: %v", err)
	}
	if latest == "" {
		log.Printf("No player count archives found in %s.", *dir)
		return
	}

	tail, err := readTail(latest, *lines)
	if err != nil {
		log.Fatalf("Failed to read latest player count archive: %v", err)
	}

	fmt.Printf("--- Latest player count file: %s (last %d lines) ---\n", latest, len(tail))
	for _, line := range tail {
		fmt.Println(line)
	}
}

// findLatestArchive returns the most recently modified .log.gz in dir.
func findLatestArchive(dir string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.log.gz"))
	if err != nil {
		return "", err
	}

	var latest string
	var latestMod int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest = file
			latestMod = mod
		}
	}
	return latest, nil
}

func readTail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var lines []string
	for scanner.Scan() {
		if scanner.Text() == "" {
			continue
		}
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}
