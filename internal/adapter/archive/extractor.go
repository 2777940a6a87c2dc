// Package archive unpacks gauge export archives and finds the CSV files inside.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/gauge-forecast-etl/internal/domain"
)

// DataFile is one CSV file discovered in the data directory.
type DataFile = domain.DataFile

// Extractor implements pipeline.FileSource over a local directory of zip archives.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// ListDataFiles extracts every zip archive directly inside dir into a sibling
// directory named after the archive (replacing any previous extraction) and
// returns the CSV files found there. Loose CSV files in dir are returned too,
// each in a group of its own.
func (e *Extractor) ListDataFiles(ctx context.Context, dir string) ([]DataFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list data dir: %w", err)
	}

	var files []DataFile
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		switch strings.ToLower(filepath.Ext(name)) {
		case ".zip":
			target := filepath.Join(dir, stem)
			if err := extract(filepath.Join(dir, name), target); err != nil {
				return nil, err
			}
			e.logger.Info("archive extracted", "archive", name, "target", target)

			csvs, err := csvFiles(target)
			if err != nil {
				return nil, err
			}
			for _, p := range csvs {
				files = append(files, DataFile{Path: p, Group: stem})
			}
		case ".csv":
			files = append(files, DataFile{Path: filepath.Join(dir, name), Group: stem})
		}
	}

	slices.SortFunc(files, func(a, b DataFile) int {
		if c := strings.Compare(a.Group, b.Group); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	return files, nil
}

func extract(archivePath, target string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("clear %s: %w", target, err)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	root := filepath.Clean(target) + string(os.PathSeparator)
	for _, f := range zr.File {
		dest := filepath.Join(target, f.Name)
		if !strings.HasPrefix(dest, root) {
			return fmt.Errorf("archive %s: entry %q escapes extraction directory", archivePath, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dest, err)
			}
			continue
		}
		if err := extractFile(f, dest); err != nil {
			return fmt.Errorf("archive %s: %w", archivePath, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return out.Close()
}

// csvFiles lists the CSV files directly inside dir.
func csvFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	return out, nil
}
