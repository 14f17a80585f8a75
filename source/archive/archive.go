// Package archive reads a run's extracts from an uploaded zip archive.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/warp/authz-report/source"
)

// maxEntrySize bounds a single decompressed entry.
const maxEntrySize = 512 << 20

// Archive is a source.Source over zip bytes.
type Archive struct {
	Name     string
	Data     []byte
	Patterns source.Patterns
}

// New returns an archive source using the given patterns.
func New(name string, data []byte, patterns source.Patterns) *Archive {
	return &Archive{Name: name, Data: data, Patterns: patterns}
}

func (a *Archive) Describe() string { return "archive " + a.Name }

// Bundle extracts every supported file, whatever its directory.
func (a *Archive) Bundle(ctx context.Context) (*source.Bundle, error) {
	files, err := a.Files(ctx)
	if err != nil {
		return nil, err
	}
	return source.Match(files, a.Patterns), nil
}

// Files returns the supported entries of the archive.
func (a *Archive) Files(ctx context.Context) ([]source.File, error) {
	zr, err := zip.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid zip archive %q: %v", source.ErrUnreadable, a.Name, err)
	}

	var files []source.File
	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.FileInfo().IsDir() || isJunk(entry.Name) || !source.IsSupported(entry.Name) {
			continue
		}
		data, err := readEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("read %q from %q: %w", entry.Name, a.Name, err)
		}
		files = append(files, source.File{Name: path.Base(entry.Name), Data: data})
	}
	return files, nil
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("entry larger than %d bytes", maxEntrySize)
	}
	return data, nil
}

// isJunk skips macOS metadata and hidden files.
func isJunk(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(base, ".") ||
		strings.HasPrefix(name, "__MACOSX/") ||
		strings.Contains(name, "/__MACOSX/") ||
		base == "Thumbs.db"
}
