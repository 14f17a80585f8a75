/*
Package folder reads a run's extracts from two directories.

LAYOUT:
  FixedTermDir: only CKH extracts (HDV_CHITIET_CKH_*), every match is used
  CommonDir:    KKH extracts plus MUC 30, DK_SMS and SCM010

  Files in FixedTermDir that are not CKH extracts are ignored, and CKH
  extracts found in CommonDir are ignored too; the fixed-term folder is
  the only place they are read from.

READS:
  Files are read concurrently (errgroup); the bundle is returned only once
  every file is in memory.
*/
package folder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warp/authz-report/source"
	"golang.org/x/sync/errgroup"
)

// maxParallelReads bounds concurrent file reads.
const maxParallelReads = 4

// Folder is a source.Source over a fixed-term folder and a common folder.
type Folder struct {
	FixedTermDir string
	CommonDir    string
	Patterns     source.Patterns
}

// New returns a folder source.
func New(fixedTermDir, commonDir string, patterns source.Patterns) *Folder {
	return &Folder{FixedTermDir: fixedTermDir, CommonDir: commonDir, Patterns: patterns}
}

func (f *Folder) Describe() string {
	return fmt.Sprintf("folders %s + %s", f.FixedTermDir, f.CommonDir)
}

// Bundle lists both folders, reads the matching files and sorts them.
func (f *Folder) Bundle(ctx context.Context) (*source.Bundle, error) {
	ckhNames, ckhIgnored, err := f.list(f.FixedTermDir, func(k source.Kind) bool { return k == source.KindFixedTerm })
	if err != nil {
		return nil, err
	}
	commonNames, commonIgnored, err := f.list(f.CommonDir, func(k source.Kind) bool { return k != source.KindFixedTerm })
	if err != nil {
		return nil, err
	}

	paths := append(ckhNames, commonNames...)
	files := make([]source.File, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			files[i] = source.File{Name: filepath.Base(p), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := source.Match(files, f.Patterns)
	b.Ignored = append(b.Ignored, ckhIgnored...)
	b.Ignored = append(b.Ignored, commonIgnored...)
	return b, nil
}

// list returns the supported files of dir whose kind passes keep.
func (f *Folder) list(dir string, keep func(source.Kind) bool) (paths, ignored []string, err error) {
	if dir == "" {
		return nil, nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list folder %s: %v", source.ErrUnreadable, dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !source.IsSupported(e.Name()) {
			continue
		}
		kind, ok := f.Patterns.Classify(e.Name())
		if !ok || !keep(kind) {
			ignored = append(ignored, e.Name())
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, ignored, nil
}
