/*
Package source defines how raw extracts reach the report engine.

PURPOSE:
  Acquisition is not part of the engine. Whatever the front end (a zip
  upload, a pair of folders), it produces a list of named files, and
  Match sorts them into the five logical sources by name pattern.

KEY TYPES:
  File:     name + bytes, nothing decoded yet
  Bundle:   the files of one run, by logical source
  Source:   anything that can produce a Bundle
  Patterns: case-insensitive name fragments per logical source

IMPLEMENTATIONS:
  - source/archive: zip archive upload
  - source/folder:  fixed-term folder + common folder

SEE ALSO:
  - recon/pipeline.go: decodes and processes a Bundle
*/
package source

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// =============================================================================
// LOGICAL SOURCES
// =============================================================================

type Kind string

const (
	KindFixedTerm     Kind = "CKH"
	KindDemand        Kind = "KKH"
	KindAuthorization Kind = "MUC30"
	KindSMS           Kind = "DK_SMS"
	KindSecondary     Kind = "SCM010"
)

// Kinds lists the logical sources in matching priority order.
var Kinds = []Kind{KindFixedTerm, KindDemand, KindAuthorization, KindSMS, KindSecondary}

// File is one acquired file.
type File struct {
	Name string
	Data []byte
}

// Bundle holds the files of one run. CKH and KKH may span several files.
type Bundle struct {
	FixedTerm     []File
	Demand        []File
	Authorization *File
	SMS           *File
	Secondary     *File

	// Ignored lists file names that matched no pattern.
	Ignored []string
}

// Source produces the bundle for one run.
type Source interface {
	Bundle(ctx context.Context) (*Bundle, error)
	Describe() string
}

// ErrUnreadable marks a source whose container could not be opened at all,
// such as a corrupt zip or a folder that does not exist.
var ErrUnreadable = errors.New("source unreadable")

// =============================================================================
// PATTERNS
// =============================================================================

// Patterns holds the name fragments identifying each logical source.
type Patterns struct {
	FixedTerm     []string `yaml:"fixed_term"`
	Demand        []string `yaml:"demand"`
	Authorization []string `yaml:"authorization"`
	SMS           []string `yaml:"sms"`
	Secondary     []string `yaml:"secondary"`
}

// DefaultPatterns are the file names the bank's extracts carry.
func DefaultPatterns() Patterns {
	return Patterns{
		FixedTerm:     []string{"HDV_CHITIET_CKH_"},
		Demand:        []string{"HDV_CHITIET_KKH_"},
		Authorization: []string{"MUC 30", "MUC30", "MUC_30"},
		SMS:           []string{"DK_SMS"},
		Secondary:     []string{"SCM010"},
	}
}

// For returns the fragments of one kind.
func (p Patterns) For(k Kind) []string {
	switch k {
	case KindFixedTerm:
		return p.FixedTerm
	case KindDemand:
		return p.Demand
	case KindAuthorization:
		return p.Authorization
	case KindSMS:
		return p.SMS
	case KindSecondary:
		return p.Secondary
	}
	return nil
}

// Classify returns the first kind whose pattern occurs in the base name.
func (p Patterns) Classify(name string) (Kind, bool) {
	base := strings.ToLower(path.Base(filepath.ToSlash(name)))
	for _, k := range Kinds {
		for _, frag := range p.For(k) {
			if frag != "" && strings.Contains(base, strings.ToLower(frag)) {
				return k, true
			}
		}
	}
	return "", false
}

// Match sorts files into a bundle. Files are taken in name order, so the
// first matching name wins for the single-file sources and CKH / KKH
// concatenate in name order.
func Match(files []File, p Patterns) *Bundle {
	sorted := append([]File(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	b := &Bundle{}
	for i := range sorted {
		f := sorted[i]
		kind, ok := p.Classify(f.Name)
		if !ok {
			b.Ignored = append(b.Ignored, f.Name)
			continue
		}
		switch kind {
		case KindFixedTerm:
			b.FixedTerm = append(b.FixedTerm, f)
		case KindDemand:
			b.Demand = append(b.Demand, f)
		case KindAuthorization:
			b.Authorization = first(b.Authorization, f, &b.Ignored)
		case KindSMS:
			b.SMS = first(b.SMS, f, &b.Ignored)
		case KindSecondary:
			b.Secondary = first(b.Secondary, f, &b.Ignored)
		}
	}
	return b
}

func first(current *File, f File, ignored *[]string) *File {
	if current != nil {
		*ignored = append(*ignored, f.Name)
		return current
	}
	return &f
}

// IsSupported reports whether a file name has an extension the loader reads.
func IsSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls", ".txt", ".tsv", ".csv":
		return true
	}
	return false
}
