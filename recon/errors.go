/*
errors.go - Errors and warnings for the report engine

PURPOSE:
  Fatal conditions are errors; everything the pipeline can work around is
  a Warning collected on the Result.

ERROR CATEGORIES:
  1. Fatal - a required source is absent or cannot be decoded
  2. Warnings - degraded output (missing column, failed join, optional
     source unavailable, skipped rows, imputation conflict)
  3. Store errors - run history lookups

USAGE:
  res, err := pipeline.Run(ctx, bundle)
  var missing *recon.MissingRequiredSourceError
  if errors.As(err, &missing) {
      // tell the user which extract to provide
  }
  for _, w := range res.Warnings {
      log.Warn(w.Error(), zap.String("code", w.Code()))
  }

SEE ALSO:
  - table/errors.go: DecodeError
  - pipeline.go: where warnings are collected
*/
package recon

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/authz-report/table"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingRequiredSource is returned when CKH or KKH is absent.
	ErrMissingRequiredSource = errors.New("required source missing")

	// ErrDecode is returned when a source could not be decoded by any strategy.
	ErrDecode = table.ErrDecode

	// ErrRunNotFound is returned by run stores for an unknown id.
	ErrRunNotFound = errors.New("run not found")

	// ErrArtifactNotFound is returned when a run has no stored report.
	ErrArtifactNotFound = errors.New("report artifact not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// DecodeError is the loader's error type.
type DecodeError = table.DecodeError

// MissingRequiredSourceError names the logical source that was not supplied.
type MissingRequiredSourceError struct {
	Source  string
	Pattern string
}

func (e *MissingRequiredSourceError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("required source %s not found (expected a file name containing %q)", e.Source, e.Pattern)
	}
	return fmt.Sprintf("required source %s not found", e.Source)
}

func (e *MissingRequiredSourceError) Unwrap() error {
	return ErrMissingRequiredSource
}

// IsInputError reports whether err was caused by the supplied files.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingRequiredSource) || errors.Is(err, ErrDecode)
}

// =============================================================================
// WARNINGS - non-fatal, collected per run
// =============================================================================

// Warning is a non-fatal condition that degraded part of the report.
type Warning interface {
	error
	Code() string
}

// MissingColumnWarning: a column was absent and synthesized as all-missing.
type MissingColumnWarning struct {
	Source string
	Column string
}

func (w *MissingColumnWarning) Code() string { return "missing_column" }
func (w *MissingColumnWarning) Error() string {
	return fmt.Sprintf("%s: column %s is missing, treated as empty", w.Source, w.Column)
}

// JoinMissWarning: rows whose grantor CIF resolved to NA in the account join.
type JoinMissWarning struct {
	Rows       int      // no account row, or a blank CUSTSEQ
	Unparsable int      // CUSTSEQ present but not numeric
	Sample     []string // first few authorized accounts affected
}

func (w *JoinMissWarning) Code() string { return "join_miss" }
func (w *JoinMissWarning) Error() string {
	msg := fmt.Sprintf("%d authorization rows have no grantor CIF", w.Rows+w.Unparsable)
	if w.Unparsable > 0 {
		msg += fmt.Sprintf(" (%d with a non-numeric CUSTSEQ)", w.Unparsable)
	}
	if len(w.Sample) > 0 {
		msg += ", e.g. accounts " + strings.Join(w.Sample, ", ")
	}
	return msg
}

// OptionalSourceWarning: an optional source was absent or unreadable,
// so the flag depending on it is empty for every row.
type OptionalSourceWarning struct {
	Source string
	Flag   string
	Err    error
}

func (w *OptionalSourceWarning) Code() string { return "optional_source_unavailable" }
func (w *OptionalSourceWarning) Error() string {
	if w.Err != nil {
		return fmt.Sprintf("%s unavailable (%v); column %q left empty", w.Source, w.Err, w.Flag)
	}
	return fmt.Sprintf("%s not supplied; column %q left empty", w.Source, w.Flag)
}

func (w *OptionalSourceWarning) Unwrap() error { return w.Err }

// EmptyAuthorizationWarning: no authorization rows, so every view is empty.
type EmptyAuthorizationWarning struct {
	Supplied bool
}

func (w *EmptyAuthorizationWarning) Code() string { return "empty_authorization" }
func (w *EmptyAuthorizationWarning) Error() string {
	if w.Supplied {
		return "authorization register has no rows; criterion sheets are empty"
	}
	return "authorization register not supplied; criterion sheets are empty"
}

// SkippedRowsWarning: malformed delimited rows dropped by the loader.
type SkippedRowsWarning struct {
	Source string
	Rows   int
}

func (w *SkippedRowsWarning) Code() string { return "skipped_rows" }
func (w *SkippedRowsWarning) Error() string {
	return fmt.Sprintf("%s: %d malformed rows skipped", w.Source, w.Rows)
}

// ImputationConflictWarning: one imputation group carries several distinct
// concrete CIFs. Rows keep their own value; only NA rows were filled.
type ImputationConflictWarning struct {
	GroupColumn string
	Group       string
	CIFs        []string
}

func (w *ImputationConflictWarning) Code() string { return "imputation_conflict" }
func (w *ImputationConflictWarning) Error() string {
	return fmt.Sprintf("%s %q maps to several CIFs (%s); NA rows filled with %s",
		w.GroupColumn, w.Group, strings.Join(w.CIFs, ", "), w.CIFs[0])
}
