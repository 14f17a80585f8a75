/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the run model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers

TYPES:
  Runs:
    RunDTO, WarningDTO, SheetDTO, InputsDTO, FolderRunRequest

  Preview:
    PreviewDTO

SEE ALSO:
  - handlers.go: Uses these types
  - recon/store.go: Run model
*/
package api

import (
	"time"

	"github.com/warp/authz-report/recon"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// FolderRunRequest starts a run over two folders below the configured root.
// Empty fields fall back to the configured defaults.
type FolderRunRequest struct {
	FixedTermDir string `json:"fixed_term_dir"`
	CommonDir    string `json:"common_dir"`
}

// RunDTO represents a run in API responses.
type RunDTO struct {
	ID          string       `json:"id"`
	Source      string       `json:"source"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	Warnings    []WarningDTO `json:"warnings"`
	Sheets      []SheetDTO   `json:"sheets"`
	Inputs      InputsDTO    `json:"inputs"`
	ReportName  string       `json:"report_name,omitempty"`
	ReportURL   string       `json:"report_url,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

type WarningDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SheetDTO struct {
	Name       string `json:"name"`
	Rows       int    `json:"rows"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// InputsDTO lists the files a run read.
type InputsDTO struct {
	FixedTerm         []string `json:"fixed_term"`
	Demand            []string `json:"demand"`
	Authorization     string   `json:"authorization,omitempty"`
	SMS               string   `json:"sms,omitempty"`
	Secondary         string   `json:"secondary,omitempty"`
	Ignored           []string `json:"ignored,omitempty"`
	AuthorizationRows int      `json:"authorization_rows"`
	ResolvedRows      int      `json:"resolved_rows"`
}

// PreviewDTO is the head of one report sheet.
type PreviewDTO struct {
	RunID     string     `json:"run_id"`
	Sheet     string     `json:"sheet"`
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// =============================================================================
// CONVERSION
// =============================================================================

func toRunDTO(run recon.Run) RunDTO {
	dto := RunDTO{
		ID:          run.ID,
		Source:      run.SourceKind,
		Description: run.SourceDesc,
		Status:      string(run.Status),
		Error:       run.Error,
		Warnings:    make([]WarningDTO, len(run.Warnings)),
		Sheets:      make([]SheetDTO, len(run.Sheets)),
		Inputs: InputsDTO{
			FixedTerm:         nonNil(run.Inputs.FixedTermFiles),
			Demand:            nonNil(run.Inputs.DemandFiles),
			Authorization:     run.Inputs.AuthorizationFile,
			SMS:               run.Inputs.SMSFile,
			Secondary:         run.Inputs.SecondaryFile,
			Ignored:           run.Inputs.Ignored,
			AuthorizationRows: run.Inputs.AuthorizationRows,
			ResolvedRows:      run.Inputs.ResolvedRows,
		},
		ReportName:  run.ReportName,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
	for i, w := range run.Warnings {
		dto.Warnings[i] = WarningDTO{Code: w.Code, Message: w.Message}
	}
	for i, s := range run.Sheets {
		dto.Sheets[i] = SheetDTO{Name: s.Name, Rows: s.Rows}
	}
	if run.Status == recon.RunCompleted {
		dto.ReportURL = "/api/runs/" + run.ID + "/report"
		for i := range dto.Sheets {
			dto.Sheets[i].PreviewURL = "/api/runs/" + run.ID + "/preview/" + pathEscape(dto.Sheets[i].Name)
		}
	}
	return dto
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
