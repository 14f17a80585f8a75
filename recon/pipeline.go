/*
pipeline.go - One report run, end to end

PURPOSE:
  Decodes a source.Bundle and drives the stages:

    Loader -> Classifier || Resolver -> FlagEngine -> Report

FAILURE POLICY:
  CKH, KKH missing or undecodable     -> fatal, error names the source
  MUC 30 undecodable                  -> fatal
  MUC 30 absent or without rows       -> criterion sheets empty, warning
  DK_SMS / SCM010 absent/undecodable  -> flag column empty, warning
  Per-row problems (dates, joins)     -> sentinel values, never fatal

  Everything is in memory before the first stage runs. Nothing is
  persisted here; see service/runner.go for history and artifacts.

SEE ALSO:
  - source/source.go: Bundle
  - table/decode.go: Loader
*/
package recon

import (
	"context"

	"github.com/warp/authz-report/source"
	"github.com/warp/authz-report/table"
	"go.uber.org/zap"
)

// Imputation grouping options.
const (
	ImputeByGrantee = "grantee"
	ImputeByGrantor = "grantor"
)

// Pipeline runs the report engine over one bundle.
type Pipeline struct {
	Patterns source.Patterns
	ImputeBy string // ImputeByGrantee (default) or ImputeByGrantor
	Logger   *zap.Logger
}

// NewPipeline returns a pipeline with default settings.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		Patterns: source.DefaultPatterns(),
		ImputeBy: ImputeByGrantee,
		Logger:   logger,
	}
}

// Result is the outcome of a successful run.
type Result struct {
	Report   *Report
	Warnings []Warning
	Inputs   InputSummary
}

// InputSummary records what was read.
type InputSummary struct {
	FixedTermFiles    []string
	DemandFiles       []string
	AuthorizationFile string
	SMSFile           string
	SecondaryFile     string
	Ignored           []string

	AuthorizationRows int
	ResolvedRows      int
}

// Run processes the bundle.
func (p *Pipeline) Run(ctx context.Context, b *source.Bundle) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := p.logger()
	res := &Result{}
	res.Inputs.Ignored = b.Ignored

	// Required account extracts
	fixedTerm, err := p.loadRequired(source.KindFixedTerm, b.FixedTerm, res)
	if err != nil {
		return nil, err
	}
	res.Inputs.FixedTermFiles = fileNames(b.FixedTerm)

	demand, err := p.loadRequired(source.KindDemand, b.Demand, res)
	if err != nil {
		return nil, err
	}
	res.Inputs.DemandFiles = fileNames(b.Demand)

	// Authorization register: absent is degraded, undecodable is fatal
	var auth *table.Table
	if b.Authorization != nil {
		res.Inputs.AuthorizationFile = b.Authorization.Name
		auth, err = p.load(*b.Authorization, res)
		if err != nil {
			return nil, err
		}
		res.Inputs.AuthorizationRows = auth.Len()
	}

	// Optional registration lists
	flags := &FlagEngine{Classifier: NewClassifier(fixedTerm, demand)}
	flags.SMS = p.loadRegistration(b.SMS, ColSMSFlag, res, func(t *table.Table) (RegistrationSet, []Warning) {
		return BuildSMSSet(NormalizeSMSDates(t))
	})
	if b.SMS != nil {
		res.Inputs.SMSFile = b.SMS.Name
	}
	flags.Secondary = p.loadRegistration(b.Secondary, ColSecondaryFlag, res, BuildSecondarySet)
	if b.Secondary != nil {
		res.Inputs.SecondaryFile = b.Secondary.Name
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fixedSize, demandSize := flags.Classifier.Sizes()
	log.Debug("account sets built",
		zap.Int("fixed_term_customers", fixedSize),
		zap.Int("demand_accounts", demandSize))

	// Resolve
	var resolved *table.Table
	if auth == nil || auth.Len() == 0 {
		res.Warnings = append(res.Warnings, &EmptyAuthorizationWarning{Supplied: auth != nil})
		resolved = EmptyResolved()
	} else {
		resolver := NewResolver(table.Concat("CKH+KKH", fixedTerm, demand))
		resolver.ImputeBy = p.imputeColumn()
		var warnings []Warning
		resolved, warnings = resolver.Resolve(auth)
		res.Warnings = append(res.Warnings, warnings...)
	}
	res.Inputs.ResolvedRows = resolved.Len()

	res.Report = AssembleReport(fixedTerm.Renamed(SheetFixedTerm), demand.Renamed(SheetDemand), resolved, flags)

	for _, w := range res.Warnings {
		log.Warn(w.Error(), zap.String("code", w.Code()))
	}
	log.Info("report assembled",
		zap.Int("authorization_rows", res.Inputs.AuthorizationRows),
		zap.Int("resolved_rows", res.Inputs.ResolvedRows),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

func (p *Pipeline) loadRequired(kind source.Kind, files []source.File, res *Result) (*table.Table, error) {
	if len(files) == 0 {
		pattern := ""
		if frags := p.Patterns.For(kind); len(frags) > 0 {
			pattern = frags[0]
		}
		return nil, &MissingRequiredSourceError{Source: string(kind), Pattern: pattern}
	}
	tables := make([]*table.Table, 0, len(files))
	for _, f := range files {
		t, err := p.load(f, res)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return table.Concat(string(kind), tables...), nil
}

// load decodes one file and records skipped rows.
func (p *Pipeline) load(f source.File, res *Result) (*table.Table, error) {
	dec, err := table.Decode(f.Name, f.Data, table.HintFor(f.Name))
	if err != nil {
		return nil, err
	}
	if dec.SkippedRows > 0 {
		res.Warnings = append(res.Warnings, &SkippedRowsWarning{Source: f.Name, Rows: dec.SkippedRows})
	}
	p.logger().Debug("source decoded",
		zap.String("file", f.Name),
		zap.String("strategy", dec.Strategy),
		zap.Int("rows", dec.Table.Len()))
	return dec.Table, nil
}

// loadRegistration decodes an optional source; any failure leaves the set nil.
func (p *Pipeline) loadRegistration(f *source.File, flag string, res *Result,
	build func(*table.Table) (RegistrationSet, []Warning)) RegistrationSet {
	if f == nil {
		res.Warnings = append(res.Warnings, &OptionalSourceWarning{Source: flagSource(flag), Flag: flag})
		return nil
	}
	t, err := p.load(*f, res)
	if err != nil {
		res.Warnings = append(res.Warnings, &OptionalSourceWarning{Source: f.Name, Flag: flag, Err: err})
		return nil
	}
	set, warnings := build(t)
	res.Warnings = append(res.Warnings, warnings...)
	return set
}

func (p *Pipeline) imputeColumn() string {
	if p.ImputeBy == ImputeByGrantor {
		return ColGrantor
	}
	return ColGrantee
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func flagSource(flag string) string {
	if flag == ColSMSFlag {
		return string(source.KindSMS)
	}
	return string(source.KindSecondary)
}

func fileNames(files []source.File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}
