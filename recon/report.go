package recon

import "github.com/warp/authz-report/table"

// Sheet is one named table of the report.
type Sheet struct {
	Name  string
	Table *table.Table
}

// Report is the assembled output: CKH, KKH and the three criterion views.
// Each view is a full snapshot, the next view extends the previous one.
type Report struct {
	Sheets []Sheet
}

// Sheet returns the named sheet, or nil.
func (r *Report) Sheet(name string) *table.Table {
	for _, s := range r.Sheets {
		if s.Name == name {
			return s.Table
		}
	}
	return nil
}

// Criterion1 .. Criterion3 return the three views.
func (r *Report) Criterion1() *table.Table { return r.Sheet(SheetCriterion1) }
func (r *Report) Criterion2() *table.Table { return r.Sheet(SheetCriterion2) }
func (r *Report) Criterion3() *table.Table { return r.Sheet(SheetCriterion3) }

// AssembleReport derives the three views from the resolved register:
//
//	tieu chi 1 = resolved + LOAI_TK + duration flags
//	tieu chi 2 = tieu chi 1 + SMS + SCM010 flags
//	tieu chi 3 = tieu chi 2 + concentration flag
//
// The raw CKH and KKH tables lead the sheet list. A nil raw table is skipped.
func AssembleReport(fixedTerm, demand, resolved *table.Table, flags *FlagEngine) *Report {
	view1 := flags.WithDurationFlags(flags.WithClassification(resolved)).Renamed(SheetCriterion1)
	view2 := flags.WithRegistrationFlags(view1).Renamed(SheetCriterion2)
	view3 := flags.WithConcentrationFlag(view2).Renamed(SheetCriterion3)

	r := &Report{}
	if fixedTerm != nil {
		r.Sheets = append(r.Sheets, Sheet{Name: SheetFixedTerm, Table: fixedTerm})
	}
	if demand != nil {
		r.Sheets = append(r.Sheets, Sheet{Name: SheetDemand, Table: demand})
	}
	r.Sheets = append(r.Sheets,
		Sheet{Name: SheetCriterion1, Table: view1},
		Sheet{Name: SheetCriterion2, Table: view2},
		Sheet{Name: SheetCriterion3, Table: view3},
	)
	return r
}

// EmptyResolved is the resolved table of a run without authorization rows.
func EmptyResolved() *table.Table {
	cols := append([]string(nil), AuthorizationColumns...)
	return table.New("MUC 30", append(cols, ColGrantorCIF)...)
}
