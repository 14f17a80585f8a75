/*
resolver.go - Authorization Resolver

PURPOSE:
  Turns the raw MUC 30 register into one row per signature authorization
  with a resolved grantor CIF.

STEPS (in order):
  1. FilterSignatures        keep DESCRIPTION ~ chu ky / chuky / cky
  2. NormalizeDates          EFFECTIVEDATE, EXPIRYDATE -> MM/DD/YYYY or missing
  3. ExcludeCorporate        drop grantors whose name contains a company token
  4. NormalizeGrantees       NGUOI_DUOC_UY_QUYEN -> extracted clean name
  5. Dedup                   first row per (branch, account, grantee)
  6. JoinCIF                 left join on TK_DUOC_UY_QUYEN = IDXACNO
  7. ImputeCIF               fill NA rows from the first concrete CIF in the group

INVARIANTS:
  - CIF_NGUOI_UY_QUYEN is a digit string or "NA", never blank
  - Every step returns a new table; the input is never modified
  - Missing MUC 30 columns are synthesized as all-missing (degraded run)

SEE ALSO:
  - names.go: signature, corporate and grantee predicates
  - dates.go: date parsing
  - flags.go: consumes the resolved table
*/
package recon

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/authz-report/table"
)

// joinMissSampleSize bounds the account ids quoted in a JoinMissWarning.
const joinMissSampleSize = 5

// Resolver resolves grantor CIFs for the authorization register.
type Resolver struct {
	// Accounts is CKH and KKH concatenated; it provides IDXACNO -> CUSTSEQ.
	Accounts *table.Table

	// ImputeBy is the grouping column for CIF imputation.
	ImputeBy string

	// IsCorporate decides which grantors are companies.
	IsCorporate func(name string) bool
}

// NewResolver returns a resolver grouping imputation by grantee.
func NewResolver(accounts *table.Table) *Resolver {
	return &Resolver{
		Accounts:    accounts,
		ImputeBy:    ColGrantee,
		IsCorporate: IsCorporateName,
	}
}

// Resolve runs every step on the register.
func (r *Resolver) Resolve(auth *table.Table) (*table.Table, []Warning) {
	var warnings []Warning

	auth, missing := RequireColumns(auth, AuthorizationColumns...)
	warnings = append(warnings, missing...)

	isCorporate := r.IsCorporate
	if isCorporate == nil {
		isCorporate = IsCorporateName
	}

	auth = FilterSignatures(auth)
	auth = NormalizeDates(auth)
	auth = ExcludeCorporate(auth, isCorporate)
	auth = NormalizeGrantees(auth)
	auth = Dedup(auth)

	joined, joinWarnings := JoinCIF(auth, r.Accounts)
	warnings = append(warnings, joinWarnings...)

	groupBy := r.ImputeBy
	if groupBy == "" {
		groupBy = ColGrantee
	}
	imputed, conflicts := ImputeCIF(joined, groupBy)
	warnings = append(warnings, conflicts...)

	return imputed, warnings
}

// RequireColumns adds every absent column as all-missing and reports it.
func RequireColumns(t *table.Table, cols ...string) (*table.Table, []Warning) {
	var warnings []Warning
	for _, col := range cols {
		if t.Has(col) {
			continue
		}
		t = t.WithMissing(col)
		warnings = append(warnings, &MissingColumnWarning{Source: t.Name(), Column: col})
	}
	return t, warnings
}

// =============================================================================
// STEP 1-5: FILTER AND NORMALIZE
// =============================================================================

// FilterSignatures keeps signature / periodic-renewal rows.
func FilterSignatures(t *table.Table) *table.Table {
	desc := t.Column(ColDescription)
	return t.Filter(func(i int) bool {
		s, ok := desc[i].Str()
		return ok && IsSignatureDescription(s)
	})
}

// NormalizeDates re-renders both date columns as MM/DD/YYYY.
func NormalizeDates(t *table.Table) *table.Table {
	for _, col := range []string{ColExpiryDate, ColEffectiveDate} {
		raw := t.Column(col)
		out := make([]table.Value, len(raw))
		for i, v := range raw {
			out[i] = NormalizeDate(v)
		}
		t = t.With(col, out)
	}
	return t
}

// ExcludeCorporate drops rows whose grantor is a company. Rows without a
// grantor are kept.
func ExcludeCorporate(t *table.Table, isCorporate func(string) bool) *table.Table {
	grantors := t.Column(ColGrantor)
	return t.Filter(func(i int) bool {
		s, ok := grantors[i].Str()
		return !ok || !isCorporate(s)
	})
}

// NormalizeGrantees replaces the raw grantee field with the extracted name.
func NormalizeGrantees(t *table.Table) *table.Table {
	raw := t.Column(ColGrantee)
	out := make([]table.Value, len(raw))
	for i, v := range raw {
		if s, ok := v.Str(); ok {
			out[i] = table.Text(ExtractGranteeName(s))
		}
	}
	return t.With(ColGrantee, out)
}

type dedupKey struct {
	branch, account, grantee table.Value
}

// Dedup keeps the first row per (branch, authorized account, grantee).
// Missing values compare equal to each other.
func Dedup(t *table.Table) *table.Table {
	seen := make(map[dedupKey]struct{}, t.Len())
	return t.Filter(func(i int) bool {
		k := dedupKey{
			branch:  t.Get(i, ColBranch),
			account: t.Get(i, ColAuthorizedAccount),
			grantee: t.Get(i, ColGrantee),
		}
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}

// =============================================================================
// STEP 6: CIF JOIN
// =============================================================================

// JoinCIF left-joins the register on TK_DUOC_UY_QUYEN = IDXACNO and adds
// CIF_NGUOI_UY_QUYEN. A register row matching several account rows is
// repeated once per match, in account order. Account-side columns and
// MODIFIEDDATE_NEW are not carried over.
func JoinCIF(auth, accounts *table.Table) (*table.Table, []Warning) {
	var warnings []Warning
	auth = auth.Without(ColAccountID, ColCustomerSeq, ColModifiedDateNew)

	index := make(map[string][]int)
	var custSeq []table.Value
	if accounts != nil {
		acc, missing := RequireColumns(accounts, ColAccountID, ColCustomerSeq)
		warnings = append(warnings, missing...)
		for i, v := range acc.Column(ColAccountID) {
			if s, ok := v.Str(); ok {
				index[s] = append(index[s], i)
			}
		}
		custSeq = acc.Column(ColCustomerSeq)
	}

	var (
		rows []int
		cifs []table.Value
		miss = &JoinMissWarning{}
	)
	accountIDs := auth.Column(ColAuthorizedAccount)
	for i, v := range accountIDs {
		var matches []int
		if s, ok := v.Str(); ok {
			matches = index[s]
		}
		if len(matches) == 0 {
			rows = append(rows, i)
			cifs = append(cifs, table.Text(UnresolvedCIF))
			miss.Rows++
			miss.sample(v)
			continue
		}
		for _, m := range matches {
			cif, status := coerceCIF(custSeq[m])
			switch status {
			case cifBlank:
				miss.Rows++
				miss.sample(v)
			case cifUnparsable:
				miss.Unparsable++
				miss.sample(v)
			}
			rows = append(rows, i)
			cifs = append(cifs, table.Text(cif))
		}
	}

	if miss.Rows+miss.Unparsable > 0 {
		warnings = append(warnings, miss)
	}
	return auth.Pick(rows).With(ColGrantorCIF, cifs), warnings
}

func (w *JoinMissWarning) sample(account table.Value) {
	if len(w.Sample) >= joinMissSampleSize {
		return
	}
	w.Sample = append(w.Sample, account.Or("<missing>"))
}

type cifStatus int

const (
	cifResolved cifStatus = iota
	cifBlank
	cifUnparsable
)

// coerceCIF turns a CUSTSEQ cell into an integer string: numeric coercion,
// truncation toward zero. Missing or blank cells and non-numeric text give NA.
func coerceCIF(v table.Value) (string, cifStatus) {
	s, ok := v.Str()
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return UnresolvedCIF, cifBlank
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return UnresolvedCIF, cifUnparsable
	}
	return d.Truncate(0).String(), cifResolved
}

// =============================================================================
// STEP 7: GROUP IMPUTATION
// =============================================================================

// ImputeCIF fills NA rows with the first concrete CIF of their group.
// The fill table is computed first and the column is rebuilt from it, so
// the result does not depend on group iteration order. Rows with a missing
// group key are left alone.
func ImputeCIF(t *table.Table, groupBy string) (*table.Table, []Warning) {
	if !t.Has(groupBy) || !t.Has(ColGrantorCIF) {
		return t, nil
	}
	keys := t.Column(groupBy)
	cifs := t.Column(ColGrantorCIF)

	fill := make(map[string]string)
	distinct := make(map[string][]string)
	var order []string
	for i, k := range keys {
		key, ok := k.Str()
		cif := cifs[i].String()
		if !ok || cif == UnresolvedCIF {
			continue
		}
		if _, seen := fill[key]; !seen {
			fill[key] = cif
			order = append(order, key)
		}
		if !containsString(distinct[key], cif) {
			distinct[key] = append(distinct[key], cif)
		}
	}

	out := make([]table.Value, len(cifs))
	for i, v := range cifs {
		out[i] = v
		key, ok := keys[i].Str()
		if !ok || v.String() != UnresolvedCIF {
			continue
		}
		if cif, found := fill[key]; found {
			out[i] = table.Text(cif)
		}
	}

	var warnings []Warning
	for _, key := range order {
		if ids := distinct[key]; len(ids) > 1 {
			warnings = append(warnings, &ImputationConflictWarning{GroupColumn: groupBy, Group: key, CIFs: ids})
		}
	}
	return t.With(ColGrantorCIF, out), warnings
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
