/*
flags.go - Risk Flag Engine

PURPOSE:
  Adds the derived columns of the three criterion sheets to the resolved
  authorization table. Every flag is computed independently of the others
  and renders as "X" or "".

FLAGS:
  LOAI_TK                          Classify(TK_DUOC_UY_QUYEN)
  KHONG_NHAP_TGIAN_UQ              year_diff == 99 (no real expiry entered)
  UQ_TREN_50_NAM                   year_diff >= 50 (overlaps the 99 flag)
  TK có đăng ký SMS                account in the filtered DK_SMS set
  CIF có đăng ký SCM010            grantor CIF in the SCM010 set
  1 người nhận UQ của nhiều người  grantee authorized by >= 2 distinct grantors

  year_diff = year(EXPIRYDATE) - year(EFFECTIVEDATE), 0 unless both parsed.

OPTIONAL SOURCES:
  A nil registration set means the source was unavailable; the flag column
  is still emitted, empty for every row.

SEE ALSO:
  - classifier.go: account classes
  - report.go: which sheet carries which flags
*/
package recon

import (
	"regexp"
	"strings"

	"github.com/warp/authz-report/table"
)

const (
	// noExpiryYearDiff is what the register holds when no real expiry was entered.
	noExpiryYearDiff  = 99
	longDurationYears = 50

	corporateCustomerType = "KHDN"

	// minConcentrationGrantors is the distinct-grantor count that flags a grantee.
	minConcentrationGrantors = 2
)

var allDigits = regexp.MustCompile(`^[0-9]+$`)

// RegistrationSet is a set of registered ids. Nil means the source was unavailable.
type RegistrationSet map[string]struct{}

// Contains reports membership; a nil set contains nothing.
func (s RegistrationSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// FlagEngine derives the risk flags.
type FlagEngine struct {
	Classifier *Classifier
	SMS        RegistrationSet
	Secondary  RegistrationSet
}

// =============================================================================
// REGISTRATION SETS
// =============================================================================

// BuildSMSSet collects DK_SMS accounts that are all digits and not held by a
// corporate customer (CUSTTPCD KHDN, any case). Rows without a type code are kept.
func BuildSMSSet(t *table.Table) (RegistrationSet, []Warning) {
	if !t.Has(ColSMSAccount) {
		return nil, []Warning{&MissingColumnWarning{Source: t.Name(), Column: ColSMSAccount}}
	}
	var warnings []Warning
	if !t.Has(ColSMSCustomerType) {
		warnings = append(warnings, &MissingColumnWarning{Source: t.Name(), Column: ColSMSCustomerType})
	}

	set := make(RegistrationSet)
	accounts := t.Column(ColSMSAccount)
	for i, v := range accounts {
		acc, ok := v.Str()
		if !ok || !allDigits.MatchString(acc) {
			continue
		}
		if code, ok := t.Get(i, ColSMSCustomerType).Str(); ok && strings.ToUpper(code) == corporateCustomerType {
			continue
		}
		set[acc] = struct{}{}
	}
	return set, warnings
}

// BuildSecondarySet collects SCM010 CIF_ID values (headers trimmed first).
func BuildSecondarySet(t *table.Table) (RegistrationSet, []Warning) {
	t = t.TrimHeaders()
	if !t.Has(ColSecondaryCIF) {
		return nil, []Warning{&MissingColumnWarning{Source: t.Name(), Column: ColSecondaryCIF}}
	}
	set := make(RegistrationSet)
	for _, v := range t.Column(ColSecondaryCIF) {
		if s, ok := v.Str(); ok {
			set[s] = struct{}{}
		}
	}
	return set, nil
}

// NormalizeSMSDates renders CRE_DATE as MM/DD/YYYY when the column exists.
func NormalizeSMSDates(t *table.Table) *table.Table {
	if !t.Has(ColSMSCreated) {
		return t
	}
	raw := t.Column(ColSMSCreated)
	out := make([]table.Value, len(raw))
	for i, v := range raw {
		out[i] = NormalizeDate(v)
	}
	return t.With(ColSMSCreated, out)
}

// =============================================================================
// FLAGS
// =============================================================================

// WithClassification adds LOAI_TK.
func (e *FlagEngine) WithClassification(t *table.Table) *table.Table {
	out := make([]table.Value, t.Len())
	for i := range out {
		class := ClassUnknown
		if s, ok := t.Get(i, ColAuthorizedAccount).Str(); ok && e.Classifier != nil {
			class = e.Classifier.Classify(s)
		}
		out[i] = table.Text(class.String())
	}
	return t.With(ColAccountClass, out)
}

// WithDurationFlags adds KHONG_NHAP_TGIAN_UQ and UQ_TREN_50_NAM.
func (e *FlagEngine) WithDurationFlags(t *table.Table) *table.Table {
	n := t.Len()
	noDuration := make([]table.Value, n)
	over50 := make([]table.Value, n)
	for i := 0; i < n; i++ {
		diff := YearDiff(t.Get(i, ColEffectiveDate), t.Get(i, ColExpiryDate))
		noDuration[i] = Flag(diff == noExpiryYearDiff)
		over50[i] = Flag(diff >= longDurationYears)
	}
	return t.With(ColNoDuration, noDuration).With(ColOver50Years, over50)
}

// WithRegistrationFlags adds the DK_SMS and SCM010 flags.
func (e *FlagEngine) WithRegistrationFlags(t *table.Table) *table.Table {
	n := t.Len()
	sms := make([]table.Value, n)
	secondary := make([]table.Value, n)
	for i := 0; i < n; i++ {
		acc, ok := t.Get(i, ColAuthorizedAccount).Str()
		sms[i] = Flag(ok && e.SMS.Contains(acc))

		cif := t.Get(i, ColGrantorCIF).Or(UnresolvedCIF)
		secondary[i] = Flag(cif != UnresolvedCIF && e.Secondary.Contains(cif))
	}
	return t.With(ColSMSFlag, sms).With(ColSecondaryFlag, secondary)
}

// WithConcentrationFlag marks every row whose grantee has at least two
// distinct grantors. Rows without a grantee are never marked.
func (e *FlagEngine) WithConcentrationFlag(t *table.Table) *table.Table {
	n := t.Len()
	distinct := make(map[string]map[string]struct{})
	for i := 0; i < n; i++ {
		grantee, ok := t.Get(i, ColGrantee).Str()
		if !ok {
			continue
		}
		if distinct[grantee] == nil {
			distinct[grantee] = make(map[string]struct{})
		}
		if grantor, ok := t.Get(i, ColGrantor).Str(); ok {
			distinct[grantee][grantor] = struct{}{}
		}
	}

	out := make([]table.Value, n)
	for i := 0; i < n; i++ {
		grantee, ok := t.Get(i, ColGrantee).Str()
		out[i] = Flag(ok && len(distinct[grantee]) >= minConcentrationGrantors)
	}
	return t.With(ColConcentration, out)
}
