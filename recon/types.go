/*
Package recon is the authorization compliance engine.

PURPOSE:
  Reconciles the authorization register (MUC 30) against the account
  extracts (CKH fixed-term, KKH demand) and two registration lists
  (DK_SMS, SCM010), derives risk flags, and assembles the report views.
  This package has no knowledge of how files are acquired or how the
  report is serialized.

KEY CONCEPTS IN THIS FILE (types.go):
  - Upstream column names (fixed by the bank's extracts)
  - Derived column names (fixed by the report)
  - AccountClass: CKH / KKH / NA
  - Flag rendering: "X" or ""

PIPELINE:
  Loader -> Classifier || Resolver -> FlagEngine -> Report

  1. pipeline.go:   decodes the bundle, enforces required sources
  2. classifier.go: membership sets from CKH / KKH
  3. resolver.go:   signature filter, dates, corporate exclusion,
                    grantee names, dedup, CIF join, imputation
  4. flags.go:      duration, SMS, SCM010, concentration flags
  5. report.go:     CKH, KKH, tieu chi 1/2/3 sheets

SEE ALSO:
  - table/table.go: the Table every stage consumes and produces
  - errors.go: errors and warnings
*/
package recon

import "github.com/warp/authz-report/table"

// =============================================================================
// UPSTREAM COLUMNS
// =============================================================================

const (
	// Account extracts (CKH, KKH)
	ColAccountID   = "IDXACNO"
	ColCustomerSeq = "CUSTSEQ"

	// Authorization register (MUC 30)
	ColGrantor           = "NGUOI_UY_QUYEN"
	ColGrantee           = "NGUOI_DUOC_UY_QUYEN"
	ColAuthorizedAccount = "TK_DUOC_UY_QUYEN"
	ColBranch            = "PRIMARY_SOL_ID"
	ColEffectiveDate     = "EFFECTIVEDATE"
	ColExpiryDate        = "EXPIRYDATE"
	ColDescription       = "DESCRIPTION"
	ColModifiedDateNew   = "MODIFIEDDATE_NEW"

	// SMS registrations (DK_SMS)
	ColSMSAccount      = "FORACID"
	ColSMSCustomerType = "CUSTTPCD"
	ColSMSMobile       = "C_MOBILE_NO"
	ColSMSCreated      = "CRE_DATE"

	// Secondary registrations (SCM010)
	ColSecondaryCIF = "CIF_ID"
)

// AuthorizationColumns are the MUC 30 columns the resolver relies on.
var AuthorizationColumns = []string{
	ColDescription,
	ColEffectiveDate,
	ColExpiryDate,
	ColGrantor,
	ColGrantee,
	ColAuthorizedAccount,
	ColBranch,
}

// =============================================================================
// DERIVED COLUMNS (in derivation order)
// =============================================================================

const (
	ColGrantorCIF    = "CIF_NGUOI_UY_QUYEN"
	ColAccountClass  = "LOAI_TK"
	ColNoDuration    = "KHONG_NHAP_TGIAN_UQ"
	ColOver50Years   = "UQ_TREN_50_NAM"
	ColSMSFlag       = "TK có đăng ký SMS"
	ColSecondaryFlag = "CIF có đăng ký SCM010"
	ColConcentration = "1 người nhận UQ của nhiều người"
)

// UnresolvedCIF marks a grantor whose customer id could not be resolved.
const UnresolvedCIF = "NA"

// =============================================================================
// ACCOUNT CLASS
// =============================================================================

type AccountClass int

const (
	ClassUnknown AccountClass = iota
	ClassFixedTerm
	ClassDemand
)

// String renders the class the way the report shows it.
func (c AccountClass) String() string {
	switch c {
	case ClassFixedTerm:
		return "CKH"
	case ClassDemand:
		return "KKH"
	default:
		return "NA"
	}
}

// =============================================================================
// FLAGS
// =============================================================================

// FlagMark is the rendered value of a set flag.
const FlagMark = "X"

// Flag renders a boolean flag as "X" or "".
func Flag(set bool) table.Value {
	if set {
		return table.Text(FlagMark)
	}
	return table.Text("")
}

// =============================================================================
// SHEETS
// =============================================================================

const (
	SheetFixedTerm  = "CKH"
	SheetDemand     = "KKH"
	SheetCriterion1 = "tieu chi 1"
	SheetCriterion2 = "tieu chi 2"
	SheetCriterion3 = "tieu chi 3"
)
