package recon

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	signaturePattern = regexp.MustCompile(`(?i)chu\s*ky|chuky|cky`)
	granteeFragment  = regexp.MustCompile(`^[A-Z ]{3,}$`)
)

// corporateTokens mark a grantor as a company.
var corporateTokens = []string{"CONG TY", "CTY", "CONGTY", "CÔNG TY", "CÔNGTY"}

// IsSignatureDescription reports whether a register description is a
// signature / periodic renewal entry ("chữ ký", "chu ky", "chuky", "cky").
func IsSignatureDescription(desc string) bool {
	return signaturePattern.MatchString(foldDiacritics(desc))
}

// IsCorporateName is a substring test on the uppercased name. Short tokens
// such as CTY can match inside personal names; that over-match is accepted.
func IsCorporateName(name string) bool {
	upper := strings.ToUpper(name)
	for _, tok := range corporateTokens {
		if strings.Contains(upper, tok) {
			return true
		}
	}
	return false
}

// ExtractGranteeName returns the first "-" or "," separated fragment made of
// at least three uppercase ASCII letters or spaces, else the trimmed input.
//
//	"NGUYEN VAN A - 123456"  -> "NGUYEN VAN A"
//	"0123, TRAN THI B, GD"   -> "TRAN THI B"
func ExtractGranteeName(raw string) string {
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '-' || r == ',' }) {
		name := strings.TrimSpace(part)
		if granteeFragment.MatchString(name) {
			return name
		}
	}
	return strings.TrimSpace(raw)
}

// foldDiacritics strips Vietnamese tone and vowel marks, đ -> d.
func foldDiacritics(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			switch r {
			case 'đ':
				return 'd'
			case 'Đ':
				return 'D'
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
