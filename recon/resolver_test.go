package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/authz-report/table"
)

// authRows builds a MUC 30 table from rows in AuthorizationColumns order:
// description, effective, expiry, grantor, grantee, account, branch.
func authRows(rows ...[]string) *table.Table {
	return table.FromRecords("MUC 30", AuthorizationColumns, rows)
}

func accounts(pairs ...[2]string) *table.Table {
	rows := make([][]string, len(pairs))
	for i, p := range pairs {
		rows[i] = []string{p[0], p[1]}
	}
	return table.FromRecords("CKH+KKH", []string{ColAccountID, ColCustomerSeq}, rows)
}

func texts(col []table.Value) []string {
	out := make([]string, len(col))
	for i, v := range col {
		out[i] = v.Or("<missing>")
	}
	return out
}

// =============================================================================
// FILTER AND NORMALIZE
// =============================================================================

func TestFilterSignatures(t *testing.T) {
	auth := authRows(
		[]string{"Uy quyen chu ky", "", "", "", "", "1", "001"},
		[]string{"GIA HAN CHUKY", "", "", "", "", "2", "001"},
		[]string{"cky dinh ky", "", "", "", "", "3", "001"},
		[]string{"Ủy quyền chữ ký", "", "", "", "", "4", "001"},
		[]string{"Rut tien", "", "", "", "", "5", "001"},
		[]string{"", "", "", "", "", "6", "001"},
	)

	out := FilterSignatures(auth)
	assert.Equal(t, []string{"1", "2", "3", "4"}, texts(out.Column(ColAuthorizedAccount)))
}

func TestNormalizeDates(t *testing.T) {
	auth := authRows(
		[]string{"chu ky", "20200101", "20990101", "", "", "1", "001"},
		[]string{"chu ky", "2021-03-04", "not a date", "", "", "2", "001"},
	)

	out := NormalizeDates(auth)
	assert.Equal(t, []string{"01/01/2020", "03/04/2021"}, texts(out.Column(ColEffectiveDate)))
	assert.Equal(t, []string{"01/01/2099", "<missing>"}, texts(out.Column(ColExpiryDate)))
}

func TestExcludeCorporate(t *testing.T) {
	auth := authRows(
		[]string{"chu ky", "", "", "CONG TY ABC", "", "1", "001"},
		[]string{"chu ky", "", "", "Cty TNHH XYZ", "", "2", "001"},
		[]string{"chu ky", "", "", "NGUYEN VAN A", "", "3", "001"},
		[]string{"chu ky", "", "", "", "", "4", "001"},
	)

	out := ExcludeCorporate(auth, IsCorporateName)
	assert.Equal(t, []string{"3", "4"}, texts(out.Column(ColAuthorizedAccount)))

	// The predicate is swappable.
	none := ExcludeCorporate(auth, func(string) bool { return false })
	assert.Equal(t, 4, none.Len())
}

// =============================================================================
// DEDUP
// =============================================================================

func TestDedup_SameGranteeAfterNormalization(t *testing.T) {
	auth := authRows(
		[]string{"chu ky", "20200101", "", "TRAN VAN C", "NGUYEN VAN A - 123456", "100", "001"},
		[]string{"chu ky", "20210101", "", "TRAN VAN C", "NGUYEN VAN A - 123456", "100", "001"},
	)

	out := Dedup(NormalizeGrantees(auth))
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "NGUYEN VAN A", out.Get(0, ColGrantee).String())
	assert.Equal(t, "20200101", out.Get(0, ColEffectiveDate).String())
}

func TestDedup_Idempotent(t *testing.T) {
	auth := authRows(
		[]string{"chu ky", "", "", "A", "NGUYEN VAN A", "100", "001"},
		[]string{"chu ky", "", "", "B", "NGUYEN VAN A", "100", "001"},
		[]string{"chu ky", "", "", "C", "NGUYEN VAN A", "100", "002"},
		[]string{"chu ky", "", "", "D", "", "100", "002"},
		[]string{"chu ky", "", "", "E", "", "100", "002"},
	)

	once := Dedup(auth)
	twice := Dedup(once)
	assert.Equal(t, 3, once.Len())
	assert.Equal(t, once.Records(), twice.Records())
}

// =============================================================================
// CIF JOIN
// =============================================================================

func TestJoinCIF_Multiplicity(t *testing.T) {
	auth := authRows(
		[]string{"chu ky", "", "", "A", "X", "100", "001"},
		[]string{"chu ky", "", "", "B", "Y", "200", "001"},
	)
	acc := accounts([2]string{"100", "11"}, [2]string{"100", "12"})

	out, warnings := JoinCIF(auth, acc)
	assert.Equal(t, []string{"100", "100", "200"}, texts(out.Column(ColAuthorizedAccount)))
	assert.Equal(t, []string{"11", "12", "NA"}, texts(out.Column(ColGrantorCIF)))

	require.Len(t, warnings, 1)
	miss, ok := warnings[0].(*JoinMissWarning)
	require.True(t, ok)
	assert.Equal(t, 1, miss.Rows)
	assert.Equal(t, []string{"200"}, miss.Sample)
}

func TestJoinCIF_DropsAccountColumns(t *testing.T) {
	auth := authRows([]string{"chu ky", "", "", "A", "X", "100", "001"}).
		WithMissing(ColModifiedDateNew).
		WithMissing(ColCustomerSeq)

	out, _ := JoinCIF(auth, accounts([2]string{"100", "7"}))
	assert.False(t, out.Has(ColModifiedDateNew))
	assert.False(t, out.Has(ColCustomerSeq))
	assert.False(t, out.Has(ColAccountID))
	assert.Equal(t, "7", out.Get(0, ColGrantorCIF).String())
}

func TestJoinCIF_MissingAccountNeverJoins(t *testing.T) {
	auth := authRows([]string{"chu ky", "", "", "A", "X", "", "001"})
	acc := table.FromRecords("CKH+KKH", []string{ColAccountID, ColCustomerSeq}, [][]string{{"", "5"}})

	out, _ := JoinCIF(auth, acc)
	assert.Equal(t, "NA", out.Get(0, ColGrantorCIF).String())
}

func TestCoerceCIF(t *testing.T) {
	tests := []struct {
		in     table.Value
		want   string
		status cifStatus
	}{
		{table.Text("123"), "123", cifResolved},
		{table.Text("123.0"), "123", cifResolved},
		{table.Text(" 123456789012345678 "), "123456789012345678", cifResolved},
		{table.Text("99.9"), "99", cifResolved},
		{table.Text("1.2e3"), "1200", cifResolved},
		{table.Missing, "NA", cifBlank},
		{table.Text("  "), "NA", cifBlank},
		{table.Text("ABC"), "NA", cifUnparsable},
	}
	for _, tt := range tests {
		got, status := coerceCIF(tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in.String())
		assert.Equal(t, tt.status, status, "input %q", tt.in.String())
	}
}

// =============================================================================
// IMPUTATION
// =============================================================================

func TestImputeCIF_FillsGroupsWithConcreteID(t *testing.T) {
	in := table.FromRecords("t", []string{ColGrantee, ColGrantor, ColGrantorCIF}, [][]string{
		{"G1", "A", "NA"},
		{"G1", "B", "10"},
		{"G2", "C", "NA"},
		{"G2", "D", "NA"},
		{"", "E", "NA"},
		{"G3", "F", "30"},
	})

	out, warnings := ImputeCIF(in, ColGrantee)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"10", "10", "NA", "NA", "NA", "30"}, texts(out.Column(ColGrantorCIF)))

	// Input untouched.
	assert.Equal(t, "NA", in.Get(0, ColGrantorCIF).String())
}

func TestImputeCIF_EveryResolvableGroupResolved(t *testing.T) {
	in := table.FromRecords("t", []string{ColGrantee, ColGrantorCIF}, [][]string{
		{"P", "NA"}, {"Q", "NA"}, {"P", "NA"}, {"P", "5"}, {"Q", "NA"}, {"R", "7"}, {"R", "NA"},
	})

	out, _ := ImputeCIF(in, ColGrantee)

	concrete := map[string]bool{}
	for i := 0; i < in.Len(); i++ {
		if in.Get(i, ColGrantorCIF).String() != UnresolvedCIF {
			concrete[in.Get(i, ColGrantee).String()] = true
		}
	}
	for i := 0; i < out.Len(); i++ {
		g := out.Get(i, ColGrantee).String()
		if concrete[g] {
			assert.NotEqual(t, UnresolvedCIF, out.Get(i, ColGrantorCIF).String(), "row %d group %s", i, g)
		}
	}
}

func TestImputeCIF_ConflictKeptAndWarned(t *testing.T) {
	in := table.FromRecords("t", []string{ColGrantee, ColGrantorCIF}, [][]string{
		{"G", "NA"}, {"G", "1"}, {"G", "2"},
	})

	out, warnings := ImputeCIF(in, ColGrantee)
	assert.Equal(t, []string{"1", "1", "2"}, texts(out.Column(ColGrantorCIF)))

	require.Len(t, warnings, 1)
	conflict, ok := warnings[0].(*ImputationConflictWarning)
	require.True(t, ok)
	assert.Equal(t, "G", conflict.Group)
	assert.Equal(t, []string{"1", "2"}, conflict.CIFs)
}

func TestImputeCIF_ByGrantor(t *testing.T) {
	rows := table.FromRecords("t", []string{ColGrantee, ColGrantor, ColGrantorCIF}, [][]string{
		{"X", "TRAN VAN C", "NA"},
		{"Y", "TRAN VAN C", "42"},
	})
	out, _ := ImputeCIF(rows, ColGrantor)
	assert.Equal(t, []string{"42", "42"}, texts(out.Column(ColGrantorCIF)))
}

// =============================================================================
// RESOLVE
// =============================================================================

func TestResolver_Resolve(t *testing.T) {
	auth := authRows(
		[]string{"uy quyen chu ky", "20200101", "20990101", "TRAN VAN C", "NGUYEN VAN B - 0901", "100", "001"},
		[]string{"uy quyen chu ky", "20200101", "20990101", "TRAN VAN C", "NGUYEN VAN B - 0901", "100", "001"},
		[]string{"uy quyen chu ky", "20210101", "20230101", "LE VAN D", "NGUYEN VAN B", "300", "001"},
		[]string{"uy quyen chu ky", "20210101", "20230101", "CONG TY ABC", "PHAM VAN E", "400", "001"},
		[]string{"rut tien", "20210101", "20230101", "HO VAN F", "PHAM VAN E", "500", "001"},
	)
	r := NewResolver(accounts([2]string{"100", "123.0"}))

	out, warnings := r.Resolve(auth)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, []string{"100", "300"}, texts(out.Column(ColAuthorizedAccount)))
	assert.Equal(t, []string{"NGUYEN VAN B", "NGUYEN VAN B"}, texts(out.Column(ColGrantee)))
	// Row 300 has no account row but shares the grantee group with 100.
	assert.Equal(t, []string{"123", "123"}, texts(out.Column(ColGrantorCIF)))
	assert.Equal(t, "01/01/2099", out.Get(0, ColExpiryDate).String())

	require.Len(t, warnings, 1)
	assert.Equal(t, "join_miss", warnings[0].Code())
}

func TestResolver_DegradedColumns(t *testing.T) {
	auth := table.FromRecords("MUC 30",
		[]string{ColDescription, ColGrantee, ColAuthorizedAccount},
		[][]string{{"chu ky", "NGUYEN VAN A", "100"}})

	out, warnings := NewResolver(accounts([2]string{"100", "9"})).Resolve(auth)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "9", out.Get(0, ColGrantorCIF).String())
	for _, col := range AuthorizationColumns {
		assert.True(t, out.Has(col), col)
	}

	var missing []string
	for _, w := range warnings {
		if mc, ok := w.(*MissingColumnWarning); ok {
			missing = append(missing, mc.Column)
		}
	}
	assert.ElementsMatch(t, []string{ColEffectiveDate, ColExpiryDate, ColGrantor, ColBranch}, missing)
}
