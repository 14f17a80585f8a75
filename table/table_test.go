package table_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/authz-report/table"
)

func sample() *table.Table {
	return table.FromRecords("sample",
		[]string{"A", "B", ""},
		[][]string{
			{"1", "x", "extra"},
			{"2", ""},
			{"3", "z", "", "ignored"},
		})
}

func TestFromRecords_MissingAndPadding(t *testing.T) {
	tb := sample()

	assert.Equal(t, 3, tb.Len())
	assert.Equal(t, []string{"A", "B", "Unnamed: 2"}, tb.Columns())
	assert.True(t, tb.Get(1, "B").IsMissing(), "empty cell decodes to missing")
	assert.True(t, tb.Get(1, "Unnamed: 2").IsMissing(), "short row is padded")
	assert.Equal(t, "z", tb.Get(2, "B").String())
	assert.True(t, tb.Get(0, "NOPE").IsMissing())
}

func TestFromRecords_DuplicateHeaders(t *testing.T) {
	tb := table.FromRecords("dup", []string{"X", "X", "X"}, nil)
	assert.Equal(t, []string{"X", "X.1", "X.2"}, tb.Columns())
}

func TestValue_TextVersusMissing(t *testing.T) {
	empty := table.Text("")
	assert.False(t, empty.IsMissing())
	assert.True(t, table.Missing.IsMissing())
	assert.False(t, empty.Equal(table.Missing))
	assert.Equal(t, "fallback", table.Missing.Or("fallback"))
	assert.Equal(t, "", empty.Or("fallback"))
}

func TestWith_DoesNotMutateSource(t *testing.T) {
	tb := sample()
	tb2 := tb.With("C", table.Texts("a", "b", "c"))

	assert.False(t, tb.Has("C"))
	assert.True(t, tb2.Has("C"))
	assert.Equal(t, "C", tb2.Columns()[len(tb2.Columns())-1])

	tb3 := tb2.With("A", table.Texts("9", "9", "9"))
	assert.Equal(t, tb2.Columns(), tb3.Columns(), "replacing keeps position")
	assert.Equal(t, "1", tb2.Get(0, "A").String())
	assert.Equal(t, "9", tb3.Get(0, "A").String())
}

func TestWith_PanicsOnMisalignedColumn(t *testing.T) {
	assert.Panics(t, func() { sample().With("C", table.Texts("only one")) })
}

func TestFilterPickWithout(t *testing.T) {
	tb := sample()

	odd := tb.Filter(func(i int) bool { return i != 1 })
	require.Equal(t, 2, odd.Len())
	assert.Equal(t, "3", odd.Get(1, "A").String())

	picked := tb.Pick([]int{2, 2, 0})
	assert.Equal(t, 3, picked.Len())
	assert.Equal(t, "3", picked.Get(1, "A").String())

	slim := tb.Without("B", "unknown")
	assert.Equal(t, []string{"A", "Unnamed: 2"}, slim.Columns())
	assert.True(t, tb.Has("B"))
}

func TestConcat_UnionOfColumns(t *testing.T) {
	a := table.FromRecords("a", []string{"IDXACNO", "CUSTSEQ"}, [][]string{{"1", "10"}})
	b := table.FromRecords("b", []string{"IDXACNO", "OTHER"}, [][]string{{"2", "o"}, {"3", "p"}})

	c := table.Concat("all", a, nil, b)

	assert.Equal(t, "all", c.Name())
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"IDXACNO", "CUSTSEQ", "OTHER"}, c.Columns())
	assert.True(t, c.Get(0, "OTHER").IsMissing())
	assert.True(t, c.Get(2, "CUSTSEQ").IsMissing())
	assert.Equal(t, "p", c.Get(2, "OTHER").String())
}

func TestTrimHeaders(t *testing.T) {
	tb := table.FromRecords("scm", []string{" CIF_ID ", "NAME"}, [][]string{{"42", "n"}})
	trimmed := tb.TrimHeaders()

	assert.True(t, trimmed.Has("CIF_ID"))
	assert.False(t, tb.Has("CIF_ID"))
	assert.Equal(t, "42", trimmed.Get(0, "CIF_ID").String())
}

func TestRecords_RenderMissingAsEmpty(t *testing.T) {
	recs := sample().Records()
	require.Len(t, recs, 4)
	assert.Equal(t, []string{"A", "B", "Unnamed: 2"}, recs[0])
	assert.Equal(t, []string{"2", "", ""}, recs[2])
}
