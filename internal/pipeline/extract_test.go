package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDedupesAndSortsKeys(t *testing.T) {
	doc := quoteSheet("KF2026-031", quoteHeader,
		[]any{3, "Valve C", "30", 1},
		[]any{1, "Valve A", "10", 1},
		[]any{2, "Valve B", "20", 1},
		[]any{1, "Valve A duplicate", "99", 1},
		[]any{"x", "Broken row", "1", 1},
	)

	ex, err := NewExtractor(DefaultOptions(), quietLogger()).Extract(doc)
	require.NoError(t, err)

	assert.Equal(t, "KF2026-031", ex.HeaderCode)
	require.Len(t, ex.Rows, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{ex.Rows[0].Number, ex.Rows[1].Number, ex.Rows[2].Number})

	desc, ok := ex.Rows[0].Cell("Product description")
	require.True(t, ok)
	assert.Equal(t, "Valve A", desc, "first occurrence in sheet order wins")
	assert.Equal(t, 13, ex.Rows[0].SheetRow)

	require.Len(t, ex.Skipped, 1)
	assert.Equal(t, "x", ex.Skipped[0].Raw)
	assert.Equal(t, 16, ex.Skipped[0].SheetRow)
}

func TestExtractHeaderCode(t *testing.T) {
	cases := []struct {
		name string
		row  []any
		want string
	}{
		{name: "missing", row: []any{"Batch", "AB-1"}, want: "DDE_DEFAULT"},
		{name: "first match wins", row: []any{"Batch", "XKF", "KF-A ", "KF-B"}, want: "KF-A"},
		{name: "leading space does not match", row: []any{" KF-1"}, want: "DDE_DEFAULT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows := [][]any{{"PROFORMA"}, tc.row}
			for i := 2; i < 10; i++ {
				rows = append(rows, []any{"info"})
			}
			rows = append(rows, quoteHeader, []any{1, "Valve", "1", 1})

			ex, err := NewExtractor(DefaultOptions(), quietLogger()).Extract(mkXLSX(rows))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ex.HeaderCode)
		})
	}
}

func TestExtractHeaderCodeOnlyInSecondRow(t *testing.T) {
	rows := [][]any{{"KF-ROW-ONE"}, {"Batch"}}
	for i := 2; i < 10; i++ {
		rows = append(rows, []any{"info"})
	}
	rows = append(rows, quoteHeader, []any{1, "Valve", "1", 1})

	ex, err := NewExtractor(DefaultOptions(), quietLogger()).Extract(mkXLSX(rows))
	require.NoError(t, err)
	assert.Equal(t, "DDE_DEFAULT", ex.HeaderCode)
}

func TestExtractMissingKeyColumn(t *testing.T) {
	doc := quoteSheet("KF1", []any{"No", "Product description"}, []any{1, "Valve"})

	_, err := NewExtractor(DefaultOptions(), quietLogger()).Extract(doc)
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
	assert.Equal(t, "NO.", schemaErr.Column)
	assert.Equal(t, 11, schemaErr.HeaderRow)
}

func TestExtractTooShort(t *testing.T) {
	doc := mkXLSX([][]any{{"only"}, {"KF1"}})

	_, err := NewExtractor(DefaultOptions(), quietLogger()).Extract(doc)
	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestExtractRejectsNonWorkbook(t *testing.T) {
	_, err := NewExtractor(DefaultOptions(), quietLogger()).Extract([]byte("definitely not a zip"))
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr), "got %v", err)
	assert.Equal(t, "workbook", parseErr.Stage)
}

func TestExtractEmptyTable(t *testing.T) {
	doc := quoteSheet("KF1", quoteHeader)

	ex, err := NewExtractor(DefaultOptions(), quietLogger()).Extract(doc)
	require.NoError(t, err)
	assert.Empty(t, ex.Rows)
	assert.Equal(t, "KF1", ex.HeaderCode)
}
