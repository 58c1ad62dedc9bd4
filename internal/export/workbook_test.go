package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFilename(t *testing.T) {
	at := time.Date(2025, 3, 7, 9, 5, 1, 0, time.UTC)
	assert.Equal(t, "zonas_20250307_090501.xlsx", Filename("zonas", at))
}

func TestRender_StylesAndWidths(t *testing.T) {
	long := strings.Repeat("x", 80)
	data, err := Render(Sheet{
		Name:      "Prueba",
		Headers:   []string{"ID", "Nombre"},
		Rows:      [][]interface{}{{1, "corto"}, {2, long}},
		Highlight: func(i int) bool { return i == 1 },
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Prueba"}, f.GetSheetList())

	rows, err := f.GetRows("Prueba")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Nombre"}, rows[0])
	assert.Equal(t, long, rows[2][1])

	width, err := f.GetColWidth("Prueba", "B")
	require.NoError(t, err)
	assert.Equal(t, float64(maxColWidth), width)
	width, err = f.GetColWidth("Prueba", "A")
	require.NoError(t, err)
	assert.Equal(t, float64(4), width)

	headerStyle := cellStyle(t, f, "Prueba", "A1")
	assert.True(t, headerStyle.Font.Bold)
	assert.Contains(t, strings.ToUpper(headerStyle.Fill.Color[0]), headerColor)
	assert.Len(t, headerStyle.Border, 4)

	plain := cellStyle(t, f, "Prueba", "B2")
	assert.Len(t, plain.Border, 4)

	marked := cellStyle(t, f, "Prueba", "B3")
	require.NotEmpty(t, marked.Fill.Color)
	assert.Contains(t, strings.ToUpper(marked.Fill.Color[0]), highlightColor)
}

func cellStyle(t *testing.T, f *excelize.File, sheet, cell string) *excelize.Style {
	t.Helper()
	idx, err := f.GetCellStyle(sheet, cell)
	require.NoError(t, err)
	st, err := f.GetStyle(idx)
	require.NoError(t, err)
	return st
}
