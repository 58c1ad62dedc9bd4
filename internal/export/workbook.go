// Package export renders scoped entity lists as styled Excel workbooks.
package export

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	headerColor    = "4472C4"
	highlightColor = "FFE6E6"
	maxColWidth    = 50
)

// Sheet is the content of a single-sheet workbook.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
	// Highlight reports whether data row i gets the highlight fill.
	Highlight func(i int) bool
}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
}

type styles struct {
	header, body, highlight int
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	var err error
	st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 12},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Border:    thinBorder,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return st, fmt.Errorf("header style: %w", err)
	}
	st.body, err = f.NewStyle(&excelize.Style{Border: thinBorder})
	if err != nil {
		return st, fmt.Errorf("body style: %w", err)
	}
	st.highlight, err = f.NewStyle(&excelize.Style{
		Border: thinBorder,
		Fill:   excelize.Fill{Type: "pattern", Color: []string{highlightColor}, Pattern: 1},
	})
	if err != nil {
		return st, fmt.Errorf("highlight style: %w", err)
	}
	return st, nil
}

// Build writes s into a new workbook. The caller closes the file.
func Build(s Sheet) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", s.Name); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := fill(f, s); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func fill(f *excelize.File, s Sheet) error {
	st, err := newStyles(f)
	if err != nil {
		return err
	}

	lastCol, err := excelize.ColumnNumberToName(len(s.Headers))
	if err != nil {
		return fmt.Errorf("failed to convert column number: %w", err)
	}

	widths := make([]int, len(s.Headers))
	measure := func(row []interface{}) {
		for i, v := range row {
			if i >= len(widths) {
				break
			}
			if n := utf8.RuneCountInString(fmt.Sprint(v)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	header := make([]interface{}, len(s.Headers))
	for i, h := range s.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(s.Name, "A1", lastCol+"1", st.header); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	measure(header)

	for i, row := range s.Rows {
		r := i + 2
		start := fmt.Sprintf("A%d", r)
		if err := f.SetSheetRow(s.Name, start, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
		style := st.body
		if s.Highlight != nil && s.Highlight(i) {
			style = st.highlight
		}
		if err := f.SetCellStyle(s.Name, start, fmt.Sprintf("%s%d", lastCol, r), style); err != nil {
			return fmt.Errorf("failed to style row %d: %w", r, err)
		}
		measure(row)
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		width := w + 2
		if width > maxColWidth {
			width = maxColWidth
		}
		if err := f.SetColWidth(s.Name, col, col, float64(width)); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	return nil
}

// Render builds s and returns the encoded xlsx bytes.
func Render(s Sheet) ([]byte, error) {
	f, err := Build(s)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
