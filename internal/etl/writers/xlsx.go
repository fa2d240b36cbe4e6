package writers

import (
	"context"
	"io"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/intelliw/LSAssetDataService/internal/etl"
)

const (
	headerFontColor = "FFFFFF"
	headerFillColor = "00008B"
	borderColor     = "000000"

	minColWidth = 8
	maxColWidth = 80

	// Excel keeps 15 significant digits; longer digit strings stay text.
	maxNumericDigits = 15
)

// Plain decimals without leading zeros, so identifiers such as "00123"
// and hex tag ids are not turned into numbers.
var numericPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?$`)

// XLSXWriter writes a recordset as a workbook: the primary sheet plus an
// optional second sheet from rs.Supplementary.
type XLSXWriter struct{}

var _ etl.FileWriter = XLSXWriter{}

func (XLSXWriter) Write(ctx context.Context, rs *etl.Recordset, path string, overwrite bool) (bool, error) {
	f, err := buildWorkbook(ctx, rs)
	if err != nil {
		return false, errors.Wrapf(err, "build workbook %s", path)
	}
	defer f.Close()

	saved, err := writeAtomic(ctx, path, overwrite, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
	if err != nil {
		return false, errors.Wrapf(err, "write %s", path)
	}
	return saved, nil
}

type sheetStyles struct {
	header int
	data   int
}

func buildWorkbook(ctx context.Context, rs *etl.Recordset) (*excelize.File, error) {
	f := excelize.NewFile()

	styles, err := newSheetStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	primary := sheetName(rs.Name, "Sheet1")
	if err := f.SetSheetName("Sheet1", primary); err != nil {
		f.Close()
		return nil, err
	}
	if err := fillSheet(ctx, f, primary, rs, styles); err != nil {
		f.Close()
		return nil, err
	}

	if sup := rs.Supplementary; sup != nil {
		second := sheetName(sup.Name, "Sheet2")
		if second == primary {
			second += " (2)"
		}
		if _, err := f.NewSheet(second); err != nil {
			f.Close()
			return nil, err
		}
		if err := fillSheet(ctx, f, second, sup, styles); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: headerFontColor},
		Fill: excelize.Fill{Type: "pattern", Color: []string{headerFillColor}, Pattern: 1},
	})
	if err != nil {
		return sheetStyles{}, err
	}
	data, err := f.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: borderColor, Style: 1},
			{Type: "top", Color: borderColor, Style: 1},
			{Type: "right", Color: borderColor, Style: 1},
			{Type: "bottom", Color: borderColor, Style: 1},
		},
	})
	if err != nil {
		return sheetStyles{}, err
	}
	return sheetStyles{header: header, data: data}, nil
}

func fillSheet(ctx context.Context, f *excelize.File, sheet string, rs *etl.Recordset, styles sheetStyles) error {
	if len(rs.Columns) == 0 {
		return nil
	}
	widths := make([]int, len(rs.Columns))

	for c, h := range rs.Columns {
		h = etl.StripLineBreaks(h)
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellStr(sheet, cell, h); err != nil {
			return err
		}
		widths[c] = utf8.RuneCountInString(h)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(rs.Columns), 1)
	if err := f.SetCellStyle(sheet, "A1", lastHeader, styles.header); err != nil {
		return err
	}

	for r, row := range rs.Rows {
		if r%500 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for c, v := range row.Fields {
			v = etl.StripLineBreaks(v)
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if n, ok := numericValue(v); ok {
				if err := f.SetCellFloat(sheet, cell, n, -1, 64); err != nil {
					return err
				}
			} else if err := f.SetCellStr(sheet, cell, v); err != nil {
				return err
			}
			if l := utf8.RuneCountInString(v); c < len(widths) && l > widths[c] {
				widths[c] = l
			}
		}
	}
	if len(rs.Rows) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(rs.Columns), len(rs.Rows)+1)
		if err := f.SetCellStyle(sheet, "A2", last, styles.data); err != nil {
			return err
		}
	}

	for c, w := range widths {
		col, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(sheet, col, col, float64(clamp(w+2, minColWidth, maxColWidth))); err != nil {
			return err
		}
	}
	return nil
}

// numericValue reports whether s should be stored as a number.
func numericValue(s string) (float64, bool) {
	if !numericPattern.MatchString(s) {
		return 0, false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits > maxNumericDigits {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// sheetName trims to Excel's 31-character limit.
func sheetName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	if utf8.RuneCountInString(name) > 31 {
		return string([]rune(name)[:31])
	}
	return name
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
