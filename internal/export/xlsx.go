package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	fontName      = "SimSun"
	fontSize      = 10
	headerHeight  = 20
	rowHeight     = 30
	minWidth      = 10
	wideWidth     = 30
	provinceLabel = "省份"

	// maxSheetName is the spreadsheet limit on sheet name length, in runes.
	maxSheetName = 31
	otherSheet   = "其他"
)

// wideColumns get at least wideWidth.
var wideColumns = map[string]bool{"家庭住址": true, "个人简历": true}

// WriteXLSX writes the projection as a workbook. Projections marked
// ByProvince get one sheet per province, named "<province>省". It returns
// ErrNoData when nothing matched.
func (p *Projection) WriteXLSX(w io.Writer) error {
	if p.NoData() {
		return ErrNoData
	}
	if p.ByProvince {
		return WriteXLSXByProvince(w, p.Table)
	}
	return WriteXLSX(w, p.Table, "Sheet1")
}

// WriteXLSX writes t to a single-sheet workbook.
func WriteXLSX(w io.Writer, t *Table, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSheet(f, sheet, t.Columns, t.Rows); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteXLSXByProvince writes t with one sheet per distinct 省份 value,
// sorted. Rows without a province go to a sheet named "其他". Sheet names
// are made valid and unique, see sheetName.
func WriteXLSXByProvince(w io.Writer, t *Table) error {
	col := -1
	for i, c := range t.Columns {
		if c == provinceLabel {
			col = i
			break
		}
	}
	if col < 0 {
		return WriteXLSX(w, t, "Sheet1")
	}

	groups := make(map[string][][]string)
	for _, row := range t.Rows {
		groups[row[col]] = append(groups[row[col]], row)
	}
	provinces := make([]string, 0, len(groups))
	for prov := range groups {
		provinces = append(provinces, prov)
	}
	sort.Strings(provinces)

	f := excelize.NewFile()
	defer f.Close()
	first := f.GetSheetName(0)
	used := make(map[string]bool, len(provinces))

	for i, prov := range provinces {
		sheet := sheetName(prov, used)
		if i == 0 {
			if err := f.SetSheetName(first, sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("add sheet %s: %w", sheet, err)
		}
		if err := writeSheet(f, sheet, t.Columns, groups[prov]); err != nil {
			return err
		}
	}
	if len(provinces) == 0 {
		if err := writeSheet(f, first, t.Columns, nil); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetName returns the sheet name for prov and records it in used. Characters
// a sheet name cannot hold become "_", long names are cut to maxSheetName
// runes and names already in used, compared case-insensitively, get a "-N"
// suffix.
func sheetName(prov string, used map[string]bool) string {
	base := otherSheet
	if prov != "" {
		base = prov + "省"
	}
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, base)
	base = strings.TrimLeft(base, "'")

	name := fitSheetName(base, "")
	for n := 2; used[strings.ToLower(name)]; n++ {
		name = fitSheetName(base, fmt.Sprintf("-%d", n))
	}
	used[strings.ToLower(name)] = true
	return name
}

// fitSheetName cuts base so that base+suffix fits maxSheetName runes.
func fitSheetName(base, suffix string) string {
	limit := maxSheetName - utf8.RuneCountInString(suffix)
	if utf8.RuneCountInString(base) > limit {
		base = string([]rune(base)[:limit])
	}
	return strings.TrimRight(base, "'") + suffix
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]string) error {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: fontName, Bold: true, Size: fontSize},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	bodyStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: fontName, Size: fontSize},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("body style: %w", err)
	}

	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	if len(header) == 0 {
		return nil
	}

	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetRowHeight(sheet, 1, headerHeight); err != nil {
		return fmt.Errorf("header height: %w", err)
	}
	if len(rows) > 0 {
		end, err := excelize.CoordinatesToCellName(len(header), len(rows)+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A2", end, bodyStyle); err != nil {
			return fmt.Errorf("style rows: %w", err)
		}
		for r := 2; r <= len(rows)+1; r++ {
			if err := f.SetRowHeight(sheet, r, rowHeight); err != nil {
				return fmt.Errorf("row height: %w", err)
			}
		}
	}

	for i, h := range header {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, columnWidth(h)); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func columnWidth(header string) float64 {
	width := float64(len([]rune(header))) * 1.2
	if width < minWidth {
		width = minWidth
	}
	if wideColumns[header] && width < wideWidth {
		width = wideWidth
	}
	return width
}
