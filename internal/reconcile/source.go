package reconcile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/roach88/renshi/internal/fault"
)

// Source is one tabular input: a header row and data rows.
type Source struct {
	// Name identifies the source in logs and skip reasons, usually the file name.
	Name   string
	Header []string
	Rows   [][]string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadFile reads a spreadsheet from path.
//
// .xlsx and .xlsm files are read from their first sheet. .csv, .tsv and
// .txt files have their delimiter sniffed from the first line; a UTF-8 BOM
// is dropped and content that is not valid UTF-8 is decoded as GBK.
func LoadFile(path string) (Source, error) {
	const op = "reconcile.load"
	name := filepath.Base(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err := readXLSX(path)
		if err != nil {
			return Source{}, fault.Wrap(fault.KindIO, op, fmt.Sprintf("无法读取文件：%s", name), err)
		}
		return newSource(name, rows), nil
	case ".csv", ".tsv", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return Source{}, fault.Wrap(fault.KindIO, op, fmt.Sprintf("无法读取文件：%s", name), err)
		}
		rows, err := ParseDelimited(data)
		if err != nil {
			return Source{}, fault.Wrap(fault.KindValidation, op, fmt.Sprintf("文件格式错误：%s", name), err)
		}
		return newSource(name, rows), nil
	}
	return Source{}, fault.Validation(op, fmt.Sprintf("不支持的文件类型：%s", name))
}

func newSource(name string, rows [][]string) Source {
	s := Source{Name: name}
	if len(rows) == 0 {
		return s
	}
	s.Header = rows[0]
	s.Rows = rows[1:]
	return s
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// ParseDelimited decodes delimited text into rows.
func ParseDelimited(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(simplifiedchinese.GBK.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("decode gbk: %w", err)
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited: %w", err)
	}
	return rows, nil
}

// sniffDelimiter picks the most frequent of comma, tab and semicolon on the
// first line. Ties and lines without any of them use a comma.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{'\t', ';'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
