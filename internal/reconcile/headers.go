package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

type synonym struct {
	key    string
	column string
}

// chineseSynonyms match when the header contains the key. Order matters:
// the first key found wins.
var chineseSynonyms = []synonym{
	{"姓名", "real_name"},
	{"真实姓名", "real_name"},
	{"性别", "gender"},
	{"年龄", "age"},
	{"身份证", "id_number"},
	{"身份证号", "id_number"},
	{"电话", "phone"},
	{"手机号", "phone"},
	{"省", "province"},
	{"省份", "province"},
	{"市", "city"},
	{"城市", "city"},
	{"县", "county"},
	{"县区", "county"},
	{"昵称", "nickname"},
	{"学历", "education"},
	{"政治面貌", "political_status"},
	{"职业", "occupation"},
	{"个人职业", "occupation"},
	{"职务", "position"},
	{"分会职务", "position"},
	{"状态", "status"},
	{"在职状态", "status"},
	{"加入时间", "join_date"},
	{"加入组织时间", "join_date"},
	{"跟捐天数", "donation_days"},
	{"地址", "address"},
	{"家庭住址", "address"},
	{"简历", "bio"},
	{"个人简历", "bio"},
}

// englishSynonyms match the whole header, case-insensitively.
var englishSynonyms = map[string]string{
	"real_name":        "real_name",
	"name":             "real_name",
	"full name":        "real_name",
	"gender":           "gender",
	"sex":              "gender",
	"age":              "age",
	"id_number":        "id_number",
	"id number":        "id_number",
	"id card":          "id_number",
	"phone":            "phone",
	"mobile":           "phone",
	"tel":              "phone",
	"telephone":        "phone",
	"province":         "province",
	"city":             "city",
	"county":           "county",
	"district":         "county",
	"nickname":         "nickname",
	"education":        "education",
	"political_status": "political_status",
	"political status": "political_status",
	"occupation":       "occupation",
	"job":              "occupation",
	"position":         "position",
	"title":            "position",
	"status":           "status",
	"join_date":        "join_date",
	"join date":        "join_date",
	"donation_days":    "donation_days",
	"donation days":    "donation_days",
	"address":          "address",
	"bio":              "bio",
	"resume":           "bio",
	"photo_path":       "photo_path",
}

// FoldHeader applies NFKC normalization and trims surrounding space, so
// full-width letters and ideographic spaces compare equal to their plain
// forms.
func FoldHeader(h string) string {
	return strings.TrimSpace(norm.NFKC.String(h))
}

// MapHeader resolves an import header to a personnel column.
//
// known reports whether the column is a fixed field. An unknown header
// yields its sanitized form, to be added as an extension column. Blank
// headers and "id" yield an empty column and must be ignored.
func MapHeader(header string) (column string, known bool) {
	h := FoldHeader(header)
	if h == "" || strings.EqualFold(h, "id") {
		return "", false
	}
	if c, ok := englishSynonyms[strings.ToLower(h)]; ok {
		return c, true
	}
	for _, s := range chineseSynonyms {
		if strings.Contains(h, s.key) {
			return s.column, true
		}
	}
	return SanitizeHeader(h), false
}

// SanitizeHeader turns a header into a column name: each whitespace rune and
// slash becomes an underscore.
func SanitizeHeader(h string) string {
	var b strings.Builder
	for _, r := range FoldHeader(h) {
		if unicode.IsSpace(r) || r == '/' {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
