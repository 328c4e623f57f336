// Package person provides the personnel record model and the repository of
// record-level operations: create, edit, delete, talent-pool membership and
// the read queries the presentation layer needs.
//
// Every write runs in one transaction together with its operation log
// entry, through the retry executor, and returns an Outcome carrying the
// user-facing message.
package person

import (
	"math"
	"strconv"
	"strings"

	"github.com/roach88/renshi/internal/fault"
)

// DefaultStatus is the employment status given to imported records that
// carry none.
const DefaultStatus = "在职"

// Person is one personnel record.
//
// Fixed columns are struct fields; extension columns added by imports live
// in Extra, keyed by column name.
type Person struct {
	ID              int64
	RealName        string
	Gender          string
	Age             int
	IDNumber        string
	Phone           string
	Province        string
	City            string
	County          string
	Nickname        string
	Education       string
	PoliticalStatus string
	Occupation      string
	Position        string
	Status          string
	JoinDate        string
	DonationDays    string
	Address         string
	Bio             string
	PhotoPath       string
	Extra           map[string]string
}

// labels maps fixed columns to their display labels.
var labels = map[string]string{
	"real_name":        "真实姓名",
	"gender":           "性别",
	"age":              "年龄",
	"id_number":        "身份证号",
	"phone":            "手机号",
	"province":         "省份",
	"city":             "城市",
	"county":           "区县",
	"nickname":         "昵称",
	"education":        "学历",
	"political_status": "政治面貌",
	"occupation":       "个人职业",
	"position":         "分会职务",
	"status":           "在职状态",
	"join_date":        "加入组织时间",
	"donation_days":    "跟捐天数",
	"address":          "家庭住址",
	"bio":              "个人简历",
	"photo_path":       "照片路径",
}

// ExportColumns are the fixed columns included in roster exports, in order.
var ExportColumns = []string{
	"real_name", "gender", "age", "id_number", "phone",
	"province", "city", "nickname", "education", "political_status",
	"occupation", "position", "status", "join_date", "donation_days",
	"address", "bio",
}

// Label returns the display label of a fixed column, or the column name
// itself for anything else.
func Label(column string) string {
	if l, ok := labels[column]; ok {
		return l
	}
	return column
}

func (p *Person) text(column string) *string {
	switch column {
	case "real_name":
		return &p.RealName
	case "gender":
		return &p.Gender
	case "id_number":
		return &p.IDNumber
	case "phone":
		return &p.Phone
	case "province":
		return &p.Province
	case "city":
		return &p.City
	case "county":
		return &p.County
	case "nickname":
		return &p.Nickname
	case "education":
		return &p.Education
	case "political_status":
		return &p.PoliticalStatus
	case "occupation":
		return &p.Occupation
	case "position":
		return &p.Position
	case "status":
		return &p.Status
	case "join_date":
		return &p.JoinDate
	case "donation_days":
		return &p.DonationDays
	case "address":
		return &p.Address
	case "bio":
		return &p.Bio
	case "photo_path":
		return &p.PhotoPath
	}
	return nil
}

// Set assigns value to column. Age is coerced with ParseAge; columns that
// are not fixed go to Extra.
func (p *Person) Set(column, value string) {
	if column == "age" {
		p.Age = ParseAge(value)
		return
	}
	if f := p.text(column); f != nil {
		*f = value
		return
	}
	if p.Extra == nil {
		p.Extra = make(map[string]string)
	}
	p.Extra[column] = value
}

// Get returns the text value of column.
func (p *Person) Get(column string) string {
	if column == "age" {
		return strconv.Itoa(p.Age)
	}
	if f := p.text(column); f != nil {
		return *f
	}
	return p.Extra[column]
}

// fixedValues returns the values of columns, in order.
func (p *Person) fixedValues(columns []string) []any {
	values := make([]any, 0, len(columns))
	for _, c := range columns {
		if c == "age" {
			values = append(values, p.Age)
			continue
		}
		values = append(values, p.Get(c))
	}
	return values
}

// Validate checks the fields every saved record must have.
func (p *Person) Validate(op string) error {
	if strings.TrimSpace(p.RealName) == "" || strings.TrimSpace(p.Phone) == "" {
		return fault.Validation(op, "真实姓名和手机号为必填项！")
	}
	return nil
}

// ParseAge converts a cell to an age. Integers and numbers such as "34.0"
// are accepted, fractions truncated; anything else yields 0.
func ParseAge(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0
	}
	return int(math.Trunc(f))
}

// StripProvince removes the trailing 省 of a province name.
func StripProvince(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), "省")
}

// StripCity removes the trailing 市 of a city name.
func StripCity(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), "市")
}

// Outcome is the result of a write operation.
type Outcome struct {
	// ID is the affected person.
	ID int64

	// Message is the user-facing confirmation.
	Message string
}

// PoolEntry is one talent-pool member as listed to users.
type PoolEntry struct {
	PersonID int64
	RealName string
	Phone    string
	Province string
	City     string
	Position string
	Reason   string
	AddTime  string
}

// Division is a province and the cities recorded under it.
type Division struct {
	Province string
	Cities   []string
}

// Filter narrows List. Empty fields and AllDivisions match everything.
type Filter struct {
	Province string
	City     string
	Search   string
}

// AllDivisions selects every province or city.
const AllDivisions = "全部"
