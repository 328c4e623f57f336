package person

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/renshi/internal/fault"
)

func TestParseAge(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"34", 34},
		{" 34 ", 34},
		{"34.0", 34},
		{"34.7", 34},
		{"abc", 0},
		{"", 0},
		{"NaN", 0},
		{"1e20", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAge(tt.in))
		})
	}
}

func TestStripSuffixes(t *testing.T) {
	assert.Equal(t, "浙江", StripProvince("浙江省"))
	assert.Equal(t, "浙江", StripProvince(" 浙江 "))
	assert.Equal(t, "杭州", StripCity("杭州市"))
	assert.Equal(t, "市中", StripCity("市中"))
}

func TestPerson_SetGet(t *testing.T) {
	var p Person
	p.Set("real_name", "李四")
	p.Set("age", "40.0")
	p.Set("备注", "优秀")

	assert.Equal(t, "李四", p.RealName)
	assert.Equal(t, 40, p.Age)
	assert.Equal(t, "40", p.Get("age"))
	assert.Equal(t, "优秀", p.Get("备注"))
	assert.Equal(t, "", p.Get("missing"))
}

func TestPerson_Validate(t *testing.T) {
	p := Person{RealName: "张三"}
	err := p.Validate("person.create")
	assert.True(t, fault.IsValidation(err))
	assert.Equal(t, "真实姓名和手机号为必填项！", fault.MessageOf(err))

	p.Phone = "13800000000"
	assert.NoError(t, p.Validate("person.create"))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "真实姓名", Label("real_name"))
	assert.Equal(t, "分会职务", Label("position"))
	assert.Equal(t, "备注", Label("备注"))
	assert.Len(t, ExportColumns, 17)
}
