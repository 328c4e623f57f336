package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapHeader(t *testing.T) {
	tests := []struct {
		header string
		column string
		known  bool
	}{
		{"姓名", "real_name", true},
		{"真实姓名", "real_name", true},
		{"联系电话", "phone", true},
		{"手机号码", "phone", true},
		{"所在省份", "province", true},
		{"城市", "city", true},
		{"区县", "county", true},
		{"分会职务", "position", true},
		{"加入组织时间", "join_date", true},
		{"  年龄 ", "age", true},
		{"Name", "real_name", true},
		{"PHONE", "phone", true},
		{"Mobile", "phone", true},
		{"Ｎａｍｅ", "real_name", true}, // full-width
		{"real_name", "real_name", true},
		{"备注", "备注", false},
		{"紧急 联系人/关系", "紧急_联系人_关系", false},
		{"", "", false},
		{"   ", "", false},
		{"id", "", false},
		{"ID", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			column, known := MapHeader(tt.header)
			assert.Equal(t, tt.column, column)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestMapHeader_EnglishNeedsWholeMatch(t *testing.T) {
	column, known := MapHeader("phone_backup")
	assert.False(t, known)
	assert.Equal(t, "phone_backup", column)
}

func TestFoldHeader_IdeographicSpace(t *testing.T) {
	assert.Equal(t, "姓名", FoldHeader("　姓名　"))
}
