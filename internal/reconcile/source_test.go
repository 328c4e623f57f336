package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/roach88/renshi/internal/fault"
	"github.com/roach88/renshi/internal/testutil"
)

func TestLoadFile_CSV(t *testing.T) {
	path := testutil.WriteCSV(t, t.TempDir(), "a.csv", [][]string{
		{"姓名", "手机号"},
		{"张三", "13800000000"},
	})

	src, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a.csv", src.Name)
	assert.Equal(t, []string{"姓名", "手机号"}, src.Header)
	assert.Equal(t, [][]string{{"张三", "13800000000"}}, src.Rows)
}

func TestLoadFile_XLSX(t *testing.T) {
	path := testutil.WriteXLSX(t, t.TempDir(), "a.xlsx", [][]string{
		{"真实姓名", "年龄"},
		{"李四", "40"},
	})

	src, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"真实姓名", "年龄"}, src.Header)
	assert.Equal(t, [][]string{{"李四", "40"}}, src.Rows)
}

func TestLoadFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := LoadFile(path)
	assert.True(t, fault.IsValidation(err))
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Equal(t, fault.KindIO, fault.KindOf(err))
}

func TestParseDelimited_BOM(t *testing.T) {
	rows, err := ParseDelimited(append([]byte{0xEF, 0xBB, 0xBF}, []byte("姓名,手机号\n张三,138\n")...))
	require.NoError(t, err)
	assert.Equal(t, "姓名", rows[0][0])
}

func TestParseDelimited_GBK(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("姓名,城市\n王五,南京\n"))
	require.NoError(t, err)

	rows, err := ParseDelimited(encoded)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"姓名", "城市"}, {"王五", "南京"}}, rows)
}

func TestParseDelimited_SniffsDelimiter(t *testing.T) {
	tests := []struct {
		name string
		data string
		want [][]string
	}{
		{"tab", "姓名\t手机号\n张三\t138\n", [][]string{{"姓名", "手机号"}, {"张三", "138"}}},
		{"semicolon", "姓名;手机号\n张三;138\n", [][]string{{"姓名", "手机号"}, {"张三", "138"}}},
		{"single column", "姓名\n张三\n", [][]string{{"姓名"}, {"张三"}}},
		{"ragged", "姓名,手机号\n张三\n", [][]string{{"姓名", "手机号"}, {"张三"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseDelimited([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}
