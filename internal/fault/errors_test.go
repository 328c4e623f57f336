package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestError_Format(t *testing.T) {
	err := Wrap(KindIO, "store.open", "无法打开数据库", errors.New("permission denied"))
	assert.Equal(t, "IO: store.open: 无法打开数据库: permission denied", err.Error())

	err = New(KindNotFound, "", "人员不存在")
	assert.Equal(t, "NOT_FOUND: 人员不存在", err.Error())
}

func TestKindOf_WrappedErrors(t *testing.T) {
	base := NotFound("person.delete", "人员不存在")
	wrapped := fmt.Errorf("outer: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.False(t, IsExhausted(wrapped))
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestEnsure_KeepsExistingKind(t *testing.T) {
	v := Validation("person.create", "真实姓名和手机号为必填项！")
	assert.Same(t, v, Ensure("person.create", v).(*Error))

	plain := errors.New("disk gone")
	got := Ensure("person.create", plain)
	require.Error(t, got)
	assert.Equal(t, KindInternal, KindOf(got))
	assert.ErrorIs(t, got, plain)

	assert.NoError(t, Ensure("x", nil))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "人员不存在", MessageOf(NotFound("op", "人员不存在")))
	assert.Equal(t, "boom", MessageOf(errors.New("boom")))
	assert.Equal(t, "", MessageOf(nil))
}

func TestRecover_ConvertsPanic(t *testing.T) {
	run := func() (err error) {
		defer Recover(zap.NewNop(), "test.op", &err)
		panic("kaboom")
	}

	err := run()
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Contains(t, err.Error(), "kaboom")
}
