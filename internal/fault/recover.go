package fault

import (
	"fmt"

	"go.uber.org/zap"
)

// Recover converts a panic in the calling function into a KindInternal error.
// Use it as:
//
//	defer fault.Recover(logger, "person.create", &err)
func Recover(logger *zap.Logger, op string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if logger != nil {
		logger.Error("operation panicked", zap.String("op", op), zap.Any("panic", r), zap.Stack("stack"))
	}
	*errp = Wrap(KindInternal, op, "操作失败，请重试！", fmt.Errorf("panic: %v", r))
}
