package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/renshi/internal/fault"
)

// Backup writes a consistent copy of the database to dest using VACUUM INTO.
// dest must not exist yet.
func (s *Store) Backup(ctx context.Context, dest string) error {
	const op = "store.backup"
	if strings.TrimSpace(dest) == "" {
		return fault.Validation(op, "未选择备份路径")
	}
	if _, err := os.Stat(dest); err == nil {
		return fault.Validation(op, fmt.Sprintf("备份文件已存在：%s", dest))
	} else if !errors.Is(err, os.ErrNotExist) {
		return fault.Wrap(fault.KindIO, op, "无法访问备份路径", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return Classify(op, fmt.Errorf("vacuum into %s: %w", dest, err))
	}
	s.logger.Info("database backed up", zap.String("dest", dest))
	return nil
}
