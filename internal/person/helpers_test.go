package person

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/renshi/internal/retry"
	"github.com/roach88/renshi/internal/store"
	"github.com/roach88/renshi/internal/testutil"
)

func fastExecutor() *retry.Executor {
	p := retry.DefaultPolicy()
	p.Delay = time.Millisecond
	return retry.New(p)
}

// setupRepo returns a repository over a migrated store in a temp directory.
func setupRepo(t *testing.T) (*Repository, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hr_data.db")
	s, err := store.Open(path, store.WithClock(testutil.NewDeterministicClock(time.Time{}, time.Second).Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Migrate(ctx))
	return NewRepository(s, fastExecutor()), s
}

func zhangSan() Person {
	return Person{
		RealName: "张三",
		Gender:   "男",
		Age:      34,
		Phone:    "13800000000",
		Province: "浙江",
		City:     "杭州",
		Position: "会长",
		Status:   DefaultStatus,
	}
}

func count(t *testing.T, s *store.Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(query, args...).Scan(&n))
	return n
}
