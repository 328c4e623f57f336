package person

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/renshi/internal/fault"
	"github.com/roach88/renshi/internal/logging"
	"github.com/roach88/renshi/internal/metrics"
	"github.com/roach88/renshi/internal/retry"
	"github.com/roach88/renshi/internal/store"
)

// Operation log types.
const (
	LogCreate           = "新增人员"
	LogUpdate           = "编辑人员"
	LogUpdateWithReason = "编辑人员及人才库理由"
	LogCreateAndEnroll  = "新增并加入人才库"
	LogEnroll           = "加入人才库"
	LogDelete           = "删除人员"
	LogRemoveFromPool   = "从人才库中移除"
)

const msgNotFound = "人员不存在"

// Repository performs record-level operations on the personnel store.
type Repository struct {
	store   *store.Store
	exec    *retry.Executor
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) { r.logger = logging.OrNop(l) }
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// NewRepository creates a Repository. A nil executor uses retry.DefaultPolicy.
func NewRepository(s *store.Store, ex *retry.Executor, opts ...Option) *Repository {
	if ex == nil {
		ex = retry.New(retry.DefaultPolicy())
	}
	r := &Repository{
		store:  s,
		exec:   ex,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpdateOptions controls Update.
type UpdateOptions struct {
	// FromPool marks an edit made from the talent-pool view; the pool
	// reason is overwritten with Reason.
	FromPool bool

	// Reason is the new talent-pool reason when FromPool is set.
	Reason string
}

// write runs fn in one transaction through the executor. Each attempt gets
// a fresh transaction and a fresh Outcome.
func (r *Repository) write(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx) (Outcome, error)) (out Outcome, err error) {
	defer func() { r.metrics.ObserveOperation(op, err) }()
	defer fault.Recover(r.logger, op, &err)

	out, err = retry.Do(ctx, r.exec, op, func(ctx context.Context) (Outcome, error) {
		var attempt Outcome
		txErr := r.store.WithTx(ctx, op, func(tx *sql.Tx) error {
			var err error
			attempt, err = fn(ctx, tx)
			return err
		})
		return attempt, txErr
	})
	if err != nil {
		err = fault.Ensure(op, err)
		r.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
		return Outcome{}, err
	}
	r.logger.Info("operation completed", zap.String("op", op), zap.Int64("person_id", out.ID))
	return out, nil
}

// Create inserts a new record and logs it.
func (r *Repository) Create(ctx context.Context, p Person) (Outcome, error) {
	const op = "person.create"
	if err := p.Validate(op); err != nil {
		return Outcome{}, err
	}
	return r.write(ctx, op, func(ctx context.Context, tx *sql.Tx) (Outcome, error) {
		id, err := r.insert(ctx, tx, op, &p)
		if err != nil {
			return Outcome{}, err
		}
		if err := r.store.AppendLog(ctx, tx, LogCreate, p.RealName); err != nil {
			return Outcome{}, err
		}
		return Outcome{ID: id, Message: "新增人员完成"}, nil
	})
}

// Update overwrites every field of record id with p.
func (r *Repository) Update(ctx context.Context, id int64, p Person, opts UpdateOptions) (Outcome, error) {
	const op = "person.update"
	if err := p.Validate(op); err != nil {
		return Outcome{}, err
	}
	return r.write(ctx, op, func(ctx context.Context, tx *sql.Tx) (Outcome, error) {
		var oldPhoto sql.NullString
		err := tx.QueryRowContext(ctx, "SELECT photo_path FROM personnel WHERE id = ?", id).Scan(&oldPhoto)
		if errors.Is(err, sql.ErrNoRows) {
			return Outcome{}, fault.NotFound(op, msgNotFound)
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("load person %d: %w", id, err)
		}

		if err := r.update(ctx, tx, op, id, &p); err != nil {
			return Outcome{}, err
		}

		logType, message := LogUpdate, "编辑信息完成"
		if opts.FromPool {
			res, err := tx.ExecContext(ctx, "UPDATE talent_pool SET reason = ? WHERE person_id = ?", opts.Reason, id)
			if err != nil {
				return Outcome{}, fmt.Errorf("update pool reason: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				logType, message = LogUpdateWithReason, "编辑信息及人才库理由完成"
			}
		}

		if err := r.store.AppendLog(ctx, tx, logType, p.RealName); err != nil {
			return Outcome{}, err
		}
		if oldPhoto.String != p.PhotoPath {
			message += "\n照片已更新"
		}
		return Outcome{ID: id, Message: message}, nil
	})
}

// CreateAndEnroll inserts a record and adds it to the talent pool.
func (r *Repository) CreateAndEnroll(ctx context.Context, p Person, reason string) (Outcome, error) {
	const op = "person.create_and_enroll"
	if err := p.Validate(op); err != nil {
		return Outcome{}, err
	}
	return r.write(ctx, op, func(ctx context.Context, tx *sql.Tx) (Outcome, error) {
		id, err := r.insert(ctx, tx, op, &p)
		if err != nil {
			return Outcome{}, err
		}
		if err := r.addToPool(ctx, tx, id, reason); err != nil {
			return Outcome{}, err
		}
		if err := r.store.AppendLog(ctx, tx, LogCreateAndEnroll, p.RealName); err != nil {
			return Outcome{}, err
		}
		return Outcome{ID: id, Message: fmt.Sprintf("新增人员 %s 并加入人才库完成", p.RealName)}, nil
	})
}

// Enroll adds record id to the talent pool. A record can be enrolled once.
func (r *Repository) Enroll(ctx context.Context, id int64, reason string) (Outcome, error) {
	const op = "person.enroll"
	return r.write(ctx, op, func(ctx context.Context, tx *sql.Tx) (Outcome, error) {
		name, err := realName(ctx, tx, op, id)
		if err != nil {
			return Outcome{}, err
		}

		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM talent_pool WHERE person_id = ?", id).Scan(&count); err != nil {
			return Outcome{}, fmt.Errorf("check pool membership: %w", err)
		}
		if count > 0 {
			return Outcome{}, fault.Validation(op, "人员已在人才库中")
		}

		if err := r.addToPool(ctx, tx, id, reason); err != nil {
			return Outcome{}, err
		}
		if err := r.store.AppendLog(ctx, tx, LogEnroll, name); err != nil {
			return Outcome{}, err
		}
		return Outcome{ID: id, Message: fmt.Sprintf("人员 %s 已加入人才库", name)}, nil
	})
}

// Delete removes record id and its talent-pool entries.
func (r *Repository) Delete(ctx context.Context, id int64) (Outcome, error) {
	const op = "person.delete"
	return r.write(ctx, op, func(ctx context.Context, tx *sql.Tx) (Outcome, error) {
		name, err := realName(ctx, tx, op, id)
		if err != nil {
			return Outcome{}, err
		}
		// Pool rows first: they reference personnel.
		if _, err := tx.ExecContext(ctx, "DELETE FROM talent_pool WHERE person_id = ?", id); err != nil {
			return Outcome{}, fmt.Errorf("delete pool entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM personnel WHERE id = ?", id); err != nil {
			return Outcome{}, fmt.Errorf("delete person: %w", err)
		}
		if err := r.store.AppendLog(ctx, tx, LogDelete, name); err != nil {
			return Outcome{}, err
		}
		return Outcome{ID: id, Message: "人员已删除"}, nil
	})
}

// RemoveFromPool deletes the talent-pool entries of record id. The record
// itself is kept.
func (r *Repository) RemoveFromPool(ctx context.Context, id int64) (Outcome, error) {
	const op = "person.remove_from_pool"
	return r.write(ctx, op, func(ctx context.Context, tx *sql.Tx) (Outcome, error) {
		name, err := realName(ctx, tx, op, id)
		if err != nil {
			return Outcome{}, err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM talent_pool WHERE person_id = ?", id)
		if err != nil {
			return Outcome{}, fmt.Errorf("delete pool entries: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Outcome{}, fault.NotFound(op, "人员不在人才库中")
		}
		if err := r.store.AppendLog(ctx, tx, LogRemoveFromPool, name); err != nil {
			return Outcome{}, err
		}
		return Outcome{ID: id, Message: fmt.Sprintf("人员 %s 已从人才库中移除", name)}, nil
	})
}

func (r *Repository) addToPool(ctx context.Context, tx *sql.Tx, id int64, reason string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO talent_pool (person_id, add_time, reason) VALUES (?, ?, ?)",
		id, r.store.Timestamp(), reason,
	)
	if err != nil {
		return fmt.Errorf("insert pool entry: %w", err)
	}
	return nil
}

// insert validates p's extension keys and writes it.
func (r *Repository) insert(ctx context.Context, tx *sql.Tx, op string, p *Person) (int64, error) {
	if _, err := r.extensionColumns(ctx, tx, op, p); err != nil {
		return 0, err
	}
	return Insert(ctx, tx, p)
}

// Insert writes p on q and returns the new id. Every Extra key must name an
// existing personnel column.
func Insert(ctx context.Context, q store.Querier, p *Person) (int64, error) {
	columns := append([]string{}, store.PersonnelColumns...)
	values := p.fixedValues(store.PersonnelColumns)

	extra := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, c := range extra {
		columns = append(columns, c)
		values = append(values, p.Extra[c])
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = store.QuoteIdent(c)
	}
	stmt := fmt.Sprintf("INSERT INTO personnel (%s) VALUES (%s)",
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "),
	)

	res, err := q.ExecContext(ctx, stmt, values...)
	if err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert person id: %w", err)
	}
	return id, nil
}

// update overwrites every column of record id, extension columns included;
// extension columns absent from p.Extra become NULL.
func (r *Repository) update(ctx context.Context, tx *sql.Tx, op string, id int64, p *Person) error {
	ext, err := r.extensionColumns(ctx, tx, op, p)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(store.PersonnelColumns)+len(ext))
	values := p.fixedValues(store.PersonnelColumns)
	for _, c := range store.PersonnelColumns {
		sets = append(sets, store.QuoteIdent(c)+" = ?")
	}
	for _, c := range ext {
		sets = append(sets, store.QuoteIdent(c)+" = ?")
		if v, ok := p.Extra[c]; ok {
			values = append(values, v)
		} else {
			values = append(values, nil)
		}
	}
	values = append(values, id)

	stmt := fmt.Sprintf("UPDATE personnel SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, stmt, values...); err != nil {
		return fmt.Errorf("update person %d: %w", id, err)
	}
	return nil
}

// extensionColumns returns the registered extension column names in
// registry order and rejects Extra keys that are not among them. Keys that
// differ from a registered name only in letter case are renamed to it.
func (r *Repository) extensionColumns(ctx context.Context, tx *sql.Tx, op string, p *Person) ([]string, error) {
	registered, err := r.store.ExtensionColumns(ctx, tx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(registered))
	known := make(map[string]bool, len(registered))
	for i, c := range registered {
		names[i] = c.Name
		known[c.Name] = true
	}
	for k, v := range p.Extra {
		if known[k] {
			continue
		}
		column := canonicalColumn(names, k)
		if column == "" {
			return nil, fault.Validation(op, fmt.Sprintf("未知字段：%s", k))
		}
		delete(p.Extra, k)
		p.Extra[column] = v
	}
	return names, nil
}

// canonicalColumn returns the registered spelling of key, or "".
func canonicalColumn(names []string, key string) string {
	for _, n := range names {
		if store.SameIdent(n, key) {
			return n
		}
	}
	return ""
}

func realName(ctx context.Context, q store.Querier, op string, id int64) (string, error) {
	var name sql.NullString
	err := q.QueryRowContext(ctx, "SELECT real_name FROM personnel WHERE id = ?", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fault.NotFound(op, msgNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("load person %d: %w", id, err)
	}
	return name.String, nil
}
