// Package reconcile merges spreadsheet sources into the personnel store.
//
// An import run maps each source header onto a personnel column, extends the
// schema for headers it does not recognize, drops rows whose (name, phone)
// key is already stored and inserts the rest. The whole run is one
// transaction: either every accepted row, every added column and the single
// log entry become visible together, or nothing does.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/renshi/internal/fault"
	"github.com/roach88/renshi/internal/logging"
	"github.com/roach88/renshi/internal/metrics"
	"github.com/roach88/renshi/internal/person"
	"github.com/roach88/renshi/internal/retry"
	"github.com/roach88/renshi/internal/store"
)

// LogImport is the operation log type of an import run.
const LogImport = "导入数据"

// DefaultSkipReasonLimit is how many skip reasons a report message lists.
const DefaultSkipReasonLimit = 5

// Skip records a row that was not imported. It is not an error.
type Skip struct {
	Source string
	Line   int
	Name   string
	Phone  string
	Reason string
}

// Report summarizes a committed import run.
type Report struct {
	// RunID identifies the run in logs.
	RunID string

	Imported int
	Skipped  int
	Skips    []Skip

	// AddedColumns lists extension columns created by this run.
	AddedColumns []string

	reasonLimit int
}

// Message renders the user-facing summary with at most the configured
// number of skip reasons.
func (r *Report) Message() string {
	msg := fmt.Sprintf("成功导入 %d 条数据", r.Imported)
	if r.Skipped > 0 {
		msg += fmt.Sprintf("\n跳过了 %d 条数据，原因如下：\n", r.Skipped) +
			strings.Join(skipReasons(r.Skips, r.reasonLimit), "\n")
	}
	return msg
}

func skipReasons(skips []Skip, limit int) []string {
	if limit <= 0 {
		limit = DefaultSkipReasonLimit
	}
	reasons := make([]string, 0, limit)
	for _, s := range skips {
		if len(reasons) == limit {
			break
		}
		reasons = append(reasons, s.Reason)
	}
	return reasons
}

// Reconciler imports sources into a store.
type Reconciler struct {
	store       *store.Store
	exec        *retry.Executor
	logger      *zap.Logger
	metrics     *metrics.Metrics
	newID       func() string
	reasonLimit int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = logging.OrNop(l) }
}

// WithMetrics records row counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithRunIDGenerator replaces the run id source (default: random UUID).
func WithRunIDGenerator(gen func() string) Option {
	return func(r *Reconciler) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithSkipReasonLimit sets how many skip reasons messages carry.
func WithSkipReasonLimit(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.reasonLimit = n
		}
	}
}

// New creates a Reconciler. A nil executor uses retry.DefaultPolicy.
func New(s *store.Store, ex *retry.Executor, opts ...Option) *Reconciler {
	if ex == nil {
		ex = retry.New(retry.DefaultPolicy())
	}
	r := &Reconciler{
		store:       s,
		exec:        ex,
		logger:      zap.NewNop(),
		newID:       uuid.NewString,
		reasonLimit: DefaultSkipReasonLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ImportFiles loads every path, then imports them as one run. No
// transaction is opened until every file has been read.
func (r *Reconciler) ImportFiles(ctx context.Context, paths []string, onCommit func()) (*Report, error) {
	if len(paths) == 0 {
		return nil, fault.Validation("reconcile.import", "未选择导入文件")
	}
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		src, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return r.Import(ctx, sources, onCommit)
}

// Import merges sources in one transaction, retried as a whole on
// contention. onCommit runs after a successful commit; a panic inside it is
// logged and does not affect the result.
//
// A failed run leaves the store untouched. The returned *fault.Error carries
// the first skip reasons of the aborted attempt in Details.
func (r *Reconciler) Import(ctx context.Context, sources []Source, onCommit func()) (report *Report, err error) {
	const op = "reconcile.import"
	defer func() { r.metrics.ObserveOperation(op, err) }()
	defer fault.Recover(r.logger, op, &err)

	runID := r.newID()
	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("import started", zap.Int("sources", len(sources)))

	var aborted []Skip
	err = r.exec.Run(ctx, op, func(ctx context.Context) error {
		attempt := &Report{RunID: runID, reasonLimit: r.reasonLimit}
		txErr := r.store.WithTx(ctx, op, func(tx *sql.Tx) error {
			return r.run(ctx, tx, logger, sources, attempt)
		})
		if txErr != nil {
			aborted = attempt.Skips
			return txErr
		}
		report = attempt
		return nil
	})
	if err != nil {
		err = withDetails(fault.Ensure(op, err), skipReasons(aborted, r.reasonLimit))
		logger.Error("import failed", zap.Error(err))
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.ImportRows.WithLabelValues("imported").Add(float64(report.Imported))
		r.metrics.ImportRows.WithLabelValues("skipped").Add(float64(report.Skipped))
	}
	logger.Info("import committed",
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Strings("added_columns", report.AddedColumns),
	)

	r.notify(logger, onCommit)
	return report, nil
}

func (r *Reconciler) notify(logger *zap.Logger, onCommit func()) {
	if onCommit == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("post-commit callback panicked", zap.Any("panic", rec))
		}
	}()
	onCommit()
}

// run performs one attempt on tx, filling rep.
func (r *Reconciler) run(ctx context.Context, tx *sql.Tx, logger *zap.Logger, sources []Source, rep *Report) error {
	for _, src := range sources {
		columns, err := r.mapColumns(ctx, tx, logger, src, rep)
		if err != nil {
			return err
		}
		ext, err := r.store.ExtensionColumns(ctx, tx)
		if err != nil {
			return err
		}

		for i, row := range src.Rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.importRow(ctx, tx, src.Name, i+2, columns, ext, row, rep); err != nil {
				return err
			}
		}
	}

	target := fmt.Sprintf("导入了%d条数据，跳过了%d条", rep.Imported, rep.Skipped)
	return r.store.AppendLog(ctx, tx, LogImport, target)
}

// mapColumns resolves every header of src, adding extension columns as
// needed. The result is indexed like the header; "" means ignore. Headers
// naming an existing column in another letter case map to that column.
func (r *Reconciler) mapColumns(ctx context.Context, tx *sql.Tx, logger *zap.Logger, src Source, rep *Report) ([]string, error) {
	columns := make([]string, len(src.Header))
	for i, h := range src.Header {
		col, known := MapHeader(h)
		if col == "" || known {
			columns[i] = col
			continue
		}

		column, added, err := r.store.EnsureExtensionColumn(ctx, tx, col, FoldHeader(h))
		if fault.IsValidation(err) {
			logger.Warn("header ignored", zap.String("source", src.Name), zap.String("header", h), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if added {
			rep.AddedColumns = append(rep.AddedColumns, column)
		}
		columns[i] = column
	}
	return columns, nil
}

// importRow inserts one data row. Registered extension columns the row
// leaves blank are stored as "".
func (r *Reconciler) importRow(ctx context.Context, tx *sql.Tx, source string, line int, columns []string, ext []store.ExtensionColumn, row []string, rep *Report) error {
	p := person.Person{Status: person.DefaultStatus, Extra: make(map[string]string, len(ext))}
	for _, c := range ext {
		p.Extra[c.Name] = ""
	}
	empty := true
	for i, cell := range row {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		empty = false
		if i >= len(columns) || columns[i] == "" {
			continue
		}
		switch col := columns[i]; col {
		case "province":
			p.Province = person.StripProvince(cell)
		case "city":
			p.City = person.StripCity(cell)
		default:
			p.Set(col, cell)
		}
	}
	if empty {
		return nil
	}

	p.RealName = strings.TrimSpace(p.RealName)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.RealName == "" {
		rep.skip(Skip{Source: source, Line: line, Phone: p.Phone, Reason: fmt.Sprintf("第%d行缺少姓名", line)})
		return nil
	}

	exists, err := duplicate(ctx, tx, p.RealName, p.Phone)
	if err != nil {
		return err
	}
	if exists {
		phone := p.Phone
		if phone == "" {
			phone = "无"
		}
		rep.skip(Skip{
			Source: source,
			Line:   line,
			Name:   p.RealName,
			Phone:  p.Phone,
			Reason: fmt.Sprintf("记录 '%s' (手机号: %s) 已存在", p.RealName, phone),
		})
		return nil
	}

	if _, err := person.Insert(ctx, tx, &p); err != nil {
		return fmt.Errorf("%s line %d: %w", source, line, err)
	}
	rep.Imported++
	return nil
}

func (rep *Report) skip(s Skip) {
	rep.Skipped++
	rep.Skips = append(rep.Skips, s)
}

// duplicate reports whether a record with the same key is stored. Rows
// inserted earlier in the same transaction are visible.
func duplicate(ctx context.Context, tx *sql.Tx, name, phone string) (bool, error) {
	query := "SELECT id FROM personnel WHERE real_name = ?"
	args := []any{name}
	if phone != "" {
		query += " AND phone = ?"
		args = append(args, phone)
	}
	query += " LIMIT 1"

	var id int64
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return true, nil
}

func withDetails(err error, details []string) error {
	var fe *fault.Error
	if len(details) == 0 || !errors.As(err, &fe) {
		return err
	}
	clone := *fe
	clone.Details = details
	return &clone
}
