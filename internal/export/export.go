// Package export builds read-only tabular projections of the personnel
// store for roster and talent-pool exports. Nothing here writes to the store.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/renshi/internal/fault"
	"github.com/roach88/renshi/internal/logging"
	"github.com/roach88/renshi/internal/person"
	"github.com/roach88/renshi/internal/retry"
	"github.com/roach88/renshi/internal/store"
)

// NoDataNotice is shown when a projection matched no records.
const NoDataNotice = "未查询到符合条件的数据，请检查选择的分会信息！"

// ErrNoData is returned when writing a projection that matched no records.
var ErrNoData = errors.New("export: projection matched no records")

// File names suggested for projections.
const (
	AllFileName        = "全部数据管理层名单"
	TalentPoolFileName = "人才库名单"
)

// poolColumns are the talent-pool export columns: labels and the SQL that
// yields them.
var poolColumns = []struct {
	label string
	expr  string
}{
	{"真实姓名", "p.real_name"},
	{"性别", "p.gender"},
	{"年龄", "p.age"},
	{"手机号", "p.phone"},
	{"省份", "p.province"},
	{"城市", "p.city"},
	{"分会职务", "p.position"},
	{"在职状态", "p.status"},
	{"个人简历", "p.bio"},
	{"加入人才库理由", "t.reason"},
	{"加入人才库时间", "t.add_time"},
}

// Table is a header and rows of text cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// WriteCSV writes the header and rows as CSV.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// Projection is a table plus the file name suggested for saving it.
type Projection struct {
	// Columns is the header. It is set even when nothing matched.
	Columns []string

	// Table holds the matched records; nil when nothing matched.
	Table    *Table
	FileName string

	// ByProvince asks spreadsheet writers for one sheet per province.
	ByProvince bool
}

// newProjection wraps t, dropping it when it has no rows.
func newProjection(t *Table) *Projection {
	p := &Projection{Columns: t.Columns}
	if t.Len() > 0 {
		p.Table = t
	}
	return p
}

// NoData reports whether the projection matched no records.
func (p *Projection) NoData() bool {
	return p.Table == nil
}

// Len returns the number of matched records.
func (p *Projection) Len() int {
	if p.NoData() {
		return 0
	}
	return p.Table.Len()
}

// Notice returns the message to show once the projection is saved.
func (p *Projection) Notice() string {
	if p.NoData() {
		return NoDataNotice
	}
	return fmt.Sprintf("成功导出 %d 条数据！", p.Table.Len())
}

// WriteCSV writes the projection as CSV. It returns ErrNoData when nothing
// matched.
func (p *Projection) WriteCSV(w io.Writer) error {
	if p.NoData() {
		return ErrNoData
	}
	return p.Table.WriteCSV(w)
}

// Projector reads projections from a store.
type Projector struct {
	store  *store.Store
	exec   *retry.Executor
	logger *zap.Logger
}

// Option configures a Projector.
type Option func(*Projector)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(p *Projector) { p.logger = logging.OrNop(l) }
}

// NewProjector creates a Projector. A nil executor uses retry.DefaultPolicy.
func NewProjector(s *store.Store, ex *retry.Executor, opts ...Option) *Projector {
	if ex == nil {
		ex = retry.New(retry.DefaultPolicy())
	}
	p := &Projector{store: s, exec: ex, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProjectAll returns every record, split by province when saved as a
// spreadsheet.
func (p *Projector) ProjectAll(ctx context.Context) (*Projection, error) {
	proj, err := p.roster(ctx, "export.all", "", nil)
	if err != nil {
		return nil, err
	}
	proj.FileName = AllFileName
	proj.ByProvince = true
	return proj, nil
}

// ProjectByDivision returns the records of one province and/or city.
// person.AllDivisions or an empty value leaves that level unfiltered;
// otherwise the match is exact.
func (p *Projector) ProjectByDivision(ctx context.Context, province, city string) (*Projection, error) {
	var (
		conditions []string
		args       []any
		name       strings.Builder
	)
	if v := strings.TrimSpace(province); v != "" && v != person.AllDivisions {
		conditions = append(conditions, "province = ?")
		args = append(args, v)
		name.WriteString(v + "分会")
	}
	if v := strings.TrimSpace(city); v != "" && v != person.AllDivisions {
		conditions = append(conditions, "city = ?")
		args = append(args, v)
		name.WriteString(v + "分会")
	}
	name.WriteString("管理层名单")

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	proj, err := p.roster(ctx, "export.division", where, args)
	if err != nil {
		return nil, err
	}
	proj.FileName = name.String()
	return proj, nil
}

// ProjectTalentPool returns every talent-pool member with the pool reason
// and time.
func (p *Projector) ProjectTalentPool(ctx context.Context) (*Projection, error) {
	const op = "export.talent_pool"
	labels := make([]string, len(poolColumns))
	exprs := make([]string, len(poolColumns))
	for i, c := range poolColumns {
		labels[i] = c.label
		exprs[i] = text(c.expr)
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM personnel p
		JOIN talent_pool t ON p.id = t.person_id
		ORDER BY t.id
	`, strings.Join(exprs, ", "))

	table, err := p.query(ctx, op, labels, query, nil)
	if err != nil {
		return nil, err
	}
	proj := newProjection(table)
	proj.FileName = TalentPoolFileName
	return proj, nil
}

// roster projects personnel: the fixed export columns followed by the
// extension columns in registry order.
func (p *Projector) roster(ctx context.Context, op, where string, args []any) (*Projection, error) {
	ext, err := retry.Do(ctx, p.exec, op, func(ctx context.Context) ([]store.ExtensionColumn, error) {
		return p.store.ExtensionColumns(ctx, nil)
	})
	if err != nil {
		return nil, fault.Ensure(op, err)
	}

	labels := make([]string, 0, len(person.ExportColumns)+len(ext))
	exprs := make([]string, 0, cap(labels))
	for _, c := range person.ExportColumns {
		labels = append(labels, person.Label(c))
		exprs = append(exprs, text(store.QuoteIdent(c)))
	}
	for _, c := range ext {
		labels = append(labels, c.SourceHeader)
		exprs = append(exprs, text(store.QuoteIdent(c.Name)))
	}

	query := fmt.Sprintf("SELECT %s FROM personnel %s ORDER BY id", strings.Join(exprs, ", "), where)
	table, err := p.query(ctx, op, labels, query, args)
	if err != nil {
		return nil, err
	}
	return newProjection(table), nil
}

func (p *Projector) query(ctx context.Context, op string, labels []string, query string, args []any) (*Table, error) {
	table, err := retry.Do(ctx, p.exec, op, func(ctx context.Context) (*Table, error) {
		rows, err := p.store.Query(ctx, query, args...)
		if err != nil {
			return nil, store.Classify(op, fmt.Errorf("query projection: %w", err))
		}
		defer rows.Close()

		t := &Table{Columns: labels, Rows: [][]string{}}
		for rows.Next() {
			cells := make([]string, len(labels))
			dest := make([]any, len(cells))
			for i := range cells {
				dest[i] = &cells[i]
			}
			if err := rows.Scan(dest...); err != nil {
				return nil, store.Classify(op, fmt.Errorf("scan projection: %w", err))
			}
			t.Rows = append(t.Rows, cells)
		}
		if err := rows.Err(); err != nil {
			return nil, store.Classify(op, fmt.Errorf("iterate projection: %w", err))
		}
		return t, nil
	})
	if err != nil {
		return nil, fault.Ensure(op, err)
	}
	p.logger.Debug("projection built", zap.String("op", op), zap.Int("rows", table.Len()))
	return table, nil
}

// text renders a column as text, NULL as empty.
func text(expr string) string {
	return fmt.Sprintf("COALESCE(CAST(%s AS TEXT), '')", expr)
}
