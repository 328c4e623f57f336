package person

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/renshi/internal/fault"
	"github.com/roach88/renshi/internal/retry"
	"github.com/roach88/renshi/internal/store"
)

// read runs a read-only query function through the executor.
func read[T any](ctx context.Context, r *Repository, op string, fn func(ctx context.Context) (T, error)) (result T, err error) {
	defer fault.Recover(r.logger, op, &err)
	result, err = retry.Do(ctx, r.exec, op, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		return v, store.Classify(op, err)
	})
	if err != nil {
		var zero T
		return zero, fault.Ensure(op, err)
	}
	return result, nil
}

// Get returns record id with all of its columns.
func (r *Repository) Get(ctx context.Context, id int64) (*Person, error) {
	const op = "person.get"
	return read(ctx, r, op, func(ctx context.Context) (*Person, error) {
		people, err := r.selectPeople(ctx, "WHERE id = ?", id)
		if err != nil {
			return nil, err
		}
		if len(people) == 0 {
			return nil, fault.NotFound(op, msgNotFound)
		}
		return &people[0], nil
	})
}

// List returns records matching f, ordered by id. Province and city match
// by substring after their 省/市 suffix is removed; Search matches name or
// phone by substring.
func (r *Repository) List(ctx context.Context, f Filter) ([]Person, error) {
	const op = "person.list"
	return read(ctx, r, op, func(ctx context.Context) ([]Person, error) {
		var (
			conditions []string
			args       []any
		)
		if p := StripProvince(f.Province); p != "" && p != AllDivisions {
			conditions = append(conditions, "province LIKE ?")
			args = append(args, "%"+p+"%")
		}
		if c := StripCity(f.City); c != "" && c != AllDivisions {
			conditions = append(conditions, "city LIKE ?")
			args = append(args, "%"+c+"%")
		}
		if s := strings.TrimSpace(f.Search); s != "" {
			conditions = append(conditions, "(real_name LIKE ? OR phone LIKE ?)")
			args = append(args, "%"+s+"%", "%"+s+"%")
		}

		where := ""
		if len(conditions) > 0 {
			where = "WHERE " + strings.Join(conditions, " AND ")
		}
		return r.selectPeople(ctx, where+" ORDER BY id", args...)
	})
}

// ListPool returns talent-pool members, most recently added first.
// A non-empty search matches name or phone by substring.
func (r *Repository) ListPool(ctx context.Context, search string) ([]PoolEntry, error) {
	const op = "person.list_pool"
	return read(ctx, r, op, func(ctx context.Context) ([]PoolEntry, error) {
		query := `
			SELECT p.id, COALESCE(p.real_name, ''), COALESCE(p.phone, ''), COALESCE(p.province, ''),
			       COALESCE(p.city, ''), COALESCE(p.position, ''), COALESCE(t.reason, ''), COALESCE(t.add_time, '')
			FROM personnel p
			JOIN talent_pool t ON p.id = t.person_id
		`
		var args []any
		if s := strings.TrimSpace(search); s != "" {
			query += " WHERE p.real_name LIKE ? OR p.phone LIKE ?"
			args = append(args, "%"+s+"%", "%"+s+"%")
		}
		query += " ORDER BY t.add_time DESC, t.id DESC"

		rows, err := r.store.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query talent pool: %w", err)
		}
		defer rows.Close()

		entries := []PoolEntry{}
		for rows.Next() {
			var e PoolEntry
			if err := rows.Scan(&e.PersonID, &e.RealName, &e.Phone, &e.Province, &e.City, &e.Position, &e.Reason, &e.AddTime); err != nil {
				return nil, fmt.Errorf("scan pool entry: %w", err)
			}
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate talent pool: %w", err)
		}
		return entries, nil
	})
}

// PoolReason returns the talent-pool reason of record id and whether the
// record is enrolled at all.
func (r *Repository) PoolReason(ctx context.Context, id int64) (string, bool, error) {
	const op = "person.pool_reason"
	type result struct {
		reason   string
		enrolled bool
	}
	res, err := read(ctx, r, op, func(ctx context.Context) (result, error) {
		var reason sql.NullString
		err := r.store.DB().QueryRowContext(ctx,
			"SELECT reason FROM talent_pool WHERE person_id = ? ORDER BY id LIMIT 1", id,
		).Scan(&reason)
		if errors.Is(err, sql.ErrNoRows) {
			return result{}, nil
		}
		if err != nil {
			return result{}, fmt.Errorf("query pool reason: %w", err)
		}
		return result{reason: reason.String, enrolled: true}, nil
	})
	return res.reason, res.enrolled, err
}

// Divisions lists every province with its cities, suffixes removed and
// sorted.
func (r *Repository) Divisions(ctx context.Context) ([]Division, error) {
	const op = "person.divisions"
	return read(ctx, r, op, func(ctx context.Context) ([]Division, error) {
		rows, err := r.store.Query(ctx, `
			SELECT DISTINCT province, COALESCE(city, '')
			FROM personnel
			WHERE province IS NOT NULL AND province != ''
		`)
		if err != nil {
			return nil, fmt.Errorf("query divisions: %w", err)
		}
		defer rows.Close()

		cities := make(map[string]map[string]bool)
		for rows.Next() {
			var province, city string
			if err := rows.Scan(&province, &city); err != nil {
				return nil, fmt.Errorf("scan division: %w", err)
			}
			p := StripProvince(province)
			if cities[p] == nil {
				cities[p] = make(map[string]bool)
			}
			if c := StripCity(city); c != "" {
				cities[p][c] = true
			}
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate divisions: %w", err)
		}

		divisions := make([]Division, 0, len(cities))
		for p, set := range cities {
			d := Division{Province: p, Cities: make([]string, 0, len(set))}
			for c := range set {
				d.Cities = append(d.Cities, c)
			}
			sort.Strings(d.Cities)
			divisions = append(divisions, d)
		}
		sort.Slice(divisions, func(i, j int) bool { return divisions[i].Province < divisions[j].Province })
		return divisions, nil
	})
}

// selectPeople loads every column of the records matched by the trailing
// SQL clause.
func (r *Repository) selectPeople(ctx context.Context, clause string, args ...any) ([]Person, error) {
	cols, err := r.store.Columns(ctx)
	if err != nil {
		return nil, err
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = store.QuoteIdent(c)
	}

	rows, err := r.store.Query(ctx,
		fmt.Sprintf("SELECT %s FROM personnel %s", strings.Join(quoted, ", "), clause), args...)
	if err != nil {
		return nil, fmt.Errorf("query personnel: %w", err)
	}
	defer rows.Close()

	people := []Person{}
	for rows.Next() {
		p, err := scanPerson(rows, cols)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personnel: %w", err)
	}
	return people, nil
}

func scanPerson(rows *sql.Rows, cols []string) (Person, error) {
	cells := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return Person{}, fmt.Errorf("scan person: %w", err)
	}

	fixed := make(map[string]bool, len(store.PersonnelColumns))
	for _, c := range store.PersonnelColumns {
		fixed[c] = true
	}

	var p Person
	for i, c := range cols {
		switch {
		case c == "id":
			id, err := strconv.ParseInt(cells[i].String, 10, 64)
			if err != nil {
				return Person{}, fmt.Errorf("scan person id %q: %w", cells[i].String, err)
			}
			p.ID = id
		case fixed[c]:
			p.Set(c, cells[i].String)
		case cells[i].Valid:
			p.Set(c, cells[i].String)
		}
	}
	return p, nil
}
