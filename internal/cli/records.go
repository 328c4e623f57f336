package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/renshi/internal/fault"
	"github.com/roach88/renshi/internal/person"
	"github.com/roach88/renshi/internal/reconcile"
)

// recordColumns are shown by show, after the name.
var recordColumns = append(append([]string{}, person.ExportColumns...), "county", "photo_path")

// listColumns are the columns of list output.
var listColumns = []string{"real_name", "gender", "age", "phone", "province", "city", "position", "status"}

// outcomeView is the JSON payload of a write.
type outcomeView struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// resolveColumn accepts a column name, or a label or header synonym such
// as 真实姓名 or mobile.
func resolveColumn(key string) string {
	if person.Label(key) != key {
		return key
	}
	if column, _ := reconcile.MapHeader(key); column != "" {
		return column
	}
	return key
}

// applySets assigns every column=value pair to p.
func applySets(p *person.Person, sets []string) error {
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fault.Validation("cli.set", fmt.Sprintf("字段格式应为 字段=值：%s", s))
		}
		p.Set(resolveColumn(key), strings.TrimSpace(value))
	}
	return nil
}

// record flattens p into column → value, including extension columns.
func record(p *person.Person) map[string]string {
	m := map[string]string{"id": strconv.FormatInt(p.ID, 10)}
	for _, c := range recordColumns {
		m[c] = p.Get(c)
	}
	for k, v := range p.Extra {
		m[k] = v
	}
	return m
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sets   []string
		enroll bool
		reason string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a personnel record",
		Long: `Create a personnel record from column=value pairs.

Columns may be given by name (real_name) or label (真实姓名). 真实姓名 and
手机号 are required.

Example:
  renshi add --set 真实姓名=张三 --set 手机号=13800000000 --set 省份=浙江
  renshi add --set real_name=李四 --set phone=139 --enroll --reason 经验丰富`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				var p person.Person
				if err := applySets(&p, sets); err != nil {
					return err
				}
				var (
					out person.Outcome
					err error
				)
				if enroll {
					out, err = a.people.CreateAndEnroll(ctx, p, reason)
				} else {
					out, err = a.people.Create(ctx, p)
				}
				if err != nil {
					return err
				}
				return a.out.Result(out.Message, outcomeView{ID: out.ID, Message: out.Message})
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "column=value (repeatable)")
	cmd.Flags().BoolVar(&enroll, "enroll", false, "also add the record to the talent pool")
	cmd.Flags().StringVar(&reason, "reason", "", "talent pool reason (with --enroll)")

	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		sets     []string
		fromPool bool
		reason   string
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a personnel record",
		Long: `Edit a personnel record. Columns not given keep their current value.

With --from-pool the talent pool reason is replaced as well.

Example:
  renshi edit 3 --set 分会职务=会长
  renshi edit 3 --from-pool --reason 表现突出`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				p, err := a.people.Get(ctx, id)
				if err != nil {
					return err
				}
				if err := applySets(p, sets); err != nil {
					return err
				}
				out, err := a.people.Update(ctx, id, *p, person.UpdateOptions{FromPool: fromPool, Reason: reason})
				if err != nil {
					return err
				}
				return a.out.Result(out.Message, outcomeView{ID: out.ID, Message: out.Message})
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "column=value (repeatable)")
	cmd.Flags().BoolVar(&fromPool, "from-pool", false, "also update the talent pool reason")
	cmd.Flags().StringVar(&reason, "reason", "", "talent pool reason (with --from-pool)")

	return cmd
}

// NewEnrollCommand creates the enroll command.
func NewEnrollCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:           "enroll <id>",
		Short:         "Add a person to the talent pool",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeByID(rootOpts, cmd, args[0], func(ctx context.Context, a *app, id int64) (person.Outcome, error) {
				return a.people.Enroll(ctx, id, reason)
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the person joins the pool")

	return cmd
}

// NewUnenrollCommand creates the unenroll command.
func NewUnenrollCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "unenroll <id>",
		Short:         "Remove a person from the talent pool",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeByID(rootOpts, cmd, args[0], func(ctx context.Context, a *app, id int64) (person.Outcome, error) {
				return a.people.RemoveFromPool(ctx, id)
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a person and their talent pool entry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeByID(rootOpts, cmd, args[0], func(ctx context.Context, a *app, id int64) (person.Outcome, error) {
				return a.people.Delete(ctx, id)
			})
		},
	}
}

func writeByID(rootOpts *RootOptions, cmd *cobra.Command, arg string,
	fn func(ctx context.Context, a *app, id int64) (person.Outcome, error)) error {
	return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
		id, err := parseID(arg)
		if err != nil {
			return err
		}
		out, err := fn(ctx, a, id)
		if err != nil {
			return err
		}
		return a.out.Result(out.Message, outcomeView{ID: out.ID, Message: out.Message})
	})
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one personnel record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				p, err := a.people.Get(ctx, id)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(recordColumns)+len(p.Extra))
				for _, c := range recordColumns {
					rows = append(rows, []string{person.Label(c), p.Get(c)})
				}
				extra := make([]string, 0, len(p.Extra))
				for k := range p.Extra {
					extra = append(extra, k)
				}
				sort.Strings(extra)
				for _, k := range extra {
					rows = append(rows, []string{k, p.Extra[k]})
				}
				return a.out.Table([]string{"字段", "值"}, rows, record(p))
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var f person.Filter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List personnel records",
		Long: `List personnel records, optionally narrowed by division or a
name/phone search.

Example:
  renshi list --province 浙江
  renshi list --search 138`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				people, err := a.people.List(ctx, f)
				if err != nil {
					return err
				}
				header := []string{"ID"}
				for _, c := range listColumns {
					header = append(header, person.Label(c))
				}
				rows := make([][]string, 0, len(people))
				data := make([]map[string]string, 0, len(people))
				for i := range people {
					p := &people[i]
					row := []string{strconv.FormatInt(p.ID, 10)}
					for _, c := range listColumns {
						row = append(row, p.Get(c))
					}
					rows = append(rows, row)
					data = append(data, record(p))
				}
				return a.out.Table(header, rows, data)
			})
		},
	}

	cmd.Flags().StringVar(&f.Province, "province", "", "province filter (全部 for all)")
	cmd.Flags().StringVar(&f.City, "city", "", "city filter (全部 for all)")
	cmd.Flags().StringVar(&f.Search, "search", "", "match name or phone")

	return cmd
}

// poolView is the JSON form of a talent pool entry.
type poolView struct {
	PersonID int64  `json:"person_id"`
	RealName string `json:"real_name"`
	Phone    string `json:"phone"`
	Province string `json:"province"`
	City     string `json:"city"`
	Position string `json:"position"`
	Reason   string `json:"reason"`
	AddTime  string `json:"add_time"`
}

// NewPoolCommand creates the pool command.
func NewPoolCommand(rootOpts *RootOptions) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:           "pool",
		Short:         "List talent pool members, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				entries, err := a.people.ListPool(ctx, search)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(entries))
				data := make([]poolView, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(e.PersonID, 10), e.RealName, e.Phone,
						e.Province, e.City, e.Position, e.Reason, e.AddTime,
					})
					data = append(data, poolView(e))
				}
				header := []string{"ID", "真实姓名", "手机号", "省份", "城市", "分会职务", "加入人才库理由", "加入人才库时间"}
				return a.out.Table(header, rows, data)
			})
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "match name or phone")

	return cmd
}

// divisionView is the JSON form of a division.
type divisionView struct {
	Province string   `json:"province"`
	Cities   []string `json:"cities"`
}

// NewDivisionsCommand creates the divisions command.
func NewDivisionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "divisions",
		Short:         "List recorded provinces and their cities",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				divisions, err := a.people.Divisions(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(divisions))
				data := make([]divisionView, 0, len(divisions))
				for _, d := range divisions {
					rows = append(rows, []string{d.Province, strings.Join(d.Cities, "、")})
					data = append(data, divisionView(d))
				}
				return a.out.Table([]string{"省份", "城市"}, rows, data)
			})
		},
	}
}
