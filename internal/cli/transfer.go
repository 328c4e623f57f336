package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/renshi/internal/export"
	"github.com/roach88/renshi/internal/fault"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade the database",
		Long: `Create the database file if needed and bring its schema up to date.

Every command does this on start; init only reports the result.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				version, err := a.store.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				path := a.cfg.Database.Path
				return a.out.Result(
					fmt.Sprintf("数据库已就绪：%s (schema v%d)", path, version),
					map[string]any{"path": path, "schema_version": version},
				)
			})
		},
	}
}

// reportView is the JSON form of an import report.
type reportView struct {
	RunID        string     `json:"run_id"`
	Imported     int        `json:"imported"`
	Skipped      int        `json:"skipped"`
	Skips        []skipView `json:"skips,omitempty"`
	AddedColumns []string   `json:"added_columns,omitempty"`
	Message      string     `json:"message"`
}

type skipView struct {
	Source string `json:"source"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <files...>",
		Short: "Merge spreadsheets into the roster",
		Long: `Merge one or more .xlsx or .csv files into the roster as a single run.

Rows whose name and phone are already recorded are skipped. Headers that
match no known column add a new column. If anything fails nothing is kept.

Example:
  renshi import 浙江分会.xlsx 江苏分会.csv`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				rep, err := a.importer.ImportFiles(ctx, args, func() {
					a.out.VerboseLog("import committed")
				})
				if err != nil {
					return err
				}
				view := reportView{
					RunID:        rep.RunID,
					Imported:     rep.Imported,
					Skipped:      rep.Skipped,
					AddedColumns: rep.AddedColumns,
					Message:      rep.Message(),
				}
				for _, s := range rep.Skips {
					view.Skips = append(view.Skips, skipView{Source: s.Source, Line: s.Line, Reason: s.Reason})
				}
				text := rep.Message()
				if len(rep.AddedColumns) > 0 {
					text += "\n新增字段：" + strings.Join(rep.AddedColumns, "、")
				}
				return a.out.Result(text, view)
			})
		},
	}
}

// exportView is the JSON form of a saved projection.
type exportView struct {
	Path    string `json:"path,omitempty"`
	Rows    int    `json:"rows"`
	Message string `json:"message"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var province, city, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the roster",
		Long: `Export the roster to a spreadsheet.

Without filters every record is exported, one sheet per province. With
--province and/or --city only that division is exported. A .csv output
path writes CSV; anything else writes .xlsx.

Example:
  renshi export
  renshi export --province 浙江 --city 杭州 --out 杭州.xlsx`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				var (
					proj *export.Projection
					err  error
				)
				if province == "" && city == "" {
					proj, err = a.exporter.ProjectAll(ctx)
				} else {
					proj, err = a.exporter.ProjectByDivision(ctx, province, city)
				}
				if err != nil {
					return err
				}
				return saveProjection(a, proj, out)
			})
		},
	}

	cmd.Flags().StringVar(&province, "province", "", "province to export (全部 for all)")
	cmd.Flags().StringVar(&city, "city", "", "city to export (全部 for all)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: <name>.xlsx)")

	return cmd
}

// NewExportPoolCommand creates the export-pool command.
func NewExportPoolCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:           "export-pool",
		Short:         "Export the talent pool",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				proj, err := a.exporter.ProjectTalentPool(ctx)
				if err != nil {
					return err
				}
				return saveProjection(a, proj, out)
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: 人才库名单.xlsx)")

	return cmd
}

// saveProjection writes proj to path. An empty projection writes nothing
// and is not an error.
func saveProjection(a *app, proj *export.Projection, path string) error {
	const op = "cli.export"
	if proj.NoData() {
		return a.out.Result(proj.Notice(), exportView{Message: proj.Notice()})
	}
	if path == "" {
		path = proj.FileName + ".xlsx"
	}

	f, err := os.Create(path)
	if err != nil {
		return fault.Wrap(fault.KindIO, op, "无法写入文件："+path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		err = proj.WriteCSV(f)
	} else {
		err = proj.WriteXLSX(f)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fault.Wrap(fault.KindIO, op, "导出失败："+path, err)
	}

	a.logger.Info("projection saved", zap.String("path", path), zap.Int("rows", proj.Len()))
	return a.out.Result(
		proj.Notice()+"\n"+path,
		exportView{Path: path, Rows: proj.Len(), Message: proj.Notice()},
	)
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest>",
		Short: "Write a consistent copy of the database",
		Long: `Write a consistent copy of the database to dest, which must not exist.

Example:
  renshi backup ./hr_data_备份.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				if err := a.store.Backup(ctx, args[0]); err != nil {
					return err
				}
				return a.out.Result("数据已备份到 "+args[0], map[string]string{"path": args[0]})
			})
		},
	}
}

// logView is the JSON form of an operation log entry.
type logView struct {
	ID     int64  `json:"id"`
	Type   string `json:"type"`
	Target string `json:"target"`
	Time   string `json:"time"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "log",
		Short:         "Show the operation log, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				entries, err := a.store.ListLog(ctx, limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(entries))
				data := make([]logView, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{e.Time, e.Type, e.Target})
					data = append(data, logView(e))
				}
				return a.out.Table([]string{"时间", "操作", "对象"}, rows, data)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "entries to show (0 for all)")

	return cmd
}
