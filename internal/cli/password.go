package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/renshi/internal/fault"
)

// NewPasswordCommand creates the password command group.
func NewPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage the application password",
	}

	cmd.AddCommand(newPasswordSetCommand(rootOpts))
	cmd.AddCommand(newPasswordDisableCommand(rootOpts))
	cmd.AddCommand(newPasswordVerifyCommand(rootOpts))
	cmd.AddCommand(newPasswordStatusCommand(rootOpts))

	return cmd
}

func newPasswordSetCommand(rootOpts *RootOptions) *cobra.Command {
	var current, next, confirm string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set a new password",
		Long: `Set a new password and turn protection on.

The password needs at least 8 characters with a letter, a digit and a
special character. --current is required while protection is on.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				if next != confirm {
					return fault.Validation("cli.password_set", "两次输入的新密码不一致！")
				}
				if err := a.auth.SetPassword(ctx, current, next); err != nil {
					return err
				}
				return a.out.Result("密码修改成功！", map[string]bool{"enabled": true})
			})
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	cmd.Flags().StringVar(&confirm, "confirm", "", "new password again")
	_ = cmd.MarkFlagRequired("new")
	_ = cmd.MarkFlagRequired("confirm")

	return cmd
}

func newPasswordDisableCommand(rootOpts *RootOptions) *cobra.Command {
	var current string

	cmd := &cobra.Command{
		Use:           "disable",
		Short:         "Turn password protection off",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				ok, err := a.auth.Verify(ctx, current)
				if err != nil {
					return err
				}
				if !ok {
					return fault.Validation("cli.password_disable", "当前密码错误！")
				}
				if err := a.auth.Disable(ctx); err != nil {
					return err
				}
				return a.out.Result("已关闭密码保护", map[string]bool{"enabled": false})
			})
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "current password")

	return cmd
}

func newPasswordVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:           "verify",
		Short:         "Check a password",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				ok, err := a.auth.Verify(ctx, password)
				if err != nil {
					return err
				}
				if !ok {
					return fault.Validation("cli.password_verify", "密码错误！")
				}
				return a.out.Result("密码正确", map[string]bool{"valid": true})
			})
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password to check")

	return cmd
}

func newPasswordStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show whether protection is on",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				st, err := a.auth.Status(ctx)
				if err != nil {
					return err
				}
				var lines []string
				if st.Enabled {
					lines = append(lines, "密码保护：已开启")
				} else {
					lines = append(lines, "密码保护：已关闭")
				}
				if st.Default {
					lines = append(lines, "当前使用默认密码，请尽快修改！")
				}
				if st.Legacy {
					lines = append(lines, "密码以旧格式保存，修改密码后将升级")
				}
				return a.out.Result(strings.Join(lines, "\n"), map[string]bool{
					"enabled": st.Enabled,
					"default": st.Default,
					"legacy":  st.Legacy,
				})
			})
		},
	}
}
