package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prn-tf/cinelog/internal/app"
	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/service"
)

// PasswordEnv supplies the password when --password is not given.
const PasswordEnv = "CINELOG_PASSWORD"

// NewUserCommand creates the user command group.
func NewUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage journal accounts",
	}

	cmd.AddCommand(newUserRegisterCommand(opts))
	cmd.AddCommand(newUserLoginCommand(opts))
	cmd.AddCommand(newUserPasswdCommand(opts))
	cmd.AddCommand(newUserDeactivateCommand(opts))
	cmd.AddCommand(newUserListCommand(opts))

	return cmd
}

func newUserRegisterCommand(opts *RootOptions) *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				user := domain.NewUser(username, email, passwordOrEnv(password))
				if !a.Users().Register(ctx, user) {
					return NewExitError(ExitFailure, "registration rejected: invalid input or username/email already taken")
				}
				return opts.formatter(cmd).Print(user, func(w io.Writer) error {
					return renderUser(w, user)
				})
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "account name (3-50 characters)")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (default $"+PasswordEnv+")")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newUserLoginCommand(opts *RootOptions) *cobra.Command {
	var identifier, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials and record the login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				user, err := authenticate(ctx, a, identifier, password)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Print(user, func(w io.Writer) error {
					return renderUser(w, user)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&identifier, "user", "u", "", "username or email")
	cmd.Flags().StringVar(&password, "password", "", "password (default $"+PasswordEnv+")")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newUserPasswdCommand(opts *RootOptions) *cobra.Command {
	var username, oldPassword, newPassword string

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the password of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if !a.Users().UpdatePassword(ctx, username, passwordOrEnv(oldPassword), newPassword) {
					return NewExitError(ExitFailure, "password not changed")
				}
				return opts.formatter(cmd).Message("password changed for %s", username)
			})
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "", "username")
	cmd.Flags().StringVar(&oldPassword, "password", "", "current password (default $"+PasswordEnv+")")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "new password")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("new-password")

	return cmd
}

func newUserDeactivateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate USERNAME",
		Short: "Block an account from logging in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if !a.Users().Deactivate(ctx, args[0]) {
					return NewExitError(ExitFailure, "no such user: "+args[0])
				}
				return opts.formatter(cmd).Message("deactivated %s", args[0])
			})
		},
	}
}

func newUserListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				users := a.Users().ListAll(ctx)
				return opts.formatter(cmd).Print(users, func(w io.Writer) error {
					return renderUsers(w, users)
				})
			})
		},
	}
}

// authenticate logs in by email when identifier contains "@", by username otherwise.
func authenticate(ctx context.Context, a *app.App, identifier, password string) (*domain.User, error) {
	by := service.ByUsername
	if strings.Contains(identifier, "@") {
		by = service.ByEmail
	}
	user := a.Users().Login(ctx, identifier, passwordOrEnv(password), by)
	if user == nil {
		return nil, NewExitError(ExitFailure, "login failed")
	}
	return user, nil
}

func passwordOrEnv(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(PasswordEnv)
}
