package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/launchpad-portal/launchpad/internal/users"
)

func userCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User commands",
	}
	cmd.AddCommand(
		userCreateCommand(opts),
		userResetPasswordCommand(opts),
	)
	return cmd
}

func userCreateCommand(opts Options) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create user",
		Long: "Creates a user with the given name. The password is read from stdin or the\n" +
			"interactive prompt; the user must change it at first login.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passwd, err := readPassword(opts.Stdin, opts.Stderr, "password: ")
			if err != nil {
				return err
			}
			return withBackend(cmd, opts, func(b Backend, logger *slog.Logger) error {
				user, err := b.CreateUser(cmd.Context(), users.CreateInput{
					Username: args[0],
					Password: passwd,
					IsAdmin:  admin,
				})
				if err != nil {
					return err
				}
				logger.InfoContext(cmd.Context(), "created user",
					slog.Int64("id", user.ID), slog.String("name", user.Username), slog.Bool("is_admin", user.IsAdmin))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant administrator access")
	return cmd
}

func userResetPasswordCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password NAME",
		Short: "Reset a user's password",
		Long: "Replaces the password of the named user, forces a change at next login and\n" +
			"signs the user out of every session.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passwd, err := readPassword(opts.Stdin, opts.Stderr, "new password: ")
			if err != nil {
				return err
			}
			return withBackend(cmd, opts, func(b Backend, logger *slog.Logger) error {
				user, err := b.ResetPassword(cmd.Context(), args[0], passwd)
				if err != nil {
					return err
				}
				logger.InfoContext(cmd.Context(), "password reset", slog.Int64("id", user.ID), slog.String("name", user.Username))
				return nil
			})
		},
	}
}
