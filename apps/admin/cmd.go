package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/reportcardpro/backend/core/report"
	"github.com/reportcardpro/backend/core/user"
	"github.com/reportcardpro/backend/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Run      // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sqlx.DB
	usrSvc    *user.Service
	reportSvc *report.Service
	validate  *validator.Validate
	out       io.Writer
}

// run executes the command named by args[1:]; args[0] is the program name.
func (cli *commandLine) run(ctx context.Context, args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args[1:])
	return root.ExecuteContext(ctx)
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "ReportCardPro administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.AddCommand(cli.addUserCmd(), cli.resetPasswordCmd(), cli.migrateCmd(), cli.ingestCmd())
	return root
}

func (cli *commandLine) promptPassword(cmd *cobra.Command) (string, error) {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		_ = cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var nu user.NewUser
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a teacher account. The password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			nu.Password, nu.PasswordConfirm = pwd, pwd
			usr, err := cli.addUser(cmd.Context(), nu)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created user %s <%s>\n", usr.ID, usr.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&nu.Name, "name", "", "The teacher's full name")
	cmd.Flags().StringVar(&nu.Email, "email", "", "The account email")
	cmd.Flags().StringVar(&nu.School, "school", "", "The school printed on report cards")
	cmd.Flags().StringVar(&nu.Province, "province", "", "The province printed on report cards")
	for _, name := range []string{"name", "email", "school", "province"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser) (user.User, error) {
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return user.User{}, err
	}
	return cli.usrSvc.Create(ctx, nu)
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password. The password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			_, err = cli.usrSvc.SetPassword(cmd.Context(), email, pwd)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command: up, up-by-one, up-to, down, down-to, redo, reset, status, version",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return migrateFunc(cli.db, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) ingestCmd() *cobra.Command {
	var email, path string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a mark sheet into a user's report cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			usr, err := cli.usrSvc.GetByEmail(ctx, email)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			batch, err := cli.reportSvc.Ingest(ctx, report.Session{AccountID: usr.ID}, report.Upload{
				FileName: filepath.Base(path),
				Data:     data,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ingested batch %s: grade %s, class %s, %d students\n",
				batch.ID, batch.Grade, batch.ClassName, len(batch.Students))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "The account email")
	cmd.Flags().StringVar(&path, "file", "", "The CSV or XLSX mark sheet")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
