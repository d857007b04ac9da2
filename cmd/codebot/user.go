// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codebot/codebot/internal/access"
	"github.com/codebot/codebot/internal/auth"
	"github.com/codebot/codebot/internal/auth/postgres"
	"github.com/codebot/codebot/internal/config"
	"github.com/codebot/codebot/internal/store"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// openUserRepository is replaced in tests.
var openUserRepository = func(ctx context.Context, cfg *config.Config) (auth.UserRepository, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, oops.Code("CONFIG_INVALID").Errorf("database.url (or DATABASE_URL) is required")
	}
	pool, err := store.Connect(ctx, store.ConnectConfig{
		URL:            cfg.Database.URL,
		Attempts:       cfg.Database.ConnectRetries,
		InitialBackoff: cfg.Database.ConnectBackoff.Std(),
	})
	if err != nil {
		return nil, nil, oops.With("operation", "connect to database").Wrap(err)
	}
	return postgres.NewUserRepository(pool), pool.Close, nil
}

// NewUserCmd creates the user command for operator account management.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (overrides config and DATABASE_URL)")

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserDeactivateCmd())
	return cmd
}

type userCreateOptions struct {
	username      string
	email         string
	fullName      string
	role          string
	passwordStdin bool
}

func newUserCreateCmd() *cobra.Command {
	opts := &userCreateOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with any role",
		Long: `Create an active account. Unlike self-registration, the role can be set.
The password is prompted for unless --password-stdin is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserCreate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.username, "username", "", "username (3-50 letters, digits or underscores)")
	cmd.Flags().StringVar(&opts.email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.fullName, "full-name", "", "display name")
	cmd.Flags().StringVar(&opts.role, "role", string(access.RoleUser), "role (user, moderator or admin)")
	cmd.Flags().BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runUserCreate(cmd *cobra.Command, opts *userCreateOptions) error {
	role, ok := access.ParseRole(opts.role)
	if !ok {
		return oops.Code("AUTH_INVALID_ROLE").With("role", opts.role).Errorf("unknown role %q", opts.role)
	}

	password, err := obtainPassword(cmd, opts.passwordStdin)
	if err != nil {
		return err
	}

	in := auth.RegisterInput{
		Username: strings.TrimSpace(opts.username),
		Email:    strings.TrimSpace(opts.email),
		Password: password,
		FullName: opts.fullName,
	}
	if err := auth.ValidateRegistration(in); err != nil {
		return err
	}

	digest, err := auth.NewArgon2idHasher().Hash(password)
	if err != nil {
		return oops.With("operation", "hash password").Wrap(err)
	}
	user, err := auth.NewUser(in.Username, in.Email, digest, in.FullName, role)
	if err != nil {
		return err
	}

	return withUserRepository(cmd, func(ctx context.Context, users auth.UserRepository) error {
		if err := users.Create(ctx, user); err != nil {
			if errors.Is(err, auth.ErrConflict) {
				return auth.ConflictError("username or email already exists")
			}
			return oops.With("operation", "create user").Wrap(err)
		}
		cmd.Printf("Created %s %s (%s)\n", user.Role, user.Username, user.ID)
		return nil
	})
}

// obtainPassword reads the password from stdin or prompts twice on the
// terminal.
func obtainPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	first, err := promptPassword(cmd, "Password: ")
	if err != nil {
		return "", err
	}
	second, err := promptPassword(cmd, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", oops.Code("PASSWORD_MISMATCH").Errorf("passwords do not match")
	}
	return first, nil
}

func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	w := cmd.ErrOrStderr()
	if _, err := io.WriteString(w, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd())) //nolint:gosec // fd fits in int
	_, _ = io.WriteString(w, "\n")
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return string(pw), nil
}

func newUserDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate LOGIN",
		Short: "Deactivate the account with this username or email",
		Long: `Deactivate an account. It can no longer log in and its existing sessions
no longer resolve a current user. Accounts are never deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserRepository(cmd, func(ctx context.Context, users auth.UserRepository) error {
				user, err := users.GetByLogin(ctx, args[0])
				if errors.Is(err, auth.ErrNotFound) {
					return oops.Code("USER_NOT_FOUND").With("login", args[0]).Errorf("no user matches %q", args[0])
				}
				if err != nil {
					return oops.With("operation", "look up user").Wrap(err)
				}
				if !user.IsActive {
					cmd.Printf("%s is already inactive\n", user.Username)
					return nil
				}
				if err := users.SetActive(ctx, user.ID, false); err != nil {
					return oops.With("operation", "deactivate user").Wrap(err)
				}
				cmd.Printf("Deactivated %s\n", user.Username)
				return nil
			})
		},
	}
}

func withUserRepository(cmd *cobra.Command, fn func(context.Context, auth.UserRepository) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.With("operation", "load config").Wrap(err)
	}

	ctx := cmd.Context()
	users, closeRepo, err := openUserRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	return fn(ctx, users)
}
