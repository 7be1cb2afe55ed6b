/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/field-notes/apiserver/internal/db"
	"github.com/field-notes/apiserver/internal/logger"
	"github.com/field-notes/apiserver/internal/services"
	"github.com/field-notes/apiserver/internal/store"
	"github.com/spf13/cobra"
)

const seedUsersEnv = "FIELD_NOTES_SEED_USERS"

var (
	seedUsers       []string
	seedDatabaseURL string
	newPassword     string
)

// seedCmd creates the users table if needed and upserts accounts.
var seedCmd = &cobra.Command{
	Use:   "seed-users",
	Short: "Create or update login accounts",
	Long: `Creates the users table if it does not exist and upserts each account
with a bcrypt hash of its password. Accounts come from --user flags or from
FIELD_NOTES_SEED_USERS (comma separated), each as name:role:password.

	fieldnotes seed-users --user alice:supervisor:secret --user bob:admin:hunter2
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New("seed")
		ctx := cmd.Context()

		specs := seedUsers
		if len(specs) == 0 {
			specs = splitSeedEnv(os.Getenv(seedUsersEnv))
		}
		if len(specs) == 0 {
			return errors.New("no users given: pass --user or set " + seedUsersEnv)
		}

		users := make([]services.SeedUser, 0, len(specs))
		for _, spec := range specs {
			u, err := services.ParseSeedUser(spec)
			if err != nil {
				return err
			}
			users = append(users, u)
		}

		dsn := seedDatabaseURL
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		conn, err := db.Open(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close()

		seeded, err := services.NewUserService(store.NewUserRepository(conn)).Seed(ctx, users)
		if err != nil {
			return err
		}
		for _, u := range seeded {
			log.Info().Str("username", u.Name).Str("role", u.Role).Msg("user seeded")
		}
		return nil
	},
}

// setPasswordCmd rotates the password of one existing account.
var setPasswordCmd = &cobra.Command{
	Use:   "set-password NAME",
	Short: "Replace the password of an existing account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		password := newPassword
		if password == "" {
			password = os.Getenv("FIELD_NOTES_NEW_PASSWORD")
		}

		dsn := seedDatabaseURL
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		conn, err := db.Open(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := services.NewUserService(store.NewUserRepository(conn)).RotatePassword(ctx, args[0], password); err != nil {
			return fmt.Errorf("set password for %s: %w", args[0], err)
		}
		logger.New("seed").Info().Str("username", args[0]).Msg("password updated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(setPasswordCmd)
	setPasswordCmd.Flags().StringVar(&newPassword, "password", "", "new password (defaults to FIELD_NOTES_NEW_PASSWORD)")
	setPasswordCmd.Flags().StringVar(&seedDatabaseURL, "database-url", "", "credential store DSN (defaults to DATABASE_URL)")
	seedCmd.Flags().StringArrayVar(&seedUsers, "user", nil, "account as name:role:password (repeatable)")
	seedCmd.Flags().StringVar(&seedDatabaseURL, "database-url", "", "credential store DSN (defaults to DATABASE_URL)")
}

func splitSeedEnv(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
