package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"juzgado/internal/domain"
	"juzgado/internal/engine"
	"juzgado/internal/repo"
)

func userCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Office accounts and API keys"}
	c.AddCommand(userCreateCmd())
	c.AddCommand(userListCmd())
	c.AddCommand(apiKeyCmd())
	return c
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account",
		Long:  "The password comes from --password-stdin or JUZGADO_USER_PASSWORD.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Username = args[0]
			opts.ActorID = actorID()
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				opts.Password = strings.TrimRight(line, "\r\n")
			} else {
				opts.Password = os.Getenv("JUZGADO_USER_PASSWORD")
			}
			if opts.Password == "" {
				return errors.New("password required (--password-stdin or JUZGADO_USER_PASSWORD)")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				u, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				printUsers([]domain.User{u})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Role, "role", "auxiliar", "role from the office config")
	cmd.Flags().StringVar(&opts.DisplayName, "name", "", "display name")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				users, err := e.Repo.ListUsers(ctx, nil)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(users))
				}
				printUsers(users)
				return nil
			})
		},
	}
}

func printUsers(users []domain.User) {
	tw := newTable(table.Row{"Usuario", "Nombre", "Rol", "Creado", "ID"})
	for _, u := range users {
		tw.AppendRow(table.Row{u.Username, u.DisplayName, u.Role, u.CreatedAt, u.ID})
	}
	tw.Render()
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "API keys for integrations"}
	c.AddCommand(apiKeyCreateCmd())
	c.AddCommand(apiKeyListCmd())
	c.AddCommand(apiKeyRevokeCmd())
	return c
}

// lookupUser accepts a user id or a username.
func lookupUser(ctx context.Context, e engine.Engine, ref string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, nil, ref)
	if errors.Is(err, repo.ErrNotFound) {
		return e.Repo.GetUserByUsername(ctx, nil, strings.ToLower(ref))
	}
	return u, err
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create <user>",
		Short: "Issue a key; it is shown only once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				u, err := lookupUser(ctx, e, args[0])
				if err != nil {
					return err
				}
				key, raw, err := e.CreateAPIKey(ctx, u.ID, name, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "api_key": raw})
				}
				fmt.Printf("key %s for %s\n%s\n", key.ID, u.Username, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [user]",
		Short: "List keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				userID := ""
				if len(args) == 1 {
					u, err := lookupUser(ctx, e, args[0])
					if err != nil {
						return err
					}
					userID = u.ID
				}
				keys, err := e.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(keys))
				}
				tw := newTable(table.Row{"ID", "Usuario", "Nombre", "Creada"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.UserID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				return e.RevokeAPIKey(ctx, args[0], actorID())
			})
		},
	}
}
