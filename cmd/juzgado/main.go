package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"juzgado/internal/app"
	"juzgado/internal/config"
	"juzgado/internal/db"
	"juzgado/internal/engine"
	"juzgado/internal/engine/auth"
	"juzgado/internal/logging"
	"juzgado/internal/repo"
	"juzgado/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "juzgado",
	Short: "Juzgado case lifecycle and turno queue",
	Long: `Juzgado keeps the docket of a court office.

Every case ("proceso") is in one of four states derived from its history:
  AP  Activo Pendiente   an intake is waiting for a ruling; the case holds a turno
  AR  Activo Resuelto    resolved within the configured window
  IR  Inactivo Resuelto  resolved longer ago
  P   Pendiente          nothing recorded yet

Turnos are dense (1..N) and follow the oldest intake date first.
The audit log is available with 'juzgado log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if d, _ := db.ParseDialect(viper.GetString("driver")); d == db.Postgres {
			return nil
		}
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("JUZGADO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.String("driver", "sqlite", "database driver (sqlite or postgres)")
	pf.String("dsn", "", "database DSN (required for postgres)")
	pf.Bool("json", false, "output JSON")
	pf.String("actor-id", "local-user", "actor recorded in the audit log")
	pf.String("log-level", "warn", "log level")
	pf.Bool("log-json", false, "log as JSON")
	pf.String("log-file", "", "append logs to this file")
	for _, name := range []string{"workspace", "driver", "dsn", "json", "actor-id", "log-level", "log-json", "log-file"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(intakeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(statesCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath, adminUser string
	var tokenTTL time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serve the JSON API. Bearer tokens are signed with JUZGADO_JWT_SECRET.
When no account exists yet, JUZGADO_ADMIN_PASSWORD bootstraps the first admin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("JUZGADO_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, log zerolog.Logger) error {
				created, err := app.EnsureAdmin(ctx, e, adminUser, viper.GetString("admin-password"))
				if err != nil {
					return err
				}
				if created {
					log.Info().Str("username", adminUser).Msg("bootstrapped admin account")
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret, TokenTTL: tokenTTL, Log: log},
					Log:      log,
				})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, e.Repo, e.Config.Webhooks, log)
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving Juzgado API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().StringVar(&adminUser, "admin-user", "admin", "username for the bootstrap admin")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 12*time.Hour, "bearer token lifetime")
	cmd.Flags().String("jwt-secret", "", "HS256 secret (prefer JUZGADO_JWT_SECRET)")
	cmd.Flags().String("admin-password", "", "bootstrap admin password (prefer JUZGADO_ADMIN_PASSWORD)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	_ = viper.BindPFlag("admin-password", cmd.Flags().Lookup("admin-password"))
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect office config",
		Long:  "The office config (stored in the DB) holds the office time zone, the resolution window in days, roles and webhooks. Seed it from juzgado.yml or import a file.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configDefaultCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				return printYAMLOrJSON(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config, or a file with --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if filePath != "" {
				_, err = config.FromFile(filePath)
			} else {
				err = withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
					return e.Config.Validate()
				})
			}
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "YAML file to validate instead")
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import office config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				if err := e.StoreConfig(ctx, cfg, actorID()); err != nil {
					return err
				}
				return printYAMLOrJSON(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configDefaultCmd() *cobra.Command {
	var office string
	cmd := &cobra.Command{
		Use:   "default",
		Short: "Print a default juzgado.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault(office))
			return nil
		},
	}
	cmd.Flags().StringVar(&office, "office", app.DefaultOfficeName, "office name")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Audit log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				events, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
					Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "When", "Type", "Entity", "Actor", "Payload"})
				for _, ev := range events {
					entity := ev.EntityKind
					if ev.EntityID != "" {
						entity += ":" + ev.EntityID
					}
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, entity, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func newLogger() (zerolog.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level: viper.GetString("log-level"),
		JSON:  viper.GetBool("log-json"),
		Path:  viper.GetString("log-file"),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, zerolog.Logger) error) error {
	log, closer, err := newLogger()
	if err != nil {
		return err
	}
	defer closer.Close()
	e, conn, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Driver:    viper.GetString("driver"),
		DSN:       viper.GetString("dsn"),
	}, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e, log)
}

// actorID is the identity local commands write to the audit log. Local
// commands run with every permission.
func actorID() string {
	return auth.System(viper.GetString("actor-id")).UserID
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAMLOrJSON(cfg *config.Config) error {
	if viper.GetBool("json") {
		return printJSON(cfg)
	}
	out, err := config.ToYAML(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func turnoCell(t *int) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *t)
}
