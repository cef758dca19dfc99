package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"juzgado/internal/engine"
	"juzgado/internal/lifecycle"
)

func queueCmd() *cobra.Command {
	c := &cobra.Command{Use: "queue", Aliases: []string{"turnos"}, Short: "The turno queue of cases awaiting a ruling"}
	c.AddCommand(queueListCmd())
	c.AddCommand(queueRecomputeCmd())
	return c
}

func queueListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the queue in turno order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				items, err := e.Repo.ListQueue(ctx, nil, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(items))
				}
				tw := newTable(table.Row{"Turno", "Radicado", "Desde", "Demandante", "Demandado", "Responsable"})
				for _, q := range items {
					tw.AppendRow(table.Row{q.Turno, q.Radicado, q.OrderingDate, q.Demandante, q.Demandado, orDash(q.Responsable)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows (0 for all)")
	return cmd
}

func queueRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Renumber the whole queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				res, err := e.RecomputeQueue(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("queued %d, renumbered %d, released %d\n", res.Queued, res.Changed, res.Excluded)
				return nil
			})
		},
	}
}

func statesCmd() *cobra.Command {
	c := &cobra.Command{Use: "states", Short: "Lifecycle state maintenance"}
	c.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Re-derive every case state for today and rebuild the queue",
		Long:  "Resolutions age out of AR after the configured window; run this daily.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				res, err := e.ReclassifyAll(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("checked %d cases, %d changed state; queue has %d\n", res.Checked, res.Changed, res.Queue.Queued)
				return nil
			})
		},
	})
	return c
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Case counts per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				st, err := e.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := newTable(table.Row{"Estado", "Descripción", "Casos"})
				for _, s := range lifecycle.States {
					tw.AppendRow(table.Row{s, s.Label(), st.ByState[s]})
				}
				tw.AppendFooter(table.Row{"", "Total", st.Total})
				tw.Render()
				fmt.Printf("con turno: %d\n", st.Queued)
				return nil
			})
		},
	}
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert cases and their history from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			rows, err := engine.ParseImportFile(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, log zerolog.Logger) error {
				sum, err := e.ImportRows(ctx, rows, actorID())
				if err != nil {
					return err
				}
				log.Info().Int("rows", sum.Rows).Int("failed", sum.Failed).Str("file", file).Msg("import finished")
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				tw := newTable(table.Row{"Fila", "Radicado", "Resultado", "Estado", "Turno", "Omitidos"})
				for _, r := range sum.Results {
					outcome := "actualizado"
					switch {
					case r.Error != "":
						outcome = "error: " + r.Error
					case r.Created:
						outcome = "creado"
					}
					tw.AppendRow(table.Row{r.Row, r.Radicado, outcome, r.Estado, turnoCell(r.Turno), r.Skipped})
				}
				tw.Render()
				fmt.Printf("%d rows: %d created, %d updated, %d failed\n", sum.Rows, sum.Created, sum.Updated, sum.Failed)
				if sum.Failed > 0 {
					return fmt.Errorf("%d rows failed", sum.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "import file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
