package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"juzgado/internal/domain"
	"juzgado/internal/engine"
	"juzgado/internal/lifecycle"
	"juzgado/internal/repo"
)

func caseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "case",
		Aliases: []string{"proceso"},
		Short:   "Manage cases",
		Long:    "A case is addressed by its id or by its radicado (separators allowed).",
	}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseUpdateCmd())
	c.AddCommand(caseDeleteCmd())
	c.AddCommand(caseDescribeCmd())
	c.AddCommand(caseReclassifyCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var opts engine.CaseCreateOptions
	var fechaIngreso, intakeFecha, intakeSolicitud string
	cmd := &cobra.Command{
		Use:   "create <radicado>",
		Short: "Register a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Radicado = args[0]
			opts.ActorID = actorID()
			var err error
			if opts.FechaIngreso, err = parseDateFlag("fecha-ingreso", fechaIngreso); err != nil {
				return err
			}
			if cmd.Flags().Changed("intake") {
				fecha, err := parseDateFlag("intake", intakeFecha)
				if err != nil {
					return err
				}
				opts.Intake = &engine.IntakeInput{Fecha: fecha, Solicitud: intakeSolicitud}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, t, err := e.CreateCase(ctx, opts)
				if err != nil {
					return err
				}
				return printMutation(c, t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.RadicadoCorto, "corto", "", "short radicado (derived when empty)")
	cmd.Flags().StringVar(&opts.Demandante, "demandante", "", "plaintiff")
	cmd.Flags().StringVar(&opts.Demandado, "demandado", "", "defendant")
	cmd.Flags().StringVar(&opts.JuzgadoOrigen, "origen", "", "court of origin")
	cmd.Flags().StringVar(&opts.TipoSolicitud, "tipo", "", "request type")
	cmd.Flags().StringVar(&opts.Responsable, "responsable", "", "assigned clerk")
	cmd.Flags().StringVar(&fechaIngreso, "fecha-ingreso", "", "filing date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&intakeFecha, "intake", "", "record a first intake on this date")
	cmd.Flags().StringVar(&intakeSolicitud, "solicitud", "", "first intake request text")
	return cmd
}

func caseListCmd() *cobra.Command {
	var estado, responsable, search string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.CaseFilters{Responsable: responsable, Search: search, Limit: limit}
			if estado != "" {
				st, err := lifecycle.ParseState(estado)
				if err != nil {
					return err
				}
				f.Estado = st
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				items, err := e.Repo.ListCases(ctx, nil, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(items))
				}
				tw := newTable(table.Row{"Radicado", "Corto", "Estado", "Turno", "Demandante", "Responsable", "ID"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.Radicado, c.RadicadoCorto, c.Estado, turnoCell(c.Turno), c.Demandante, orDash(c.Responsable), c.ID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&estado, "estado", "", "filter by state (AP, AR, IR, P)")
	cmd.Flags().StringVar(&responsable, "responsable", "", "filter by clerk")
	cmd.Flags().StringVarP(&search, "search", "q", "", "search radicado and parties")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows (0 for all)")
	return cmd
}

func caseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|radicado>",
		Short: "Show a case with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				intakes, err := e.Repo.ListIntakes(ctx, nil, c.ID)
				if err != nil {
					return err
				}
				statuses, err := e.Repo.ListStatuses(ctx, nil, c.ID)
				if err != nil {
					return err
				}
				actions, err := e.Repo.ListActions(ctx, nil, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"case": c, "ingresos": nonNil(intakes), "estados": nonNil(statuses), "actuaciones": nonNil(actions),
					})
				}
				printCase(c)
				if len(intakes) > 0 {
					fmt.Println("\nIngresos:")
					tw := newTable(table.Row{"Fecha", "Solicitud", "Ubicación", "ID"})
					for _, in := range intakes {
						tw.AppendRow(table.Row{in.Fecha, in.Solicitud, orDash(in.Ubicacion), in.ID})
					}
					tw.Render()
				}
				if len(statuses) > 0 {
					fmt.Println("\nEstados:")
					tw := newTable(table.Row{"Fecha", "Clase", "Auto", "ID"})
					for _, s := range statuses {
						tw.AppendRow(table.Row{s.Fecha, s.Clase, s.Auto, s.ID})
					}
					tw.Render()
				}
				if len(actions) > 0 {
					fmt.Println("\nActuaciones:")
					printActions(actions)
				}
				return nil
			})
		},
	}
}

func caseUpdateCmd() *cobra.Command {
	var corto, demandante, demandado, origen, tipo, responsable, fechaIngreso, estado string
	cmd := &cobra.Command{
		Use:   "update <id|radicado>",
		Short: "Edit case fields, or force a state with --estado",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := repo.CaseFields{
				RadicadoCorto: optionalString(cmd, "corto", corto),
				Demandante:    optionalString(cmd, "demandante", demandante),
				Demandado:     optionalString(cmd, "demandado", demandado),
				JuzgadoOrigen: optionalString(cmd, "origen", origen),
				TipoSolicitud: optionalString(cmd, "tipo", tipo),
				Responsable:   optionalString(cmd, "responsable", responsable),
			}
			if cmd.Flags().Changed("fecha-ingreso") {
				d, err := parseDateFlag("fecha-ingreso", fechaIngreso)
				if err != nil {
					return err
				}
				fields.FechaIngreso = &d
			}
			var forced *lifecycle.State
			if cmd.Flags().Changed("estado") {
				st, err := lifecycle.ParseState(estado)
				if err != nil {
					return err
				}
				forced = &st
			}
			if fields.Empty() && forced == nil {
				return errors.New("nothing to update")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				updated, t, err := e.UpdateCase(ctx, engine.CaseUpdateOptions{ID: c.ID, Fields: fields, Estado: forced, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printMutation(updated, t)
			})
		},
	}
	cmd.Flags().StringVar(&corto, "corto", "", "short radicado")
	cmd.Flags().StringVar(&demandante, "demandante", "", "plaintiff")
	cmd.Flags().StringVar(&demandado, "demandado", "", "defendant")
	cmd.Flags().StringVar(&origen, "origen", "", "court of origin")
	cmd.Flags().StringVar(&tipo, "tipo", "", "request type")
	cmd.Flags().StringVar(&responsable, "responsable", "", "assigned clerk (empty clears)")
	cmd.Flags().StringVar(&fechaIngreso, "fecha-ingreso", "", "filing date (empty clears)")
	cmd.Flags().StringVar(&estado, "estado", "", "force a state (AP, AR, IR, P)")
	return cmd
}

func caseDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|radicado>",
		Short: "Delete a case and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				if err := e.DeleteCase(ctx, c.ID, actorID()); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": c.ID})
				}
				fmt.Printf("deleted %s\n", c.Radicado)
				return nil
			})
		},
	}
}

func caseDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <id|radicado>",
		Short: "Explain why a case has its state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				l, err := e.Describe(ctx, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(l)
				}
				printCase(l.Case)
				fmt.Printf("\nHoy (%s): %s - %s\n", l.Today, l.Derived.Label, l.Derived.Detail)
				fmt.Printf("Ingresos: %d (último %s)  Estados: %d (último %s)  Actuaciones: %d\n",
					l.Activity.Intakes, l.Activity.LastIntake, l.Activity.Statuses, l.Activity.LastStatus, l.Actions.Actions)
				fmt.Printf("Fecha de orden: %s\n", l.OrderingKey)
				if l.Derived.State != l.Case.Estado {
					fmt.Printf("El estado guardado (%s) difiere del derivado; 'juzgado case reclassify' lo corrige.\n", l.Case.Estado)
				}
				return nil
			})
		},
	}
}

func caseReclassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reclassify <id|radicado>",
		Short: "Re-derive one case state from its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				t, err := e.Reclassify(ctx, c.ID, actorID())
				if err != nil {
					return err
				}
				return printTransition(t)
			})
		},
	}
}

func intakeCmd() *cobra.Command {
	c := &cobra.Command{Use: "intake", Aliases: []string{"ingreso"}, Short: "Record intakes (case enters the office for a ruling)"}
	c.AddCommand(intakeAddCmd())
	c.AddCommand(intakeListCmd())
	c.AddCommand(intakeUpdateCmd())
	c.AddCommand(intakeDeleteCmd())
	return c
}

func intakeAddCmd() *cobra.Command {
	var fecha, solicitud, observaciones, ubicacion string
	cmd := &cobra.Command{
		Use:   "add <case>",
		Short: "Add an intake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDateFlag("fecha", fecha)
			if err != nil {
				return err
			}
			in := engine.IntakeInput{Fecha: d, Solicitud: solicitud, Observaciones: observaciones, Ubicacion: optionalString(cmd, "ubicacion", ubicacion)}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				rec, t, err := e.AddIntake(ctx, c.ID, in, actorID())
				if err != nil {
					return err
				}
				return printRecord(rec, t)
			})
		},
	}
	cmd.Flags().StringVar(&fecha, "fecha", "", "intake date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&solicitud, "solicitud", "", "request")
	cmd.Flags().StringVar(&observaciones, "observaciones", "", "notes")
	cmd.Flags().StringVar(&ubicacion, "ubicacion", "", "physical location")
	_ = cmd.MarkFlagRequired("fecha")
	return cmd
}

func intakeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <case>",
		Short: "List intakes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				items, err := e.Repo.ListIntakes(ctx, nil, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(items))
				}
				tw := newTable(table.Row{"Fecha", "Solicitud", "Observaciones", "Ubicación", "ID"})
				for _, in := range items {
					tw.AppendRow(table.Row{in.Fecha, in.Solicitud, in.Observaciones, orDash(in.Ubicacion), in.ID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func intakeUpdateCmd() *cobra.Command {
	var fecha, solicitud, observaciones, ubicacion string
	cmd := &cobra.Command{
		Use:   "update <case> <intake-id>",
		Short: "Correct an intake",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.IntakePatch{
				Solicitud:     optionalString(cmd, "solicitud", solicitud),
				Observaciones: optionalString(cmd, "observaciones", observaciones),
				Ubicacion:     optionalString(cmd, "ubicacion", ubicacion),
			}
			if cmd.Flags().Changed("fecha") {
				d, err := parseDateFlag("fecha", fecha)
				if err != nil {
					return err
				}
				patch.Fecha = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				rec, t, err := e.UpdateIntake(ctx, c.ID, args[1], patch, actorID())
				if err != nil {
					return err
				}
				return printRecord(rec, t)
			})
		},
	}
	cmd.Flags().StringVar(&fecha, "fecha", "", "intake date")
	cmd.Flags().StringVar(&solicitud, "solicitud", "", "request")
	cmd.Flags().StringVar(&observaciones, "observaciones", "", "notes")
	cmd.Flags().StringVar(&ubicacion, "ubicacion", "", "physical location")
	return cmd
}

func intakeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <case> <intake-id>",
		Short: "Delete an intake",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				t, err := e.DeleteIntake(ctx, c.ID, args[1], actorID())
				if err != nil {
					return err
				}
				return printTransition(t)
			})
		},
	}
}

func statusCmd() *cobra.Command {
	c := &cobra.Command{Use: "status", Aliases: []string{"estado"}, Short: "Record status events (rulings)"}
	c.AddCommand(statusAddCmd())
	c.AddCommand(statusListCmd())
	c.AddCommand(statusUpdateCmd())
	c.AddCommand(statusDeleteCmd())
	return c
}

func statusAddCmd() *cobra.Command {
	var fecha, clase, auto, observaciones string
	cmd := &cobra.Command{
		Use:   "add <case>",
		Short: "Add a status event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDateFlag("fecha", fecha)
			if err != nil {
				return err
			}
			in := engine.StatusInput{Fecha: d, Clase: clase, Auto: auto, Observaciones: observaciones}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				rec, t, err := e.AddStatus(ctx, c.ID, in, actorID())
				if err != nil {
					return err
				}
				return printRecord(rec, t)
			})
		},
	}
	cmd.Flags().StringVar(&fecha, "fecha", "", "status date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clase, "clase", "", "kind of ruling")
	cmd.Flags().StringVar(&auto, "auto", "", "order reference")
	cmd.Flags().StringVar(&observaciones, "observaciones", "", "notes")
	_ = cmd.MarkFlagRequired("fecha")
	return cmd
}

func statusListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <case>",
		Short: "List status events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				items, err := e.Repo.ListStatuses(ctx, nil, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(items))
				}
				tw := newTable(table.Row{"Fecha", "Clase", "Auto", "Observaciones", "ID"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.Fecha, s.Clase, s.Auto, s.Observaciones, s.ID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func statusUpdateCmd() *cobra.Command {
	var fecha, clase, auto, observaciones string
	cmd := &cobra.Command{
		Use:   "update <case> <status-id>",
		Short: "Correct a status event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.StatusPatch{
				Clase:         optionalString(cmd, "clase", clase),
				Auto:          optionalString(cmd, "auto", auto),
				Observaciones: optionalString(cmd, "observaciones", observaciones),
			}
			if cmd.Flags().Changed("fecha") {
				d, err := parseDateFlag("fecha", fecha)
				if err != nil {
					return err
				}
				patch.Fecha = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				rec, t, err := e.UpdateStatus(ctx, c.ID, args[1], patch, actorID())
				if err != nil {
					return err
				}
				return printRecord(rec, t)
			})
		},
	}
	cmd.Flags().StringVar(&fecha, "fecha", "", "status date")
	cmd.Flags().StringVar(&clase, "clase", "", "kind of ruling")
	cmd.Flags().StringVar(&auto, "auto", "", "order reference")
	cmd.Flags().StringVar(&observaciones, "observaciones", "", "notes")
	return cmd
}

func statusDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <case> <status-id>",
		Short: "Delete a status event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				t, err := e.DeleteStatus(ctx, c.ID, args[1], actorID())
				if err != nil {
					return err
				}
				return printTransition(t)
			})
		},
	}
}

func actionCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "action",
		Aliases: []string{"actuacion"},
		Short:   "Procedural actions (never change the state)",
	}
	c.AddCommand(actionAddCmd())
	c.AddCommand(actionListCmd())
	c.AddCommand(actionDeleteCmd())
	return c
}

func actionAddCmd() *cobra.Command {
	var in engine.ActionInput
	var fecha string
	cmd := &cobra.Command{
		Use:   "add <case> <descripcion>",
		Short: "Log a procedural action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Descripcion = args[1]
			var err error
			if in.Fecha, err = parseDateFlag("fecha", fecha); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				a, err := e.AddAction(ctx, c.ID, in, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				printActions([]domain.Action{a})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fecha, "fecha", "", "action date")
	cmd.Flags().IntVar(&in.Secuencia, "secuencia", 0, "sequence number (next when 0)")
	cmd.Flags().StringVar(&in.Origen, "origen", "", "source")
	return cmd
}

func actionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <case>",
		Short: "List procedural actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				items, err := e.Repo.ListActions(ctx, nil, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(items))
				}
				printActions(items)
				return nil
			})
		},
	}
}

func actionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <case> <action-id>",
		Short: "Delete a procedural action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ zerolog.Logger) error {
				c, err := resolveCase(ctx, e, args[0])
				if err != nil {
					return err
				}
				return e.DeleteAction(ctx, c.ID, args[1], actorID())
			})
		},
	}
}

// resolveCase accepts a case id or a radicado in any separator style.
func resolveCase(ctx context.Context, e engine.Engine, ref string) (domain.Case, error) {
	c, err := e.Repo.GetCase(ctx, nil, ref)
	if err == nil || !errors.Is(err, repo.ErrNotFound) {
		return c, err
	}
	rad, nerr := engine.NormalizeRadicado(ref)
	if nerr != nil {
		return domain.Case{}, fmt.Errorf("case %s: %w", ref, repo.ErrNotFound)
	}
	return e.Repo.GetCaseByRadicado(ctx, nil, rad)
}

// parseDateFlag rejects text that does not normalize to a day; empty means absent.
func parseDateFlag(name, value string) (lifecycle.NullDate, error) {
	if value == "" {
		return lifecycle.NullDate{}, nil
	}
	d := lifecycle.NullDateOf(value)
	if !d.Valid {
		return d, fmt.Errorf("invalid --%s %q (use YYYY-MM-DD)", name, value)
	}
	return d, nil
}

func printCase(c domain.Case) {
	tw := newTable(table.Row{"Campo", "Valor"})
	tw.AppendRows([]table.Row{
		{"ID", c.ID},
		{"Radicado", c.Radicado},
		{"Corto", c.RadicadoCorto},
		{"Estado", fmt.Sprintf("%s (%s)", c.Estado, c.Estado.Label())},
		{"Turno", turnoCell(c.Turno)},
		{"Demandante", c.Demandante},
		{"Demandado", c.Demandado},
		{"Juzgado origen", c.JuzgadoOrigen},
		{"Tipo solicitud", c.TipoSolicitud},
		{"Fecha ingreso", c.FechaIngreso},
		{"Responsable", orDash(c.Responsable)},
	})
	tw.Render()
}

func printTransition(t engine.Transition) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	if t.Changed() {
		fmt.Fprintf(os.Stdout, "estado %s -> %s, turno %s (%s)\n", t.From, t.To, turnoCell(t.Turno), t.Queue)
	} else {
		fmt.Fprintf(os.Stdout, "estado %s, turno %s (%s)\n", t.To, turnoCell(t.Turno), t.Queue)
	}
	return nil
}

func printMutation(c domain.Case, t engine.Transition) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"case": c, "transition": t})
	}
	printCase(c)
	return printTransition(t)
}

func printRecord(rec any, t engine.Transition) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"record": rec, "transition": t})
	}
	return printTransition(t)
}

func printActions(items []domain.Action) {
	tw := newTable(table.Row{"#", "Fecha", "Descripción", "Origen", "ID"})
	for _, a := range items {
		tw.AppendRow(table.Row{a.Secuencia, a.Fecha, a.Descripcion, a.Origen, a.ID})
	}
	tw.Render()
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
