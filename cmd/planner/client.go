package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shopplanner/internal/board"
	"shopplanner/internal/model"
	"shopplanner/internal/planner"
	"shopplanner/internal/store"
)

// openDay builds a client planner and loads the board for date (YYYY-MM-DD,
// organization time; empty means today).
func openDay(ctx context.Context, load configLoader, logger zerolog.Logger, date, bay string) (*planner.Planner, time.Time, error) {
	cfg, err := load()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load config: %w", err)
	}
	toast := store.NotifierFunc(func(level store.Level, message string) {
		logger.Info().Str("level", string(level)).Msg(message)
	})
	p, err := planner.New(cfg, logger, planner.WithNotifier(toast))
	if err != nil {
		return nil, time.Time{}, err
	}

	day := p.Grid.DayStart(time.Now())
	if date != "" {
		if day, err = p.Grid.ParseDate(date); err != nil {
			p.Close()
			return nil, time.Time{}, fmt.Errorf("invalid --date; expected YYYY-MM-DD")
		}
	}
	if err := p.Board.Load(ctx, day, model.Ref(bay)); err != nil {
		p.Close()
		return nil, time.Time{}, err
	}
	return p, day, nil
}

func newAgendaCommand(load configLoader, logger *zerolog.Logger) *cobra.Command {
	var date, bay string
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Print a day of the board, lane by lane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, _, err := openDay(cmd.Context(), load, *logger, date, bay)
			if err != nil {
				return err
			}
			defer p.Close()
			return planner.WriteAgenda(cmd.OutOrStdout(), p.Grid, p.Board.Layout())
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to show (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&bay, "bay", "", "only appointments in this bay")
	return cmd
}

func newMoveCommand(load configLoader, logger *zerolog.Logger) *cobra.Command {
	var date, at, tech string
	cmd := &cobra.Command{
		Use:   "move <appointment-id>",
		Short: "Move an appointment to a new start time and technician",
		Example: `
planner move 3f2a... --date 2026-10-20 --at 13:30 --tech tech-ieva
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, day, err := openDay(cmd.Context(), load, *logger, date, "")
			if err != nil {
				return err
			}
			defer p.Close()

			clock, err := time.Parse("15:04", at)
			if err != nil {
				return fmt.Errorf("invalid --at; expected HH:MM")
			}
			start := p.Grid.At(day, clock.Hour()*60+clock.Minute())

			current, err := p.Board.OpenEdit(args[0])
			if err != nil {
				return err
			}
			lane := current.TechnicianID
			if cmd.Flags().Changed("tech") {
				lane = model.Ref(tech)
			}

			out, err := p.Board.MoveTo(cmd.Context(), args[0], start, lane)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			switch out.Kind {
			case board.OutcomeUnavailable:
				if out.Suggestion == nil {
					fmt.Fprintln(w, "slot unavailable, no open slot later that day")
					return nil
				}
				fmt.Fprintf(w, "slot unavailable, next open slot %s\n", p.Grid.ToOrgLocal(out.Suggestion.StartsAt).Format("15:04"))
				return nil
			case board.OutcomeUnchanged:
				fmt.Fprintln(w, "unchanged")
				return nil
			}
			return planner.WriteAgenda(w, p.Grid, p.Board.Layout())
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day the appointment is on (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&at, "at", "", "new start time (HH:MM)")
	cmd.Flags().StringVar(&tech, "tech", "", "technician lane; empty moves to unassigned")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}
