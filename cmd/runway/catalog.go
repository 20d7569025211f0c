package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/failures"
	"github.com/swayz032/aspire-runway/pkg/runway"
)

func newCapabilitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps"},
		Short:   "Inspect the capability registry",
	}
	cmd.AddCommand(capabilitiesListCmd(), capabilitiesShowCmd(), capabilitiesSearchCmd())
	return cmd
}

func capabilitiesListCmd() *cobra.Command {
	var desk string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List declared capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries := capabilities.Default().Entries()
			if desk != "" {
				filtered := entries[:0]
				for _, e := range entries {
					if e.Desk == desk {
						filtered = append(filtered, e)
					}
				}
				entries = filtered
			}
			return render(cmd, entries, func(tw table.Writer) {
				tw.AppendHeader(table.Row{"ID", "Desk", "Label", "Verbs", "Default"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.ID, e.Desk, e.Label, len(e.Verbs), e.DefaultVerb})
				}
			})
		},
	}
	cmd.Flags().StringVar(&desk, "desk", "", "only show entries of this desk")
	return cmd
}

func capabilitiesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the verbs of one capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ok := capabilities.Default().Lookup(args[0])
			if !ok {
				return fmt.Errorf("capability %q is not declared", args[0])
			}
			return render(cmd, e, func(tw table.Writer) {
				tw.SetTitle(fmt.Sprintf("%s (%s)", e.Label, e.Desk))
				tw.AppendHeader(table.Row{"Verb", "Label", "Tier", "Lens"})
				for _, v := range e.Verbs {
					label := v.Label
					if v.ID == e.DefaultVerb {
						label += " *"
					}
					tw.AppendRow(table.Row{v.ID, label, v.Tier, lensKeys(v.Lens)})
				}
			})
		},
	}
}

func capabilitiesSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find verbs by entry or verb label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matches := capabilities.Default().Search(args[0])
			return render(cmd, matches, func(tw table.Writer) {
				tw.AppendHeader(table.Row{"Entry", "Verb", "Label", "Tier"})
				for _, m := range matches {
					tw.AppendRow(table.Row{m.Entry.ID, m.Verb.ID, m.Verb.Label, m.Verb.Tier})
				}
			})
		},
	}
}

func lensKeys(fields []capabilities.LensField) string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	return strings.Join(keys, ", ")
}

func newFailuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect the failure taxonomy",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every failure code",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				codes := failures.Default().All()
				return render(cmd, codes, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Code", "Severity", "Retryable", "User message"})
					for _, c := range codes {
						msg := c.UserMessage
						if c.Silent() {
							msg = "(silent)"
						}
						tw.AppendRow(table.Row{c.Code, c.Severity, c.Retryable, msg})
					}
				})
			},
		},
		&cobra.Command{
			Use:   "show <code>",
			Short: "Show one failure code with its diagnostic",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, ok := failures.Default().Resolve(args[0])
				if !ok {
					return fmt.Errorf("unknown failure code %q", args[0])
				}
				return render(cmd, c, func(tw table.Writer) {
					tw.AppendRows([]table.Row{
						{"Code", c.Code},
						{"Severity", c.Severity},
						{"Retryable", c.Retryable},
						{"User message", c.UserMessage},
						{"Diagnostic", c.Diagnostic},
					})
				})
			},
		},
	)
	return cmd
}

type transitionRow struct {
	Event runway.Event `json:"event" yaml:"event"`
	Next  runway.State `json:"next" yaml:"next"`
}

type walkStep struct {
	Step     int          `json:"step" yaml:"step"`
	Event    runway.Event `json:"event" yaml:"event"`
	From     runway.State `json:"from" yaml:"from"`
	To       runway.State `json:"to" yaml:"to"`
	Accepted bool         `json:"accepted" yaml:"accepted"`
}

func newRunwayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runway",
		Short: "Inspect the governance state machine",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "states",
			Short: "List runway states",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				type stateRow struct {
					State    runway.State `json:"state" yaml:"state"`
					Terminal bool         `json:"terminal" yaml:"terminal"`
				}
				var rows []stateRow
				for _, s := range runway.States() {
					rows = append(rows, stateRow{State: s, Terminal: runway.IsTerminal(s)})
				}
				return render(cmd, rows, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"State", "Terminal"})
					for _, r := range rows {
						tw.AppendRow(table.Row{r.State, r.Terminal})
					}
				})
			},
		},
		&cobra.Command{
			Use:   "events <state>",
			Short: "List the events a state accepts and where they lead",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				state, ok := runway.ParseState(args[0])
				if !ok {
					return fmt.Errorf("unknown runway state %q", args[0])
				}
				rows := []transitionRow{}
				for _, ev := range runway.ValidEvents(state) {
					next, _ := runway.Transition(state, ev)
					rows = append(rows, transitionRow{Event: ev, Next: next})
				}
				return render(cmd, rows, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Event", "Next"})
					for _, r := range rows {
						tw.AppendRow(table.Row{r.Event, r.Next})
					}
				})
			},
		},
		&cobra.Command{
			Use:   "walk <event>...",
			Short: "Fire events from idle and show each transition",
			Long:  "walk starts a fresh runway at idle and fires the events in order. Events the current state does not accept are reported and leave the state unchanged.",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps, err := walk(args)
				if err != nil {
					return err
				}
				return render(cmd, steps, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"#", "Event", "From", "To", "Accepted"})
					for _, s := range steps {
						tw.AppendRow(table.Row{s.Step, s.Event, s.From, s.To, s.Accepted})
					}
				})
			},
		},
	)
	return cmd
}

func walk(names []string) ([]walkStep, error) {
	rw := runway.New("cli-walk", runway.NewMachine())
	steps := make([]walkStep, 0, len(names))
	for i, name := range names {
		ev, ok := runway.ParseEvent(name)
		if !ok {
			return nil, fmt.Errorf("unknown runway event %q", name)
		}
		from := rw.State()
		to, accepted := rw.Fire(ev)
		steps = append(steps, walkStep{Step: i + 1, Event: ev, From: from, To: to, Accepted: accepted})
	}
	return steps, nil
}
