package cli

import (
	"fmt"
	"strings"

	"github.com/eshields/caseplan/internal/actionplan"
	"github.com/eshields/caseplan/internal/app"
	"github.com/eshields/caseplan/internal/schedules/domain"
	"github.com/eshields/caseplan/pkg/config"
	"github.com/spf13/cobra"
)

var (
	scheduleActor  string
	schedulePrison string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Operate on a person's schedules",
}

var completeInductionCmd = &cobra.Command{
	Use:   "complete-induction <person-id>",
	Short: "Record a completed induction interview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(c *app.Container) error {
			events, err := c.Orchestrator.OnInductionCompleted(cmd.Context(), args[0], scheduleActor, resolvePrison(cmd, c, args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("induction completed for %s (%d status changes)\n", args[0], len(events))
			return nil
		})
	},
}

var actionPlanCreatedCmd = &cobra.Command{
	Use:   "action-plan-created <person-id>",
	Short: "Record that the person's first action plan exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(c *app.Container) error {
			events, err := c.Orchestrator.OnActionPlanCreated(cmd.Context(), args[0], scheduleActor, resolvePrison(cmd, c, args[0]))
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("no review started (gate not satisfied or review already exists)")
				return nil
			}
			fmt.Printf("review schedule started for %s\n", args[0])
			return nil
		})
	},
}

var completeReviewCmd = &cobra.Command{
	Use:   "complete-review <person-id>",
	Short: "Record a held review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(c *app.Container) error {
			events, err := c.ReviewEngine.Complete(cmd.Context(), args[0], scheduleActor, resolvePrison(cmd, c, args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("review completed for %s (%d status changes)\n", args[0], len(events))
			return nil
		})
	},
}

var exemptCmd = &cobra.Command{
	Use:   "exempt <induction|review> <person-id> <reason>",
	Short: "Apply a manual exemption",
	Long:  exemptHelp(),
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason := domain.Status(args[2])
		if !reason.IsManualExemption() {
			return fmt.Errorf("not a manual exemption reason: %s", args[2])
		}
		return withContainer(cmd, func(c *app.Container) error {
			prison := resolvePrison(cmd, c, args[1])
			var err error
			switch args[0] {
			case "induction":
				_, err = c.InductionEngine.Exempt(cmd.Context(), args[1], reason, scheduleActor, prison)
			case "review":
				_, err = c.ReviewEngine.Exempt(cmd.Context(), args[1], reason, scheduleActor, prison)
			default:
				return fmt.Errorf("unknown schedule type: %s", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s schedule exempted for %s\n", args[0], args[1])
			return nil
		})
	},
}

var clearExemptionCmd = &cobra.Command{
	Use:   "clear-exemption <induction|review> <person-id>",
	Short: "Lift a manual exemption and reschedule",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(c *app.Container) error {
			prison := resolvePrison(cmd, c, args[1])
			var err error
			switch args[0] {
			case "induction":
				_, err = c.InductionEngine.ClearExemption(cmd.Context(), args[1], scheduleActor, prison)
			case "review":
				_, err = c.ReviewEngine.ClearExemption(cmd.Context(), args[1], scheduleActor, prison)
			default:
				return fmt.Errorf("unknown schedule type: %s", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s exemption cleared for %s\n", args[0], args[1])
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <induction|review> <person-id>",
	Short: "Print a person's schedule history",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(c *app.Container) error {
			switch args[0] {
			case "induction":
				history, err := c.InductionEngine.History(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				for _, s := range history {
					fmt.Printf("v%-3d %-45s rule=%-25s deadline=%s by=%s@%s\n",
						s.Version(), s.Status(), s.Rule(),
						s.Deadline().Format("2006-01-02"),
						s.UpdatedBy(), s.UpdatedAtPrison())
				}
			case "review":
				history, err := c.ReviewEngine.History(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				for _, s := range history {
					fmt.Printf("v%-3d %-45s rule=%-25s window=[%s, %s] pre_release=%t by=%s@%s\n",
						s.Version(), s.Status(), s.Rule(),
						s.WindowFrom().Format("2006-01-02"),
						s.WindowTo().Format("2006-01-02"),
						s.PreRelease(),
						s.UpdatedBy(), s.UpdatedAtPrison())
				}
			default:
				return fmt.Errorf("unknown schedule type: %s", args[0])
			}
			return nil
		})
	},
}

// resolvePrison returns the --prison flag when set, otherwise asks prisoner
// search for the person's current location. The prison is audit metadata, so
// a failed lookup degrades to recording the change without one rather than
// refusing the command.
func resolvePrison(cmd *cobra.Command, c *app.Container, personID string) string {
	if schedulePrison != "" {
		return schedulePrison
	}
	prison, err := c.PrisonerLookup.CurrentPrison(cmd.Context(), personID)
	if err != nil {
		logger.Warn("could not resolve current prison, recording change without one",
			"person_id", personID,
			"error", err,
		)
		return ""
	}
	return prison
}

// exemptHelp lists the valid reasons straight from the domain so the help
// text cannot drift from what the exempt command accepts.
func exemptHelp() string {
	var b strings.Builder
	b.WriteString("Apply a manual exemption. Valid reasons:")
	for _, reason := range domain.ManualExemptionReasons() {
		b.WriteString("\n  ")
		b.WriteString(string(reason))
	}
	return b.String()
}

func withContainer(cmd *cobra.Command, fn func(c *app.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	container, err := app.NewContainer(cmd.Context(), cfg, logger, app.Options{
		ActionPlanCheck: actionplan.NewClient(cfg.ActionPlanURL, nil),
	})
	if err != nil {
		return err
	}
	defer container.Close()

	if err := fn(container); err != nil {
		return err
	}

	// Flush staged notifications before the process exits.
	if err := container.OutboxProcessor.ProcessOnce(cmd.Context()); err != nil {
		logger.Warn("failed to flush outbox", "error", err)
	}
	return nil
}

func init() {
	scheduleCmd.PersistentFlags().StringVar(&scheduleActor, "actor", "cli", "staff username recorded on the change")
	scheduleCmd.PersistentFlags().StringVar(&schedulePrison, "prison", "", "prison code recorded on the change (looked up from prisoner search when omitted)")

	scheduleCmd.AddCommand(completeInductionCmd)
	scheduleCmd.AddCommand(actionPlanCreatedCmd)
	scheduleCmd.AddCommand(completeReviewCmd)
	scheduleCmd.AddCommand(exemptCmd)
	scheduleCmd.AddCommand(clearExemptionCmd)
	scheduleCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scheduleCmd)
}
