package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"exectrack/internal/api/dto"
	"exectrack/internal/domain"
	"exectrack/internal/tracker"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// withView dials, loads the view and runs fn.
func (a *app) withView(cmd *cobra.Command, fn func(ctx context.Context, v *view) error) error {
	ctx, done, backend, err := a.connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	v, err := a.loadView(ctx, backend)
	if err != nil {
		return err
	}
	return fn(ctx, v)
}

// printCase prints the row of one test case after a change.
func (a *app) printCase(v *view, testCaseID string) {
	rec, ok := v.tracker.Execution(testCaseID)
	if !ok {
		return
	}
	for _, c := range v.tracker.Cases() {
		if c.ID == testCaseID {
			row := progressRow(c, rec)
			fmt.Fprintf(a.out, "%s  %s  %s steps\n", row[0], row[2], row[3])
			return
		}
	}
}

func (a *app) newShowCmd() *cobra.Command {
	var expand string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the progress of every test case in the view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withView(cmd, func(_ context.Context, v *view) error {
				if v.session != nil {
					fmt.Fprintf(a.out, "%s %s\n", headerStyle.Render(v.session.Name), mutedStyle.Render(string(v.session.Status)))
				}
				fmt.Fprint(a.out, renderProgress(v))
				if expand != "" {
					v.tracker.Expand(expand)
					if v.tracker.Expanded() == "" {
						return fmt.Errorf("%w: %s is not part of this view", domain.ErrTestCaseNotFound, expand)
					}
					fmt.Fprintln(a.out)
					fmt.Fprint(a.out, renderSteps(v))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&expand, "expand", "e", "", "also list the steps of this test case")
	return cmd
}

func (a *app) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise execution statuses of the view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withView(cmd, func(_ context.Context, v *view) error {
				fmt.Fprint(a.out, renderStats(v.tracker.Stats()))
				return nil
			})
		},
	}
}

func parseStep(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: step must be a positive number, got %q", domain.ErrValidation, arg)
	}
	return n, nil
}

func (a *app) newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <test-case> <step>...",
		Short: "Mark steps done, or undo them",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actions := make([]tracker.Action, 0, len(args)-1)
			for _, arg := range args[1:] {
				step, err := parseStep(arg)
				if err != nil {
					return err
				}
				actions = append(actions, tracker.Toggle(step))
			}
			return a.withView(cmd, func(ctx context.Context, v *view) error {
				if err := v.tracker.Do(ctx, args[0], actions...); err != nil {
					return err
				}
				a.printCase(v, args[0])
				return nil
			})
		},
	}
}

func (a *app) newFlagCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "flag <test-case> <step>",
		Short: "Flag a step as failed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := parseStep(args[1])
			if err != nil {
				return err
			}
			return a.withView(cmd, func(ctx context.Context, v *view) error {
				if err := v.tracker.FlagStepFailure(ctx, args[0], step, reason); err != nil {
					return err
				}
				a.printCase(v, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "what went wrong")
	return cmd
}

func (a *app) newUnflagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unflag <test-case> <step>",
		Short: "Clear a step's failure flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := parseStep(args[1])
			if err != nil {
				return err
			}
			return a.withView(cmd, func(ctx context.Context, v *view) error {
				if err := v.tracker.ClearStepFailure(ctx, args[0], step); err != nil {
					return err
				}
				a.printCase(v, args[0])
				return nil
			})
		},
	}
}

// parseFailedStep reads "N" or "N:reason".
func parseFailedStep(s string) (domain.FailedStep, error) {
	num, reason, _ := strings.Cut(s, ":")
	step, err := parseStep(strings.TrimSpace(num))
	if err != nil {
		return domain.FailedStep{}, err
	}
	return domain.FailedStep{StepNumber: step, FailureReason: strings.TrimSpace(reason)}, nil
}

func (a *app) newResultCmd(use, short string, status domain.ExecutionStatus) *cobra.Command {
	var (
		detail      domain.ResultDetail
		failedSteps []string
	)
	cmd := &cobra.Command{
		Use:   use + " <test-case>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range failedSteps {
				f, err := parseFailedStep(s)
				if err != nil {
					return err
				}
				detail.FailedSteps = append(detail.FailedSteps, f)
			}
			return a.withView(cmd, func(ctx context.Context, v *view) error {
				if err := v.tracker.MarkResult(ctx, args[0], status, detail); err != nil {
					return err
				}
				a.printCase(v, args[0])
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&detail.ExecutionNotes, "notes", "", "execution notes")
	flags.StringVar(&detail.TestEnvironment, "env", "", "test environment")
	flags.StringVar(&detail.Browser, "browser", "", "browser")
	flags.StringVar(&detail.OSVersion, "os", "", "operating system version")
	if status != domain.ExecutionStatusPassed {
		flags.StringVarP(&detail.FailureReason, "reason", "r", "", "why the test case did not pass")
		flags.StringArrayVar(&failedSteps, "failed-step", nil, "failed step as N or N:reason (repeatable)")
	}
	return cmd
}

func (a *app) newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <test-case>",
		Short: "Clear the attempt and start over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withView(cmd, func(ctx context.Context, v *view) error {
				if err := v.tracker.Reset(ctx, args[0]); err != nil {
					return err
				}
				a.printCase(v, args[0])
				return nil
			})
		},
	}
}

// importFile is the YAML layout accepted by the import command.
type importFile struct {
	TestCases []dto.TestCaseRequest    `yaml:"test_cases"`
	Sessions  []dto.SaveSessionRequest `yaml:"sessions"`
}

func (a *app) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import test cases and sessions from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			var file importFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("%w: failed to parse %s: %v", domain.ErrValidation, args[0], err)
			}
			if len(file.TestCases) == 0 && len(file.Sessions) == 0 {
				return fmt.Errorf("%w: %s has no test_cases or sessions", domain.ErrValidation, args[0])
			}

			ctx, done, backend, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer done()

			if len(file.TestCases) > 0 {
				saved, err := backend.SaveTestCases(ctx, dto.SaveTestCasesRequest{TestCases: file.TestCases})
				if err != nil {
					return fmt.Errorf("failed to import test cases: %w", err)
				}
				fmt.Fprintf(a.out, "imported %d test cases\n", len(saved))
			}
			for _, s := range file.Sessions {
				saved, err := backend.SaveSession(ctx, s)
				if err != nil {
					return fmt.Errorf("failed to import session %q: %w", s.Name, err)
				}
				fmt.Fprintf(a.out, "imported session %s (%s)\n", saved.Name, saved.ID)
			}
			a.logger.Info("import finished", "file", args[0], "test_cases", len(file.TestCases), "sessions", len(file.Sessions))
			return nil
		},
	}
}
