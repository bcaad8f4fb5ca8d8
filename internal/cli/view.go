package cli

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"exectrack/internal/api/dto"
	"exectrack/internal/domain"
	"exectrack/internal/tracker"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
)

// Backend is what the CLI needs from the tracker server. *rpc.Client implements it.
type Backend interface {
	tracker.Store
	ListTestCases(ctx context.Context, generationID string) ([]*domain.TestCase, error)
	GetSession(ctx context.Context, id string) (*domain.TestSession, error)
	SaveTestCases(ctx context.Context, req dto.SaveTestCasesRequest) ([]*domain.TestCase, error)
	SaveSession(ctx context.Context, req dto.SaveSessionRequest) (*domain.TestSession, error)
	Close() error
}

// view is one loaded execution view.
type view struct {
	session *domain.TestSession
	tracker *tracker.Tracker
}

// loadView fetches the session and the generation's test cases and loads
// their executions. The generation defaults to the session's.
func (a *app) loadView(ctx context.Context, backend Backend) (*view, error) {
	opts := a.options()
	if opts.Generation == "" && opts.Session == "" {
		return nil, fmt.Errorf("%w: --generation or --session is required", domain.ErrValidation)
	}

	var (
		session *domain.TestSession
		cases   []*domain.TestCase
	)
	if opts.Generation == "" {
		s, err := backend.GetSession(ctx, opts.Session)
		if err != nil {
			return nil, fmt.Errorf("failed to get session %s: %w", opts.Session, err)
		}
		if s.GenerationID == "" {
			return nil, fmt.Errorf("%w: session %s has no generation, pass --generation", domain.ErrValidation, s.ID)
		}
		session = s
		opts.Generation = s.GenerationID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cases, err = backend.ListTestCases(gctx, opts.Generation)
		if err != nil {
			return fmt.Errorf("failed to list test cases of %s: %w", opts.Generation, err)
		}
		return nil
	})
	if session == nil && opts.Session != "" {
		g.Go(func() error {
			var err error
			session, err = backend.GetSession(gctx, opts.Session)
			if err != nil {
				return fmt.Errorf("failed to get session %s: %w", opts.Session, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t := tracker.New(backend, newWriterNotifier(a.errOut), opts.Actor, opts.Session,
		tracker.WithWritePolicy(opts.Policy),
		tracker.WithLogger(a.logger),
	)
	if err := t.Load(ctx, cases); err != nil {
		return nil, err
	}
	a.logger.Debug("view loaded", "generation", opts.Generation, "session", opts.Session, "test_cases", len(cases))
	return &view{session: session, tracker: t}, nil
}

func renderProgress(v *view) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Test case", "Title", "Status", "Steps", "Failed", "Minutes"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_RIGHT,
	})

	for _, c := range v.tracker.Cases() {
		rec, ok := v.tracker.Execution(c.ID)
		if !ok {
			continue
		}
		table.Append(progressRow(c, rec))
	}

	stats := v.tracker.Stats()
	table.SetFooter([]string{
		fmt.Sprintf("%d cases", stats.Total),
		"",
		fmt.Sprintf("%d executed", stats.Executed()),
		"", "", "",
	})
	table.Render()
	return buf.String()
}

func progressRow(c *domain.TestCase, rec *domain.ExecutionRecord) []string {
	minutes := ""
	if rec.DurationMinutes != nil {
		minutes = strconv.Itoa(*rec.DurationMinutes)
	}
	failed := ""
	if n := len(rec.FailedSteps); n > 0 {
		failed = strconv.Itoa(n)
	}
	return []string{
		c.ID,
		c.Title,
		statusBadge(rec.Status),
		fmt.Sprintf("%d/%d", len(rec.CompletedSteps), len(c.Steps)),
		failed,
		minutes,
	}
}

// renderSteps lists the steps of the expanded test case.
func renderSteps(v *view) string {
	id := v.tracker.Expanded()
	if id == "" {
		return ""
	}
	rec, ok := v.tracker.Execution(id)
	if !ok {
		return ""
	}
	var testCase *domain.TestCase
	for _, c := range v.tracker.Cases() {
		if c.ID == id {
			testCase = c
			break
		}
	}
	if testCase == nil {
		return ""
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, headerStyle.Render(testCase.Title))
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"#", "Action", "Expected", "Done", "Failure"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	for _, step := range testCase.Steps {
		done := ""
		if rec.HasCompletedStep(step.StepNumber) {
			done = passedStyle.Render("✓")
		}
		failure := ""
		if f, ok := rec.StepFailure(step.StepNumber); ok {
			failure = failedStyle.Render(f.FailureReason)
			if f.FailureReason == "" {
				failure = failedStyle.Render("✗")
			}
		}
		table.Append([]string{strconv.Itoa(step.StepNumber), step.Action, step.Expected, done, failure})
	}
	table.Render()
	return buf.String()
}

func renderStats(stats domain.ExecutionStats) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Status", "Count"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	rows := []struct {
		status domain.ExecutionStatus
		count  int
	}{
		{domain.ExecutionStatusPassed, stats.Passed},
		{domain.ExecutionStatusFailed, stats.Failed},
		{domain.ExecutionStatusBlocked, stats.Blocked},
		{domain.ExecutionStatusSkipped, stats.Skipped},
		{domain.ExecutionStatusInProgress, stats.InProgress},
		{domain.ExecutionStatusNotRun, stats.NotRun},
	}
	for _, r := range rows {
		table.Append([]string{statusBadge(r.status), strconv.Itoa(r.count)})
	}
	table.SetFooter([]string{
		fmt.Sprintf("Total %d", stats.Total),
		fmt.Sprintf("pass rate %.1f%%", stats.PassRate()),
	})
	table.Render()
	return buf.String()
}
