package cli

import (
	"fmt"
	"io"
	"sync"

	"exectrack/internal/domain"
	"exectrack/internal/tracker"

	"github.com/charmbracelet/lipgloss"
)

var (
	passedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	blockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// statusBadge renders an execution status for a table cell.
func statusBadge(status domain.ExecutionStatus) string {
	label := string(status)
	switch status {
	case domain.ExecutionStatusPassed:
		return passedStyle.Render(label)
	case domain.ExecutionStatusFailed:
		return failedStyle.Render(label)
	case domain.ExecutionStatusBlocked:
		return blockedStyle.Render(label)
	case domain.ExecutionStatusInProgress:
		return activeStyle.Render(label)
	default:
		return mutedStyle.Render(label)
	}
}

// writerNotifier prints tracker notifications as single styled lines.
type writerNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func newWriterNotifier(w io.Writer) *writerNotifier {
	return &writerNotifier{w: w}
}

func (n *writerNotifier) Notify(msg tracker.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := passedStyle.Render("✓")
	if msg.Level == tracker.LevelError {
		prefix = failedStyle.Render("✗")
	}
	if msg.TestCaseID != "" {
		fmt.Fprintf(n.w, "%s %s %s\n", prefix, msg.Message, mutedStyle.Render("("+msg.TestCaseID+")"))
		return
	}
	fmt.Fprintf(n.w, "%s %s\n", prefix, msg.Message)
}

// FormatError renders a command error for the terminal.
func FormatError(err error) string {
	return failedStyle.Render("error:") + " " + err.Error()
}
