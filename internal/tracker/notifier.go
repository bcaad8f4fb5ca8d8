package tracker

// Level of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a non-blocking message for the person using the view.
type Notification struct {
	Level      Level
	Kind       FailureKind // empty for info messages
	TestCaseID string
	Message    string
}

// Notifier presents notifications. It must not block the tracker.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }
