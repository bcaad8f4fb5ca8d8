package domain

import "context"

// ScheduledTask is a named function run on a cron schedule.
type ScheduledTask struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Schedular interface {
	Start(ctx context.Context) error
	Stop()

	AddTask(task ScheduledTask) error
	RemoveTask(name string) error
}
