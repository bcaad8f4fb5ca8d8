package usecase

import (
	"context"
	"log/slog"
	"time"

	"exectrack/internal/domain"
	"exectrack/internal/metrics"
)

// SchedularService runs the scheduled tasks only while this node holds leadership.
type SchedularService struct {
	leaderManager domain.LeaderElectionManager
	schedular     domain.Schedular
	tasks         []domain.ScheduledTask
	nodeID        string
	retryDelay    time.Duration
	logger        *slog.Logger
}

func NewSchedularService(leaderManager domain.LeaderElectionManager, schedular domain.Schedular, tasks []domain.ScheduledTask, nodeID string, logger *slog.Logger) *SchedularService {
	return &SchedularService{
		leaderManager: leaderManager,
		schedular:     schedular,
		tasks:         tasks,
		nodeID:        nodeID,
		retryDelay:    5 * time.Second,
		logger:        logger.With("component", "schedular-service", "node_id", nodeID),
	}
}

func (s *SchedularService) Start(ctx context.Context) error {
	s.logger.Info("scheduler service starting")
	leader := metrics.IsLeader.WithLabelValues(s.nodeID)
	leader.Set(0)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler service shutting down")
			return ctx.Err()
		default:
		}

		s.logger.Info("campaigning for leadership")
		lostLeadershipCh, err := s.leaderManager.Campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("leadership campaign failed, retrying", "error", err, "retry_in", s.retryDelay)
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		s.logger.Info("became the leader, starting the scheduler")
		leader.Set(1)
		err = s.lead(ctx, lostLeadershipCh)
		leader.Set(0)
		if err != nil {
			return err
		}
		s.logger.Warn("lost leadership")
	}
}

// lead runs the scheduler until leadership is lost (nil) or ctx ends (ctx.Err()).
func (s *SchedularService) lead(ctx context.Context, lostLeadershipCh <-chan struct{}) error {
	leadCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
		s.schedular.Stop()
	}()

	for _, task := range s.tasks {
		if err := s.schedular.AddTask(task); err != nil {
			s.logger.Error("failed to schedule task", "task", task.Name, "error", err)
		}
	}
	go func() {
		defer close(done)
		_ = s.schedular.Start(leadCtx)
	}()

	select {
	case <-lostLeadershipCh:
		return nil
	case <-ctx.Done():
		resignCtx, resignCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer resignCancel()
		if err := s.leaderManager.Resign(resignCtx); err != nil {
			s.logger.Warn("failed to resign leadership", "error", err)
		}
		return ctx.Err()
	}
}
