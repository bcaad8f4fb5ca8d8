package main

import (
	"fmt"
	"log/slog"

	"exectrack/internal/config"
	"exectrack/internal/domain"
	"exectrack/internal/infra/etcd"
	httpsource "exectrack/internal/infra/http"
	"exectrack/internal/infra/memory"
	"exectrack/internal/infra/postgres"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// stores is the set of adapters the services run on.
type stores struct {
	executions domain.ExecutionRepository
	testCases  domain.TestCaseRepository
	sessions   domain.SessionRepository
	reports    domain.ReportRepository
	locker     domain.Locker
	leader     domain.LeaderElectionManager
	closers    []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func buildStores(cfg *config.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{}

	var etcdClient *clientv3.Client
	if cfg.Etcd.Enabled {
		client, err := etcd.NewClient(cfg.Etcd.Endpoints, cfg.Etcd.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create etcd client: %w", err)
		}
		etcdClient = client
		s.closers = append(s.closers, client.Close)
		logger.Info("connected to etcd", "endpoints", cfg.Etcd.Endpoints)
	}

	switch cfg.Backend {
	case "etcd":
		s.testCases = etcd.NewEtcdTestCaseRepository(etcdClient, logger)
		s.sessions = etcd.NewEtcdSessionRepository(etcdClient, logger)
		s.reports = etcd.NewEtcdReportRepository(etcdClient)
		s.locker = etcd.NewEtcdLocker(etcdClient)
		s.leader = etcd.NewEtcdLeaderElectionManager(etcdClient, cfg.NodeID, cfg.LeaderElectionTTL, logger)
	default:
		s.testCases = memory.NewTestCaseRepository()
		s.sessions = memory.NewSessionRepository()
		s.reports = memory.NewReportRepository()
		s.locker = memory.NewLocker()
		s.leader = memory.NewLeaderElection()
	}

	switch cfg.ExecutionStore {
	case "etcd":
		s.executions = etcd.NewEtcdExecutionRepository(etcdClient, logger)
	case "postgres":
		db, err := postgres.Open(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
		if err != nil {
			s.Close()
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			s.closers = append(s.closers, sqlDB.Close)
		}
		if cfg.Postgres.AutoMigrate {
			if err := postgres.Migrate(db); err != nil {
				s.Close()
				return nil, err
			}
		}
		s.executions = postgres.NewExecutionRepository(db)
	default:
		s.executions = memory.NewExecutionRepository()
	}

	if cfg.TestCaseSource.Kind == "http" {
		s.testCases = httpsource.NewTestCaseSource(
			cfg.TestCaseSource.BaseURL,
			cfg.TestCaseSource.Timeout,
			httpsource.RetryPolicy{MaxRetries: cfg.TestCaseSource.MaxRetries, Backoff: cfg.TestCaseSource.Backoff},
			logger,
		)
	}
	return s, nil
}
