package rpc

import (
	"context"

	"exectrack/internal/api/dto"
	"exectrack/internal/domain"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the ExecutionTracker service and returns domain values and errors.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for target. Extra options are appended to the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return fromStatus(err)
	}
	return fromStruct(out, resp)
}

// LoadExecutions returns one execution per test case, in request order.
func (c *Client) LoadExecutions(ctx context.Context, testCaseIDs []string, sessionID string) ([]*domain.ExecutionRecord, error) {
	var resp dto.ExecutionList
	err := c.call(ctx, "LoadExecutions", dto.ExecutionQuery{TestCaseIDs: testCaseIDs, SessionID: sessionID}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Executions, nil
}

func (c *Client) SaveProgress(ctx context.Context, req domain.SaveRequest) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	err := c.call(ctx, "SaveProgress", dto.SaveProgressRequest{
		TestCaseID:  req.TestCaseID,
		SessionID:   req.SessionID,
		ExecutionID: req.ExecutionID,
		ExecutedBy:  req.ExecutedBy,
		Update:      req.Update,
	}, &rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Transition(ctx context.Context, req dto.TransitionRequest) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	if err := c.call(ctx, "Transition", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ComputeStats aggregates either the given test cases or a whole generation.
func (c *Client) ComputeStats(ctx context.Context, query dto.ExecutionQuery) (domain.ExecutionStats, error) {
	var stats domain.ExecutionStats
	err := c.call(ctx, "ComputeStats", query, &stats)
	return stats, err
}

func (c *Client) ListTestCases(ctx context.Context, generationID string) ([]*domain.TestCase, error) {
	var resp dto.TestCaseList
	if err := c.call(ctx, "ListTestCases", dto.GenerationRequest{GenerationID: generationID}, &resp); err != nil {
		return nil, err
	}
	return resp.TestCases, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*domain.TestSession, error) {
	var session domain.TestSession
	if err := c.call(ctx, "GetSession", dto.IDRequest{ID: id}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) SaveTestCases(ctx context.Context, req dto.SaveTestCasesRequest) ([]*domain.TestCase, error) {
	var resp dto.TestCaseList
	if err := c.call(ctx, "SaveTestCases", req, &resp); err != nil {
		return nil, err
	}
	return resp.TestCases, nil
}

func (c *Client) SaveSession(ctx context.Context, req dto.SaveSessionRequest) (*domain.TestSession, error) {
	var session domain.TestSession
	if err := c.call(ctx, "SaveSession", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}
