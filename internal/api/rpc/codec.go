package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"exectrack/internal/api/dto"
	"exectrack/internal/domain"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts a JSON-tagged DTO to a Struct message.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes a Struct message into a JSON-tagged DTO.
func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &dto.ValidationError{Details: []string{"malformed message: " + err.Error()}}
	}
	return nil
}

// errorDomain scopes the ErrorInfo reasons below.
const errorDomain = "exectrack"

var reasons = []struct {
	reason string
	err    error
	code   codes.Code
}{
	{"VALIDATION", domain.ErrValidation, codes.InvalidArgument},
	{"TEST_CASE_NOT_FOUND", domain.ErrTestCaseNotFound, codes.NotFound},
	{"SESSION_NOT_FOUND", domain.ErrSessionNotFound, codes.NotFound},
	{"EXECUTION_NOT_FOUND", domain.ErrExecutionNotFound, codes.NotFound},
	{"REPORT_NOT_FOUND", domain.ErrReportNotFound, codes.NotFound},
	{"PERSISTENCE", domain.ErrPersistence, codes.Unavailable},
	{"LOCK_NOT_ACQUIRED", domain.ErrLockNotAcquired, codes.Unavailable},
}

// toStatus maps a service error to a gRPC status carrying the sentinel's
// reason, so the client can map it back.
func toStatus(err error) error {
	for _, r := range reasons {
		if !errors.Is(err, r.err) {
			continue
		}
		st := status.New(r.code, err.Error())
		if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: r.reason, Domain: errorDomain}); derr == nil {
			st = withInfo
		}
		return st.Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus turns a gRPC error back into a domain error.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}
		for _, r := range reasons {
			if r.reason == info.GetReason() {
				return fmt.Errorf("%w: %s", r.err, st.Message())
			}
		}
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", domain.ErrValidation, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", domain.ErrPersistence, st.Message())
	}
	return fmt.Errorf("rpc failed: %s: %s", st.Code(), st.Message())
}
