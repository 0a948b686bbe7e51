package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// TimerQueryServiceName is the fully-qualified name of the query service.
	TimerQueryServiceName = "examclock.v1.TimerQueryService"

	// TimerQueryServiceGetRosterProcedure returns every session of an exam.
	TimerQueryServiceGetRosterProcedure = "/examclock.v1.TimerQueryService/GetRoster"
	// TimerQueryServiceSelectStudentProcedure returns one student's session.
	TimerQueryServiceSelectStudentProcedure = "/examclock.v1.TimerQueryService/SelectStudent"
)

// QueryService implements the read-only TimerQueryService. Requests and
// responses are google.protobuf.Struct messages with the same field names
// as the WebSocket payloads.
type QueryService struct {
	state StateProvider
}

// NewQueryService creates a new timer query service
func NewQueryService(state StateProvider) *QueryService {
	return &QueryService{state: state}
}

// GetRoster returns the roster snapshot of {"exam_id": ...}.
func (s *QueryService) GetRoster(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	examID, err := uuidField(req.Msg, "exam_id")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if err := s.authorize(ctx, req.Header(), examID); err != nil {
		return nil, err
	}

	out, err := toStruct(s.state.Roster(examID))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// SelectStudent returns the session of {"exam_id": ..., "student_id": ...}.
func (s *QueryService) SelectStudent(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	examID, err := uuidField(req.Msg, "exam_id")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	studentID, err := uuidField(req.Msg, "student_id")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if err := s.authorize(ctx, req.Header(), examID); err != nil {
		return nil, err
	}

	view, ok := s.state.Session(examID, studentID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no session for student %s in exam %s", studentID, examID))
	}

	out, err := toStruct(view)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// authorize applies the same viewer rule as the HTTP pull endpoints.
func (s *QueryService) authorize(ctx context.Context, header http.Header, examID uuid.UUID) error {
	userID, err := uuid.Parse(header.Get(UserIDHeader))
	if err != nil {
		return connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("%s header is required", UserIDHeader))
	}
	if err := s.state.AuthorizeViewer(ctx, examID, userID); err != nil {
		return connect.NewError(viewerCode(timer.CodeOf(err)), err)
	}
	return nil
}

func viewerCode(code timer.ErrorCode) connect.Code {
	switch code {
	case timer.CodeUserNotFound:
		return connect.CodeUnauthenticated
	case timer.CodeExamNotFound:
		return connect.CodeNotFound
	case timer.CodeInternal:
		return connect.CodeInternal
	default:
		return connect.CodePermissionDenied
	}
}

// NewTimerQueryServiceHandler builds an HTTP handler serving both
// procedures, in the shape of a generated connect handler constructor.
func NewTimerQueryServiceHandler(svc *QueryService, opts ...connect.HandlerOption) (string, http.Handler) {
	getRoster := connect.NewUnaryHandler(
		TimerQueryServiceGetRosterProcedure,
		svc.GetRoster,
		opts...,
	)
	selectStudent := connect.NewUnaryHandler(
		TimerQueryServiceSelectStudentProcedure,
		svc.SelectStudent,
		opts...,
	)
	return "/" + TimerQueryServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TimerQueryServiceGetRosterProcedure:
			getRoster.ServeHTTP(w, r)
		case TimerQueryServiceSelectStudentProcedure:
			selectStudent.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func uuidField(msg *structpb.Struct, name string) (uuid.UUID, error) {
	value, ok := msg.GetFields()[name]
	if !ok {
		return uuid.Nil, fmt.Errorf("%s is required", name)
	}
	id, err := uuid.Parse(value.GetStringValue())
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, errors.New(name + " is required")
	}
	return id, nil
}

// toStruct converts a JSON-tagged value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	return out, nil
}
