package grpcapi

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"kgrbac.org/internal/demo"
	"kgrbac.org/internal/engine"
	"kgrbac.org/internal/obs"
	"kgrbac.org/internal/scenario"
)

// Backend is the part of demo.Shared the service drives.
type Backend interface {
	BuildState(ctx context.Context, opts demo.Options) (*demo.State, error)
	EnsureShare(ctx context.Context, st *demo.State) error
	RunQuery(ctx context.Context, user engine.User, label, question string, datasetIDs []uuid.UUID) (demo.Payload, error)
}

// Server implements DemoServer over one shared demo state. Calls are
// serialized, matching the dashboard's one-action-at-a-time model.
type Server struct {
	backend   Backend
	scenarios scenario.Set
	health    *health.Server

	mu    sync.Mutex
	state *demo.State
}

var _ DemoServer = (*Server)(nil)

// NewServer returns a server whose health status turns SERVING once state is built.
func NewServer(backend Backend, scenarios scenario.Set) *Server {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{backend: backend, scenarios: scenarios, health: hs}
}

// Register installs the demo and health services on s.
func (s *Server) Register(gs *grpc.Server) {
	RegisterDemoServer(gs, s)
	healthpb.RegisterHealthServer(gs, s.health)
}

// Shutdown marks every service as not serving.
func (s *Server) Shutdown() { s.health.Shutdown() }

func (s *Server) ListScenarios(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list := make([]any, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		datasets := make([]any, len(sc.Datasets))
		for i, d := range sc.Datasets {
			datasets[i] = d
		}
		list = append(list, map[string]any{
			"label":          sc.Label,
			"user":           sc.User,
			"datasets":       datasets,
			"requires_share": sc.RequiresShare,
			"description":    sc.Description,
		})
	}
	out, err := structpb.NewStruct(map[string]any{"scenarios": list})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode scenarios: %v", err)
	}
	return out, nil
}

// RunScenario runs a preset by label. Fields: label (required), question
// (defaults to the PoC prompt), ensure_share (share Beta first when the preset needs it).
func (s *Server) RunScenario(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	label := strings.TrimSpace(fields["label"].GetStringValue())
	if label == "" {
		return nil, status.Error(codes.InvalidArgument, "label is required")
	}
	sc, err := s.scenarios.Find(label)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	question := strings.TrimSpace(fields["question"].GetStringValue())
	if question == "" {
		question = demo.PocPrompt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ensureState(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if sc.RequiresShare && fields["ensure_share"].GetBoolValue() && !st.BetaShared {
		if err := s.backend.EnsureShare(ctx, st); err != nil {
			return nil, toStatus(err)
		}
	}
	user, err := st.User(sc.User)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	var ids []uuid.UUID
	for _, name := range sc.Datasets {
		if id, ok := st.Datasets[name]; ok {
			ids = append(ids, id)
		}
	}
	p, err := s.backend.RunQuery(ctx, user, sc.Label, question, ids)
	if err != nil {
		return nil, toStatus(err)
	}
	return payloadStruct(p, st.BetaShared)
}

func (s *Server) ensureState(ctx context.Context) (*demo.State, error) {
	if s.state != nil {
		return s.state, nil
	}
	st, err := s.backend.BuildState(ctx, demo.Options{})
	if err != nil {
		return nil, err
	}
	s.state = st
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	obs.Info("grpc_state_built", nil)
	return st, nil
}

func payloadStruct(p demo.Payload, shared bool) (*structpb.Struct, error) {
	ids := make([]any, len(p.DatasetIDs))
	for i, id := range p.DatasetIDs {
		ids[i] = id
	}
	answer, _ := p.Answer()
	out, err := structpb.NewStruct(map[string]any{
		"label":       p.Label,
		"user":        p.User,
		"question":    p.Question,
		"dataset_ids": ids,
		"error":       p.Error,
		"denied":      p.Denied(),
		"answer":      answer,
		"results":     float64(len(p.Results)),
		"beta_shared": shared,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode payload: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	switch engine.KindOf(err) {
	case engine.KindPermissionDenied:
		return status.Error(codes.PermissionDenied, err.Error())
	case engine.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case engine.KindInvalidInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case engine.KindAlreadyExists:
		return status.Error(codes.AlreadyExists, err.Error())
	case engine.KindUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
