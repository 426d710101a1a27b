package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"kgrbac.org/internal/demo"
	"kgrbac.org/internal/engine/local"
	"kgrbac.org/internal/scenario"
)

const bufSize = 1024 * 1024

func loader(path string) (string, error) {
	return "Due diligence questionnaire. Phishing remediation included MFA and staff training.", nil
}

func startBufGRPC(t *testing.T) *grpc.ClientConn {
	t.Helper()

	set, err := scenario.Default()
	if err != nil {
		t.Fatalf("scenarios: %v", err)
	}
	eng := local.New(local.NewMemoryStore(), local.Options{AccessControl: true, BcryptCost: bcrypt.MinCost})
	srv := NewServer(&demo.Shared{Harness: &demo.Harness{Engine: eng, LoadText: loader}, Reset: true}, set)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	srv.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		server.GracefulStop()
		_ = listener.Close()
	})
	return conn
}

func run(t *testing.T, c *Client, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return c.RunScenario(context.Background(), in)
}

func TestListScenarios(t *testing.T) {
	c := NewClient(startBufGRPC(t))
	out, err := c.ListScenarios(context.Background(), &structpb.Struct{})
	if err != nil {
		t.Fatalf("ListScenarios: %v", err)
	}
	list := out.GetFields()["scenarios"].GetListValue().GetValues()
	if len(list) != 5 {
		t.Fatalf("expected 5 scenarios, got %d", len(list))
	}
	if got := list[0].GetStructValue().GetFields()["user"].GetStringValue(); got != "alpha_analyst" {
		t.Fatalf("unexpected first user: %q", got)
	}
}

func TestRunScenarioDeniedThenShared(t *testing.T) {
	conn := startBufGRPC(t)
	c := NewClient(conn)
	hc := healthpb.NewHealthClient(conn)

	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first run, got %v", resp.GetStatus())
	}

	out, err := run(t, c, map[string]any{"label": "Alpha – force Beta (unauthorized)"})
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	if !out.GetFields()["denied"].GetBoolValue() {
		t.Fatalf("expected denial, got %v", out)
	}

	out, err = run(t, c, map[string]any{"label": "Alpha – Alpha + Beta (after share)", "ensure_share": true})
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	f := out.GetFields()
	if f["denied"].GetBoolValue() || !f["beta_shared"].GetBoolValue() {
		t.Fatalf("expected shared access, got %v", out)
	}
	if f["answer"].GetStringValue() == "" {
		t.Fatal("expected an answer")
	}
	if n := len(f["dataset_ids"].GetListValue().GetValues()); n != 2 {
		t.Fatalf("expected 2 dataset ids, got %d", n)
	}

	resp, err = hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.GetStatus())
	}
}

func TestRunScenarioValidation(t *testing.T) {
	c := NewClient(startBufGRPC(t))

	_, err := run(t, c, map[string]any{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	_, err = run(t, c, map[string]any{"label": "nope"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
