package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/params"
	"regionsim/physics/internal/scene"
)

type storeStub struct {
	mu     sync.Mutex
	ready  bool
	values map[string]float64
	sets   []string
}

func newStoreStub() *storeStub {
	return &storeStub{ready: true, values: map[string]float64{"Gravity": -9.80665, "DefaultFriction": 0.2}}
}

func (s *storeStub) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *storeStub) setReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *storeStub) GetParameter(name string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", params.ErrNotFound, name)
	}
	return value, nil
}

func (s *storeStub) SetParameter(name string, value float64, target params.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		return fmt.Errorf("%w: %s", params.ErrNotFound, name)
	}
	s.values[name] = value
	s.sets = append(s.sets, fmt.Sprintf("%s=%g@%s", name, value, target))
	return nil
}

func (s *storeStub) ParameterList() []scene.ParameterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []scene.ParameterEntry{
		{Name: "DefaultFriction", Value: s.values["DefaultFriction"], Default: 0.2},
		{Name: "Gravity", Value: s.values["Gravity"], Default: -9.80665},
	}
}

func startServer(t *testing.T, service *Service, opts ...grpc.ServerOption) *grpc.ClientConn {
	t.Helper()
	listener := bufconn.Listen(1 << 16)
	server := grpc.NewServer(opts...)
	service.Register(server)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestParametersGetSetList(t *testing.T) {
	store := newStoreStub()
	conn := startServer(t, NewService(store, WithLogger(logging.NewTestLogger())))
	client := NewParametersClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	value, err := client.Get(ctx, "Gravity", grpc.UseCompressor(SnappyName))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != -9.80665 {
		t.Fatalf("unexpected gravity %v", value)
	}

	if err := client.Set(ctx, "Gravity", -3.5, "all"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(store.sets) != 1 || store.sets[0] != "Gravity=-3.5@all" {
		t.Fatalf("unexpected sets %v", store.sets)
	}

	listed, err := client.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	items := listed.GetFields()["parameters"].GetListValue().GetValues()
	if len(items) != 2 {
		t.Fatalf("expected two parameters, got %d", len(items))
	}
	gravity := items[1].GetStructValue().GetFields()
	if gravity["name"].GetStringValue() != "Gravity" || gravity["value"].GetNumberValue() != -3.5 {
		t.Fatalf("unexpected gravity entry %v", gravity)
	}
}

func TestParametersErrorCodes(t *testing.T) {
	conn := startServer(t, NewService(newStoreStub(), WithLogger(logging.NewTestLogger())))
	client := NewParametersClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cases := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"unknown get", func() error { _, err := client.Get(ctx, "Nope"); return err }, codes.NotFound},
		{"empty name", func() error { _, err := client.Get(ctx, " "); return err }, codes.InvalidArgument},
		{"unknown set", func() error { return client.Set(ctx, "Nope", 1, "") }, codes.NotFound},
		{"bad target", func() error { return client.Set(ctx, "Gravity", 1, "sideways") }, codes.InvalidArgument},
	}
	for _, tc := range cases {
		if got := status.Code(tc.call()); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestHealthFollowsReadiness(t *testing.T) {
	store := newStoreStub()
	store.setReady(false)
	ticks := make(chan time.Time)
	service := NewService(store,
		WithLogger(logging.NewTestLogger()),
		WithTickerFactory(func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }),
	)
	conn := startServer(t, service)
	health := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		return resp.GetStatus()
	}
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before ready, got %v", got)
	}

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		service.RunHealthUpdater(runCtx)
		close(done)
	}()
	store.setReady(true)
	ticks <- time.Now()
	ticks <- time.Now()
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING once ready, got %v", got)
	}

	stop()
	<-done
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %v", got)
	}
}
