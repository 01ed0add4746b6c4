package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/params"
	"regionsim/physics/internal/scene"
)

const (
	// ServiceName is the fully qualified parameter service name.
	ServiceName = "regionsim.physics.v1.Parameters"

	// MethodGet reads one parameter value.
	MethodGet = "/" + ServiceName + "/Get"
	// MethodSet changes one parameter through the scene's deferred queue.
	MethodSet = "/" + ServiceName + "/Set"
	// MethodList returns every registered parameter.
	MethodList = "/" + ServiceName + "/List"
)

const defaultHealthInterval = time.Second

// ParameterStore is the slice of the scene the parameter service needs.
type ParameterStore interface {
	Ready() bool
	GetParameter(name string) (float64, error)
	SetParameter(name string, value float64, target params.Target) error
	ParameterList() []scene.ParameterEntry
}

// ParametersServer is implemented by Service and dispatched through ParametersServiceDesc.
type ParametersServer interface {
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.DoubleValue, error)
	Set(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	List(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Option customises the behaviour of the parameter service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for the health updater.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithLogger overrides the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithTickerFactory overrides the health polling ticker factory (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// WithHealthInterval sets how often readiness is mirrored into the health service.
func WithHealthInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.healthInterval = interval
		}
	}
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	stop := func() {
		ticker.Stop()
	}
	return ticker.C, stop
}

// Service exposes the scene parameter table over gRPC and reports health.
type Service struct {
	store          ParameterStore
	log            *logging.Logger
	health         *health.Server
	newTicker      tickerFactory
	healthInterval time.Duration
}

// NewService wires the parameter service to the store and optional settings.
func NewService(store ParameterStore, opts ...Option) *Service {
	service := &Service{
		store:          store,
		log:            logging.L(),
		health:         health.NewServer(),
		newTicker:      defaultTickerFactory,
		healthInterval: defaultHealthInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	service.UpdateHealth()
	return service
}

// Register attaches the parameter and health services to the gRPC server.
func (s *Service) Register(server *grpc.Server) {
	server.RegisterService(&ParametersServiceDesc, s)
	healthpb.RegisterHealthServer(server, s.health)
}

// UpdateHealth mirrors scene readiness into the health service.
func (s *Service) UpdateHealth() healthpb.HealthCheckResponse_ServingStatus {
	state := healthpb.HealthCheckResponse_NOT_SERVING
	if s.store != nil && s.store.Ready() {
		state = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", state)
	s.health.SetServingStatus(ServiceName, state)
	return state
}

// RunHealthUpdater polls readiness until the context ends, then marks the
// service as not serving.
func (s *Service) RunHealthUpdater(ctx context.Context) {
	ticks, stop := s.newTicker(s.healthInterval)
	defer stop()
	last := s.UpdateHealth()
	for {
		select {
		case <-ctx.Done():
			//1.- Leave clients with an accurate answer while the server drains.
			s.health.Shutdown()
			return
		case <-ticks:
			//2.- Log only transitions so a steady state stays quiet.
			if current := s.UpdateHealth(); current != last {
				s.log.Info("parameter service health changed", logging.String("status", current.String()))
				last = current
			}
		}
	}
}

// Get returns the current value of the named parameter.
func (s *Service) Get(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.DoubleValue, error) {
	if s == nil || s.store == nil {
		return nil, status.Error(codes.FailedPrecondition, "parameters unavailable")
	}
	name := strings.TrimSpace(req.GetValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "parameter name required")
	}
	value, err := s.store.GetParameter(name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Double(value), nil
}

// Set changes a parameter. The request struct carries "name", "value" and an
// optional "target" ("none", "all" or an object handle).
func (s *Service) Set(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if s == nil || s.store == nil {
		return nil, status.Error(codes.FailedPrecondition, "parameters unavailable")
	}
	fields := req.GetFields()

	//1.- Validate the loosely typed struct before touching the scene.
	name := strings.TrimSpace(fields["name"].GetStringValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "parameter name required")
	}
	raw, ok := fields["value"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "parameter value required")
	}
	var value float64
	switch kind := raw.GetKind().(type) {
	case *structpb.Value_NumberValue:
		value = kind.NumberValue
	case *structpb.Value_BoolValue:
		value = params.BoolParam(kind.BoolValue)
	default:
		return nil, status.Error(codes.InvalidArgument, "parameter value must be a number or bool")
	}
	target, err := params.ParseTarget(fields["target"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	//2.- The scene defers the object side effects to its next step.
	if err := s.store.SetParameter(name, value, target); err != nil {
		return nil, toStatus(err)
	}
	s.log.Info("parameter set via grpc",
		logging.String("parameter", name),
		logging.Float64("value", value),
		logging.String("target", target.String()),
	)
	return &emptypb.Empty{}, nil
}

// List returns {"parameters": [{name, description, value, default}, ...]}.
func (s *Service) List(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.store == nil {
		return nil, status.Error(codes.FailedPrecondition, "parameters unavailable")
	}
	entries := s.store.ParameterList()
	items := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]interface{}{
			"name":        entry.Name,
			"description": entry.Description,
			"value":       entry.Value,
			"default":     entry.Default,
		})
	}
	out, err := structpb.NewStruct(map[string]interface{}{"parameters": items})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode parameters: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, params.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, scene.ErrNotReady):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
