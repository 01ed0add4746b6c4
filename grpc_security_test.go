package main

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	configpkg "regionsim/physics/internal/config"
	paramrpc "regionsim/physics/internal/grpc"
	"regionsim/physics/internal/logging"
)

func invokeGuarded(t *testing.T, ctx context.Context, method string) (bool, error) {
	t.Helper()
	interceptor := newSharedSecretUnaryInterceptor("hunter2")
	called := false
	handler := func(context.Context, interface{}) (interface{}, error) {
		called = true
		return nil, nil
	}
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
	return called, err
}

func TestSharedSecretInterceptorAcceptsValidSecret(t *testing.T) {
	md := metadata.New(map[string]string{sharedSecretMetadataKey: "hunter2"})
	called, err := invokeGuarded(t, metadata.NewIncomingContext(context.Background(), md), paramrpc.MethodSet)
	if err != nil {
		t.Fatalf("interceptor returned error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to be invoked for valid secret")
	}
}

func TestSharedSecretInterceptorAcceptsBearerToken(t *testing.T) {
	md := metadata.New(map[string]string{"authorization": "Bearer hunter2"})
	if called, err := invokeGuarded(t, metadata.NewIncomingContext(context.Background(), md), paramrpc.MethodSet); err != nil || !called {
		t.Fatalf("expected bearer token to be accepted, called=%v err=%v", called, err)
	}
}

func TestSharedSecretInterceptorRejectsMissingSecret(t *testing.T) {
	called, err := invokeGuarded(t, context.Background(), paramrpc.MethodSet)
	if called {
		t.Fatal("handler must not run without a secret")
	}
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated code, got %v", status.Code(err))
	}
}

func TestSharedSecretInterceptorLeavesReadsOpen(t *testing.T) {
	for _, method := range []string{paramrpc.MethodGet, paramrpc.MethodList} {
		if called, err := invokeGuarded(t, context.Background(), method); err != nil || !called {
			t.Fatalf("%s: expected reads to pass, called=%v err=%v", method, called, err)
		}
	}
}

func TestConfigureGRPCSecurityModes(t *testing.T) {
	opts, err := configureGRPCSecurity(&configpkg.Config{GRPCAuthMode: configpkg.GRPCAuthModeSharedSecret, GRPCSharedSecret: "hunter2"}, logging.NewTestLogger())
	if err != nil || len(opts) != 1 {
		t.Fatalf("expected one interceptor option, got %d (%v)", len(opts), err)
	}
	opts, err = configureGRPCSecurity(&configpkg.Config{GRPCAuthMode: configpkg.GRPCAuthModeNone}, logging.NewTestLogger())
	if err != nil || len(opts) != 0 {
		t.Fatalf("expected no options without auth, got %d (%v)", len(opts), err)
	}
	if _, err := configureGRPCSecurity(&configpkg.Config{GRPCAuthMode: "mtls"}, logging.NewTestLogger()); err == nil {
		t.Fatal("expected an error for an unsupported mode")
	}
}
