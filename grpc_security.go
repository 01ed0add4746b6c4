package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	configpkg "regionsim/physics/internal/config"
	paramrpc "regionsim/physics/internal/grpc"
	"regionsim/physics/internal/logging"
)

const sharedSecretMetadataKey = "x-physics-shared-secret"

// guardedMethods lists the RPCs that mutate the scene and therefore need the secret.
var guardedMethods = map[string]bool{
	paramrpc.MethodSet: true,
}

func configureGRPCSecurity(cfg *configpkg.Config, logger *logging.Logger) ([]grpc.ServerOption, error) {
	if cfg == nil {
		return nil, fmt.Errorf("grpc config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	var opts []grpc.ServerOption

	switch cfg.GRPCAuthMode {
	case configpkg.GRPCAuthModeNone, "":
		logger.Warn("gRPC parameter writes are unauthenticated")
	case configpkg.GRPCAuthModeSharedSecret:
		opts = append(opts, grpc.ChainUnaryInterceptor(newSharedSecretUnaryInterceptor(cfg.GRPCSharedSecret)))
		logger.Info("gRPC shared-secret authentication enabled")
	default:
		return nil, fmt.Errorf("unsupported grpc auth mode %q", cfg.GRPCAuthMode)
	}

	return opts, nil
}

func newSharedSecretUnaryInterceptor(secret string) grpc.UnaryServerInterceptor {
	normalized := strings.TrimSpace(secret)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		//1.- Reads stay open; only scene mutations are checked.
		if info == nil || !guardedMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		if normalized == "" {
			return nil, status.Error(codes.Unauthenticated, "shared secret not configured")
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		candidate := extractSharedSecret(md)
		if candidate == "" {
			return nil, status.Error(codes.Unauthenticated, "missing shared secret")
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(normalized)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid shared secret")
		}
		return handler(ctx, req)
	}
}

func extractSharedSecret(md metadata.MD) string {
	if md == nil {
		return ""
	}
	for _, value := range md.Get(sharedSecretMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	for _, value := range md.Get("authorization") {
		if strings.HasPrefix(strings.ToLower(value), "bearer ") {
			token := strings.TrimSpace(value[7:])
			if token != "" {
				return token
			}
		}
	}
	return ""
}
