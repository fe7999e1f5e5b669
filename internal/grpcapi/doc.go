// Package grpcapi exposes the authentication engine as the hts.auth.v1.AuthService gRPC service.
package grpcapi
