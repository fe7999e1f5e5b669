package grpcapi

import (
	"context"
	"math"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hts/authsvc"
)

const ServiceName = "hts.auth.v1.AuthService"

// AuthService is the handler set registered under ServiceName.
type AuthService interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LogoutAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Engine is the subset of *authsvc.Engine the facade calls.
type Engine interface {
	Login(ctx context.Context, req authsvc.LoginRequest) (authsvc.LoginResult, error)
	ValidateSession(ctx context.Context, sessionID string) (authsvc.ValidateResult, error)
	LogoutSession(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, accountID int64) (int, error)
}

// AuthServer maps engine outcomes to result codes. Domain failures travel in
// the code field of a normal reply; gRPC status errors are reserved for
// requests that cannot be parsed.
type AuthServer struct {
	engine Engine
}

func NewAuthServer(engine Engine) *AuthServer {
	return &AuthServer{engine: engine}
}

func Register(server grpc.ServiceRegistrar, svc AuthService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*AuthService)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Login", Handler: unaryHandler("Login", svc.Login)},
			{MethodName: "Logout", Handler: unaryHandler("Logout", svc.Logout)},
			{MethodName: "ValidateSession", Handler: unaryHandler("ValidateSession", svc.ValidateSession)},
			{MethodName: "LogoutAll", Handler: unaryHandler("LogoutAll", svc.LogoutAll)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "hts/auth/v1/auth_service.proto",
	}, svc)
}

func (s *AuthServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := accountIDField(req)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Login(ctx, authsvc.LoginRequest{
		AccountID: accountID,
		Password:  stringField(req, "password"),
		IP:        stringField(req, "ip_addr"),
		UserAgent: stringField(req, "user_agent"),
	})
	if err != nil {
		return reply(map[string]any{
			"code":       string(authsvc.ResultCodeOf(err)),
			"session_id": "",
			"account_id": int64(0),
		})
	}
	return reply(map[string]any{
		"code":       string(authsvc.ResultSuccess),
		"session_id": res.SessionID,
		"account_id": res.AccountID,
	})
}

func (s *AuthServer) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessionID, err := sessionIDField(req)
	if err != nil {
		return nil, err
	}
	err = s.engine.LogoutSession(ctx, sessionID)
	return reply(map[string]any{"code": string(authsvc.ResultCodeOf(err))})
}

func (s *AuthServer) ValidateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sessionID, err := sessionIDField(req)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.ValidateSession(ctx, sessionID)
	code := authsvc.ResultSuccess
	switch {
	case err != nil:
		code = authsvc.ResultCodeOf(err)
		res = authsvc.ValidateResult{}
	case !res.Valid:
		code = authsvc.ResultSessionNotFound
	}
	return reply(map[string]any{
		"code":       string(code),
		"account_id": res.AccountID,
		"is_valid":   res.Valid,
	})
}

func (s *AuthServer) LogoutAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := accountIDField(req)
	if err != nil {
		return nil, err
	}
	removed, err := s.engine.LogoutAll(ctx, accountID)
	return reply(map[string]any{
		"code":    string(authsvc.ResultCodeOf(err)),
		"removed": removed,
	})
}

func reply(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func sessionIDField(req *structpb.Struct) (string, error) {
	sessionID := strings.TrimSpace(stringField(req, "session_id"))
	if sessionID == "" {
		return "", status.Error(codes.InvalidArgument, "missing session_id")
	}
	return sessionID, nil
}

// accountIDField accepts a JSON number or a decimal string. Ids above 2^53
// must be sent as strings to survive the float64 number encoding.
func accountIDField(req *structpb.Struct) (int64, error) {
	v := req.GetFields()["account_id"]
	if v == nil {
		return 0, status.Error(codes.InvalidArgument, "missing account_id")
	}

	var id int64
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || n < 1 || n >= math.MaxInt64 {
			return 0, status.Error(codes.InvalidArgument, "account_id must be a positive integer")
		}
		id = int64(n)
	case *structpb.Value_StringValue:
		parsed, err := strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			return 0, status.Error(codes.InvalidArgument, "account_id must be an integer")
		}
		id = parsed
	default:
		return 0, status.Error(codes.InvalidArgument, "account_id must be an integer")
	}
	if id <= 0 {
		return 0, status.Error(codes.InvalidArgument, "account_id must be positive")
	}
	return id, nil
}

func unaryHandler(
	method string,
	call func(context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
