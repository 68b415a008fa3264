package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"lawdesk.org/internal/auth"
)

// AuthServiceName is the gRPC service exposing session and catalog lookups.
const AuthServiceName = "lawdesk.auth.v1.AuthService"

const (
	MethodWhoAmI          = "/" + AuthServiceName + "/WhoAmI"
	MethodListPermissions = "/" + AuthServiceName + "/ListPermissions"
	MethodListAccounts    = "/" + AuthServiceName + "/ListAccounts"
)

// DefaultPolicy requires a session for lookups and the admin role for the
// account listing.
func DefaultPolicy() Policy {
	return Policy{
		MethodWhoAmI:          {},
		MethodListPermissions: {},
		MethodListAccounts:    {Roles: []auth.RoleTag{auth.RoleAdmin}},
	}
}

type authService interface {
	WhoAmI(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	ListPermissions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListAccounts(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// AuthServer answers AuthService calls. Messages are well-known protobuf
// types, so no generated code is needed.
type AuthServer struct {
	catalog  *auth.Catalog
	accounts *auth.AccountService
}

var _ authService = (*AuthServer)(nil)

func NewAuthServer(catalog *auth.Catalog, accounts *auth.AccountService) *AuthServer {
	if catalog == nil {
		catalog = auth.BuiltinCatalog()
	}
	return &AuthServer{catalog: catalog, accounts: accounts}
}

func (s *AuthServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sess, ok := auth.SessionFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	v := accountValue(sess.Account)
	v["authenticated_at"] = sess.AuthenticatedAt.UTC().Format(time.RFC3339Nano)
	return structpb.NewStruct(v)
}

func (s *AuthServer) ListPermissions(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	module := ""
	if in != nil {
		module = in.GetFields()["module"].GetStringValue()
	}
	perms := s.catalog.ListPermissions(module)
	list := make([]any, 0, len(perms))
	for _, p := range perms {
		list = append(list, map[string]any{
			"id":          p.ID,
			"label":       p.Label,
			"module":      p.Module,
			"sensitivity": string(p.Sensitivity),
		})
	}
	return structpb.NewStruct(map[string]any{"permissions": list})
}

func (s *AuthServer) ListAccounts(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "account listing is not configured")
	}
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, "list accounts failed")
	}
	list := make([]any, 0, len(accounts))
	for _, a := range accounts {
		list = append(list, accountValue(a))
	}
	return structpb.NewStruct(map[string]any{"accounts": list})
}

func accountValue(a auth.Account) map[string]any {
	ids := a.Permissions.IDs()
	perms := make([]any, 0, len(ids))
	for _, id := range ids {
		perms = append(perms, id)
	}
	return map[string]any{
		"id":          a.ID,
		"email":       a.Email,
		"name":        a.Name,
		"role":        string(a.Role),
		"verified":    a.Verified,
		"status":      string(a.Status),
		"permissions": perms,
	}
}

func registerAuthService(s grpc.ServiceRegistrar, srv authService) {
	s.RegisterService(&authServiceDesc, srv)
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*authService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
		{MethodName: "ListPermissions", Handler: listPermissionsHandler},
		{MethodName: "ListAccounts", Handler: listAccountsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lawdesk/auth/v1/auth.proto",
}

func whoAmIHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(authService).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodWhoAmI}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(authService).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func listPermissionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(authService).ListPermissions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodListPermissions}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(authService).ListPermissions(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listAccountsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(authService).ListAccounts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodListAccounts}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(authService).ListAccounts(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
