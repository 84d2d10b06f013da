// Package grpcserver implements the ymm.v1.Compatibility gRPC service.
//
// It delegates all business logic to ymm.Service and handles only the gRPC
// transport concerns: metadata extraction, error mapping and conversion
// between domain values and google.protobuf.Struct messages.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"ymmfilter/compat-service/internal/catalog"
	"ymmfilter/compat-service/internal/compat"
	"ymmfilter/compat-service/internal/credential"
	"ymmfilter/compat-service/internal/model"
	"ymmfilter/compat-service/internal/ymm"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ymm.v1.Compatibility"

// CompatibilityServer is the server API of ymm.v1.Compatibility. Requests
// and responses are google.protobuf.Struct values.
type CompatibilityServer interface {
	GetMakes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetModels(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetYearRanges(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchCompatible(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes ymm.v1.Compatibility for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CompatibilityServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetMakes", CompatibilityServer.GetMakes),
		unary("GetModels", CompatibilityServer.GetModels),
		unary("GetYearRanges", CompatibilityServer.GetYearRanges),
		unary("SearchCompatible", CompatibilityServer.SearchCompatible),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ymm/v1/compatibility.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv CompatibilityServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type rpc func(CompatibilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call rpc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CompatibilityServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(CompatibilityServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// Server implements CompatibilityServer.
type Server struct {
	svc      *ymm.Service
	resolver *credential.Resolver
}

// NewServer constructs a gRPC Server backed by the given ymm.Service.
func NewServer(svc *ymm.Service, resolver *credential.Resolver) *Server {
	return &Server{svc: svc, resolver: resolver}
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// GetMakes returns {"makes": [...]}.
func (s *Server) GetMakes(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	cred, err := s.credentialFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	makes, err := s.svc.GetMakes(ctx, cred)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(map[string]any{"makes": makes})
}

// GetModels expects {"make"} and returns {"models": [...]}.
func (s *Server) GetModels(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cred, err := s.credentialFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	models, err := s.svc.GetModels(ctx, cred, stringField(req, "make"))
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(map[string]any{"models": models})
}

// GetYearRanges expects {"make", "model"} and returns the year summary.
func (s *Server) GetYearRanges(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cred, err := s.credentialFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	years, err := s.svc.GetYearRanges(ctx, cred, stringField(req, "make"), stringField(req, "model"))
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(years)
}

// SearchCompatible expects {"year", "make", "model", "page", "limit"} and
// returns one page of compatible items.
func (s *Server) SearchCompatible(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cred, err := s.credentialFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.SearchCompatible(ctx, cred, model.CompatibilityQuery{
		Year:  intField(req, "year"),
		Make:  stringField(req, "make"),
		Model: stringField(req, "model"),
	}, intField(req, "page"), intField(req, "limit"))
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(res)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func firstMD(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// credentialFromCtx resolves the store from x-store-hash / x-auth-token /
// x-store metadata.
func (s *Server) credentialFromCtx(ctx context.Context) (model.StoreCredential, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return model.StoreCredential{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	cred, err := s.resolver.Resolve(ctx, credential.Sources{
		StoreID:     firstMD(md, "x-store-hash"),
		AccessToken: firstMD(md, "x-auth-token"),
		StoreIDHint: firstMD(md, "x-store"),
	})
	if err != nil {
		return model.StoreCredential{}, toGRPCError(err)
	}
	return cred, nil
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	if errors.Is(err, credential.ErrUnresolved) || errors.Is(err, catalog.ErrIncompleteCredential) {
		return status.Error(codes.Unauthenticated, "unauthenticated")
	}
	var ve *compat.ValidationError
	if errors.As(err, &ve) {
		return status.Error(codes.InvalidArgument, ve.Msg)
	}
	var ue *catalog.UpstreamError
	var te *catalog.TransportError
	if errors.Is(err, catalog.ErrNoPages) || errors.As(err, &ue) || errors.As(err, &te) {
		return status.Error(codes.Unavailable, "upstream catalog unavailable")
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, "internal server error")
}

// toStruct converts a JSON-serialisable value to a Struct through its JSON
// form, so field names match the HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func stringField(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.GetFields()[name].GetStringValue())
}

func intField(s *structpb.Struct, name string) int {
	if s == nil {
		return 0
	}
	return int(s.GetFields()[name].GetNumberValue())
}
