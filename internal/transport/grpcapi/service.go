// Package grpcapi exposes the plugin hook table as a gRPC service whose
// messages are google.protobuf.Struct values.
package grpcapi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/stopgate/internal/hooks"
	"github.com/danielpatrickdp/stopgate/internal/logging"
)

// ServiceName is the fully qualified service name.
const ServiceName = "stopgate.v1.Plugin"

// #region methods

// methods maps RPC names to plugin hooks.
var methods = []struct {
	rpc  string
	hook string
}{
	{"Event", hooks.HookEvent},
	{"ChatMessage", hooks.HookChatMessage},
	{"Stop", hooks.HookStop},
	{"SystemTransform", hooks.HookSystemTransform},
	{"Compaction", hooks.HookCompaction},
	{"ToolExecuted", hooks.HookToolExecuted},
}

// RPCFor returns the RPC name serving hook.
func RPCFor(hook string) (string, bool) {
	for _, m := range methods {
		if m.hook == hook {
			return m.rpc, true
		}
	}
	return "", false
}

// FullMethod returns the gRPC path for rpc.
func FullMethod(rpc string) string {
	return "/" + ServiceName + "/" + rpc
}

// #endregion methods

// #region server

// PluginServer handles one hook invocation.
type PluginServer interface {
	Call(ctx context.Context, hook string, req *structpb.Struct) (*structpb.Struct, error)
}

// Server adapts a hooks.Plugin to PluginServer.
type Server struct {
	plugin *hooks.Plugin
}

// NewServer wraps p.
func NewServer(p *hooks.Plugin) *Server {
	return &Server{plugin: p}
}

// Call decodes {input, parts}, runs the hook and encodes the response.
func (s *Server) Call(ctx context.Context, hook string, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	input := map[string]any{}
	if v := fields["input"].GetStructValue(); v != nil {
		input = v.AsMap()
	}
	var buf hooks.Buffer
	for _, p := range fields["parts"].GetListValue().GetValues() {
		buf.Parts = append(buf.Parts, p.GetStringValue())
	}

	resp := s.plugin.Call(ctx, hook, input, &buf)

	parts := make([]any, len(buf.Parts))
	for i, p := range buf.Parts {
		parts[i] = p
	}
	out := map[string]any{"parts": parts}
	if resp.Decision != "" {
		out["decision"] = resp.Decision
		out["reason"] = resp.Reason
		out["attempt"] = resp.Attempt
	}
	st, err := structpb.NewStruct(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return st, nil
}

// ServiceDesc describes the plugin service for grpc.Server.RegisterService.
var ServiceDesc = buildDesc()

func buildDesc() grpc.ServiceDesc {
	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*PluginServer)(nil),
		Metadata:    "stopgate/v1/plugin.proto",
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.rpc,
			Handler:    unaryHandler(m.rpc, m.hook),
		})
	}
	return desc
}

func unaryHandler(rpc, hook string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return srv.(PluginServer).Call(ctx, hook, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(rpc)}
		handler := func(ctx context.Context, req any) (any, error) {
			return srv.(PluginServer).Call(ctx, hook, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Register adds the plugin service to s.
func Register(s *grpc.Server, srv PluginServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NewGRPCServer builds a server with logging and panic recovery.
func NewGRPCServer(log *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(recoverInterceptor(logging.OrNop(log)), logInterceptor(logging.OrNop(log))))
	return grpc.NewServer(opts...)
}

func logInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("rpc",
			zap.String("method", info.FullMethod),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return resp, err
	}
}

func recoverInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("rpc panicked", zap.String("method", info.FullMethod), zap.Any("panic", r))
				err = status.Error(codes.Internal, fmt.Sprint(r))
			}
		}()
		return handler(ctx, req)
	}
}

// #endregion server
