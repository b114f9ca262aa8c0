package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Result is a formatted evaluation result.
type Result struct {
	Value string
	Kind  string
}

type Stats struct {
	Live      int64
	Bytes     int64
	Functions int64
}

// Evaluator is what the server exposes. Calls are serialised by the
// server, so implementations need not be safe for concurrent use.
type Evaluator interface {
	Evaluate(ctx context.Context, src string) (Result, error)
	Listing(ctx context.Context, src string) (string, error)
	Stats() Stats
}

type handlerFunc func(ctx context.Context, in, out *dynamic.Message) error

type Server struct {
	grpc     *grpc.Server
	eval     Evaluator
	logger   *slog.Logger
	mu       sync.Mutex
	handlers map[string]handlerFunc
}

// NewServer registers the Evaluator service backed by eval.
func NewServer(eval Evaluator, logger *slog.Logger, opts ...grpc.ServerOption) (*Server, error) {
	sd, err := service()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		grpc:   grpc.NewServer(opts...),
		eval:   eval,
		logger: logger,
	}
	s.handlers = map[string]handlerFunc{
		"Eval":    s.handleEval,
		"Listing": s.handleListing,
		"Stats":   s.handleStats,
	}

	sdesc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*interface{})(nil),
		Metadata:    sd.GetFile().GetName(),
	}
	for _, md := range sd.GetMethods() {
		if md.IsClientStreaming() || md.IsServerStreaming() {
			continue
		}
		md := md
		sdesc.Methods = append(sdesc.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := dynamic.NewMessage(md.GetInputType())
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(*Server).handleUnary(ctx, md, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPath(md.GetName())}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(*Server).handleUnary(ctx, md, req.(*dynamic.Message))
				}
				return interceptor(ctx, in, info, handler)
			},
		})
	}
	s.grpc.RegisterService(sdesc, s)
	return s, nil
}

func (s *Server) handleUnary(ctx context.Context, md *desc.MethodDescriptor, in *dynamic.Message) (interface{}, error) {
	h, ok := s.handlers[md.GetName()]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", md.GetName())
	}

	out := dynamic.NewMessage(md.GetOutputType())
	s.mu.Lock()
	err := h(ctx, in, out)
	s.mu.Unlock()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.logger.Debug("rpc", "method", md.GetName())
	return out, nil
}

func (s *Server) handleEval(ctx context.Context, in, out *dynamic.Message) error {
	src, err := stringField(in, "source")
	if err != nil {
		return err
	}
	res, err := s.eval.Evaluate(ctx, src)
	if err != nil {
		return out.TrySetFieldByName("error", err.Error())
	}
	if err := out.TrySetFieldByName("value", res.Value); err != nil {
		return err
	}
	return out.TrySetFieldByName("kind", res.Kind)
}

func (s *Server) handleListing(ctx context.Context, in, out *dynamic.Message) error {
	src, err := stringField(in, "source")
	if err != nil {
		return err
	}
	listing, err := s.eval.Listing(ctx, src)
	if err != nil {
		return out.TrySetFieldByName("error", err.Error())
	}
	return out.TrySetFieldByName("ir", listing)
}

func (s *Server) handleStats(_ context.Context, _, out *dynamic.Message) error {
	st := s.eval.Stats()
	for name, v := range map[string]int64{"live": st.Live, "bytes": st.Bytes, "functions": st.Functions} {
		if err := out.TrySetFieldByName(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Serve blocks until lis fails or the server stops.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("serving", "addr", lis.Addr().String(), "service", ServiceName)
	return s.grpc.Serve(lis)
}

// ListenAndServe listens on a TCP address.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(lis)
}

func (s *Server) Stop() { s.grpc.GracefulStop() }

func stringField(msg *dynamic.Message, name string) (string, error) {
	v, err := msg.TryGetFieldByName(name)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s: expected string, got %T", name, v)
	}
	return str, nil
}
