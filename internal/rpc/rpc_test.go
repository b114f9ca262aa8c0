package rpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeEvaluator struct {
	calls int
}

func (f *fakeEvaluator) Evaluate(_ context.Context, src string) (Result, error) {
	f.calls++
	if strings.HasPrefix(src, "bad") {
		return Result{}, errors.New("unbound variable: bad")
	}
	return Result{Value: "<" + src + ">", Kind: "int"}, nil
}

func (f *fakeEvaluator) Listing(_ context.Context, src string) (string, error) {
	f.calls++
	return "function %" + src + "\n", nil
}

func (f *fakeEvaluator) Stats() Stats { return Stats{Live: 3, Bytes: 120, Functions: int64(f.calls)} }

func startServer(t *testing.T, eval Evaluator, opts ...grpc.ServerOption) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, err := NewServer(eval, nil, opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDescriptor(t *testing.T) {
	fd, err := Descriptor()
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	sd := fd.FindService(ServiceName)
	if sd == nil {
		t.Fatalf("service %s missing", ServiceName)
	}
	if got := len(sd.GetMethods()); got != 3 {
		t.Errorf("methods = %d, want 3", got)
	}
	fdp, err := DescriptorProto()
	if err != nil {
		t.Fatalf("DescriptorProto: %v", err)
	}
	if fdp.GetPackage() != "rol" || fdp.GetName() != SchemaFile {
		t.Errorf("descriptor = %s/%s", fdp.GetPackage(), fdp.GetName())
	}
}

func TestEvalRoundTrip(t *testing.T) {
	eval := &fakeEvaluator{}
	client := startServer(t, eval)
	ctx := testContext(t)

	res, err := client.Eval(ctx, "(+ 1 2)")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if res.Value != "<(+ 1 2)>" || res.Kind != "int" {
		t.Errorf("Eval = %+v", res)
	}

	_, err = client.Eval(ctx, "bad")
	if !IsRemote(err) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if err.Error() != "unbound variable: bad" {
		t.Errorf("error = %q", err)
	}
}

func TestListingAndStats(t *testing.T) {
	eval := &fakeEvaluator{}
	client := startServer(t, eval)
	ctx := testContext(t)

	listing, err := client.Listing(ctx, "f")
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if listing != "function %f\n" {
		t.Errorf("Listing = %q", listing)
	}

	st, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Live != 3 || st.Bytes != 120 || st.Functions != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestTransportErrorIsNotRemote(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	lis.Close()
	client, err := Dial("passthrough:///closed", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = client.Eval(ctx, "1")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if IsRemote(err) {
		t.Errorf("transport error reported as remote: %v", err)
	}
}

func TestUnaryInterceptor(t *testing.T) {
	var methods []string
	record := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if _, ok := info.Server.(*Server); !ok {
			t.Errorf("info.Server = %T", info.Server)
		}
		methods = append(methods, info.FullMethod)
		return handler(ctx, req)
	}
	client := startServer(t, &fakeEvaluator{}, grpc.UnaryInterceptor(record))
	ctx := testContext(t)

	res, err := client.Eval(ctx, "1")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if res.Value != "<1>" {
		t.Errorf("Eval through interceptor = %+v", res)
	}
	if _, err := client.Stats(ctx); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := []string{"/rol.Evaluator/Eval", "/rol.Evaluator/Stats"}
	if len(methods) != len(want) || methods[0] != want[0] || methods[1] != want[1] {
		t.Errorf("intercepted %q, want %q", methods, want)
	}
}

func TestInterceptorCanReject(t *testing.T) {
	deny := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return nil, status.Error(codes.PermissionDenied, "denied")
	}
	eval := &fakeEvaluator{}
	client := startServer(t, eval, grpc.UnaryInterceptor(deny))
	_, err := client.Eval(testContext(t), "1")
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("Eval = %v, want PermissionDenied", err)
	}
	if IsRemote(err) {
		t.Error("rejected call reported as remote evaluation error")
	}
	if eval.calls != 0 {
		t.Errorf("evaluator ran %d times", eval.calls)
	}
}
