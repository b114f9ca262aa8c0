package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// RemoteError is an evaluation failure reported by the server.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string { return e.Msg }

// IsRemote reports whether err came from the evaluator rather than the transport.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

type Client struct {
	conn *grpc.ClientConn
}

// Dial connects without transport security. opts are applied after the
// default credentials.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, name string, fields map[string]interface{}) (*dynamic.Message, error) {
	md, err := method(name)
	if err != nil {
		return nil, err
	}
	req := dynamic.NewMessage(md.GetInputType())
	for k, v := range fields {
		if err := req.TrySetFieldByName(k, v); err != nil {
			return nil, fmt.Errorf("build %s request: %w", name, err)
		}
	}
	resp := dynamic.NewMessage(md.GetOutputType())
	if err := c.conn.Invoke(ctx, methodPath(name), req, resp); err != nil {
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return resp, nil
}

func remoteError(resp *dynamic.Message) error {
	msg, err := stringField(resp, "error")
	if err != nil {
		return err
	}
	if msg != "" {
		return &RemoteError{Msg: msg}
	}
	return nil
}

// Eval compiles and runs src on the server.
func (c *Client) Eval(ctx context.Context, src string) (Result, error) {
	resp, err := c.invoke(ctx, "Eval", map[string]interface{}{"source": src})
	if err != nil {
		return Result{}, err
	}
	if err := remoteError(resp); err != nil {
		return Result{}, err
	}
	v, err := stringField(resp, "value")
	if err != nil {
		return Result{}, err
	}
	k, err := stringField(resp, "kind")
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v, Kind: k}, nil
}

// Listing returns the IR the server builds for src.
func (c *Client) Listing(ctx context.Context, src string) (string, error) {
	resp, err := c.invoke(ctx, "Listing", map[string]interface{}{"source": src})
	if err != nil {
		return "", err
	}
	if err := remoteError(resp); err != nil {
		return "", err
	}
	return stringField(resp, "ir")
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	resp, err := c.invoke(ctx, "Stats", nil)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for name, dst := range map[string]*int64{"live": &st.Live, "bytes": &st.Bytes, "functions": &st.Functions} {
		v, err := resp.TryGetFieldByName(name)
		if err != nil {
			return Stats{}, err
		}
		n, ok := v.(int64)
		if !ok {
			return Stats{}, fmt.Errorf("field %s: expected int64, got %T", name, v)
		}
		*dst = n
	}
	return st, nil
}
