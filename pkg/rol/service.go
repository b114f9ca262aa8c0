package rol

import (
	"context"

	"github.com/funvibe/rol/internal/rpc"
)

// Service exposes a Session as an rpc.Evaluator. Each evaluation drops
// the previous results, so a long-running server does not retain them.
type Service struct {
	s *Session
}

func NewService(s *Session) *Service { return &Service{s: s} }

func (sv *Service) Evaluate(ctx context.Context, src string) (rpc.Result, error) {
	if err := ctx.Err(); err != nil {
		return rpc.Result{}, err
	}
	sv.s.DropResults()
	v, err := sv.s.Eval(src)
	if err != nil {
		return rpc.Result{}, err
	}
	return rpc.Result{Value: sv.s.Format(v), Kind: sv.s.Kind(v)}, nil
}

func (sv *Service) Listing(ctx context.Context, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return sv.s.Listing(src)
}

func (sv *Service) Stats() rpc.Stats {
	hs := sv.s.heap.Stats()
	js := sv.s.compiler.Stats()
	return rpc.Stats{
		Live:      int64(hs.Live),
		Bytes:     int64(hs.Bytes),
		Functions: int64(js.Finalized),
	}
}
