package rol_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/funvibe/rol/internal/compiler"
	"github.com/funvibe/rol/internal/config"
	"github.com/funvibe/rol/internal/heapdump"
	"github.com/funvibe/rol/internal/lexer"
	"github.com/funvibe/rol/internal/parser"
	"github.com/funvibe/rol/internal/value"
	"github.com/funvibe/rol/pkg/rol"
)

func TestEval(t *testing.T) {
	tests := []struct {
		src  string
		want string
		kind string
	}{
		{"(+ 1 2)", "3", "int"},
		{"(/ 1 2)", "0.5", "float"},
		{"(* 2.0 3)", "6.0", "float"},
		{"(let ((x 5)) (* x x))", "25", "int"},
		{`(if (< 1 2) "yes" "no")`, "yes", "string"},
		{"(not ())", "true", "bool"},
		{"(+ 1 nil)", "none", "none"},
		{"1 2 (+ 40 2)", "42", "int"},
		{"(% 7 3) ; trailing comment", "1", "int"},
	}
	s := rol.New()
	for _, tt := range tests {
		v, err := s.Eval(tt.src)
		if err != nil {
			t.Errorf("Eval(%q): %v", tt.src, err)
			continue
		}
		if got := s.Format(v); got != tt.want {
			t.Errorf("Eval(%q) = %s, want %s", tt.src, got, tt.want)
		}
		if got := s.Kind(v); got != tt.kind {
			t.Errorf("Kind(%q) = %s, want %s", tt.src, got, tt.kind)
		}
	}
}

func TestDefineGlobals(t *testing.T) {
	s := rol.New()
	if err := s.Define("x", value.Int(10)); err != nil {
		t.Fatalf("Define: %v", err)
	}
	v, err := s.Eval("(+ x 1)")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if s.Format(v) != "11" {
		t.Errorf("(+ x 1) = %s", s.Format(v))
	}

	prog, err := s.Compile("(* x 2)")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := s.Define("x", value.Int(21)); err != nil {
		t.Fatalf("redefine: %v", err)
	}
	if got := s.Format(prog.Run()); got != "42" {
		t.Errorf("after redefine = %s, want 42", got)
	}

	// A new name rebuilds the frame; earlier programs keep their slots.
	if err := s.Define("y", value.Float(0.5)); err != nil {
		t.Fatalf("Define y: %v", err)
	}
	if got := s.Format(prog.Run()); got != "42" {
		t.Errorf("after new global = %s, want 42", got)
	}
	v, err = s.Eval("(+ x y)")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if s.Format(v) != "21.5" {
		t.Errorf("(+ x y) = %s", s.Format(v))
	}
	if got := s.Globals(); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("Globals() = %v", got)
	}
	if got, ok := s.Lookup("y"); !ok || got != value.Float(0.5) {
		t.Errorf("Lookup(y) = %v, %v", got, ok)
	}
}

func TestDefineReservedNames(t *testing.T) {
	s := rol.New()
	for _, name := range []string{"+", "not", "let", "lambda", "true", "nil"} {
		if err := s.Define(name, value.Int(1)); !errors.Is(err, rol.ErrReservedName) {
			t.Errorf("Define(%q) = %v, want ErrReservedName", name, err)
		}
	}
}

func TestBindAndEvalGo(t *testing.T) {
	s := rol.New()
	if err := s.Bind("name", "rol"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := s.Bind("xs", []interface{}{1, 2.5, "a", nil, true}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	got, err := s.EvalGo("xs")
	if err != nil {
		t.Fatalf("EvalGo: %v", err)
	}
	want := []interface{}{1, 2.5, "a", nil, true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EvalGo(xs) = %#v, want %#v", got, want)
	}
	got, err = s.EvalGo(`(= name "rol")`)
	if err != nil {
		t.Fatalf("EvalGo: %v", err)
	}
	if got != true {
		t.Errorf("(= name \"rol\") = %v", got)
	}

	if err := s.Bind("big", int64(1)<<40); err == nil {
		t.Error("expected out of range error")
	}
	if err := s.Bind("ch", make(chan int)); err == nil {
		t.Error("expected conversion error")
	}
}

func TestFrontEndErrors(t *testing.T) {
	tests := []struct {
		src  string
		kind error
	}{
		{"(+ 1", parser.ErrUnexpectedEOF},
		{")", parser.ErrUnexpectedToken},
		{"(let ((1 2)) 3)", parser.ErrInvalidSpecialForm},
		{"q", compiler.ErrUnbound},
		{"(+ 1)", compiler.ErrArity},
		{"(lambda (x) x)", compiler.ErrUnimplemented},
		{"", rol.ErrEmptyProgram},
		{"  ; nothing", rol.ErrEmptyProgram},
	}
	s := rol.New()
	for _, tt := range tests {
		_, err := s.Eval(tt.src)
		if !errors.Is(err, tt.kind) {
			t.Errorf("Eval(%q) = %v, want %v", tt.src, err, tt.kind)
		}
	}

	_, err := s.Eval(`"open`)
	var lexErr *lexer.Error
	if !errors.As(err, &lexErr) {
		t.Fatalf("expected lexer error, got %v", err)
	}
	if lexErr.Line != 1 || lexErr.Column != 1 {
		t.Errorf("lexer error at %d:%d", lexErr.Line, lexErr.Column)
	}
}

func TestCollect(t *testing.T) {
	s := rol.New()
	str := s.Heap().NewString("temporary")
	if err := s.Define("s", str); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Eval("(let ((a 1)) s)"); err != nil {
		t.Fatal(err)
	}
	// The let frame is garbage; the string is still a global and a result.
	st := s.Collect()
	if st.Freed != 1 {
		t.Errorf("first collect freed %d, want 1", st.Freed)
	}

	s.DropResults()
	if err := s.Define("s", value.Int(1)); err != nil {
		t.Fatal(err)
	}
	st = s.Collect()
	if st.Freed != 1 {
		t.Errorf("second collect freed %d, want 1", st.Freed)
	}
	if s.Heap().Live(mustHandle(t, str)) {
		t.Error("unreachable string survived")
	}
	v, err := s.Eval("s")
	if err != nil {
		t.Fatal(err)
	}
	if s.Format(v) != "1" {
		t.Errorf("s = %s", s.Format(v))
	}
}

func mustHandle(t *testing.T, v value.Var) value.Handle {
	t.Helper()
	hd, ok := v.AsHandle()
	if !ok {
		t.Fatalf("%v is not a heap value", v)
	}
	return hd
}

func TestCollectAfterEval(t *testing.T) {
	cfg := config.Default()
	cfg.GC.CollectAfterEval = true
	s := rol.New(rol.WithConfig(cfg))
	if _, err := s.Eval("(let ((a 1) (b 2)) (+ a b))"); err != nil {
		t.Fatal(err)
	}
	if live := s.Heap().Stats().Live; live != 0 {
		t.Errorf("live records after eval = %d, want 0", live)
	}
}

func TestStringConstantsSurviveCollection(t *testing.T) {
	s := rol.New()
	prog, err := s.Compile(`"kept"`)
	if err != nil {
		t.Fatal(err)
	}
	s.Collect()
	if got := s.Format(prog.Run()); got != "kept" {
		t.Errorf("constant after collect = %q", got)
	}
	if names := prog.Names(); len(names) != 1 || !strings.HasPrefix(names[0], config.CompiledFuncPrefix) {
		t.Errorf("Names() = %v", names)
	}
}

func TestListing(t *testing.T) {
	s := rol.New()
	listing, err := s.Listing("(+ 1 2) (not true)")
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if n := strings.Count(listing, "function %"); n != 2 {
		t.Errorf("listing has %d functions:\n%s", n, listing)
	}
	if !strings.Contains(listing, "rt_truthy") {
		t.Errorf("listing does not call rt_truthy:\n%s", listing)
	}
	if _, err := s.Listing("(+ q 1)"); !errors.Is(err, compiler.ErrUnbound) {
		t.Errorf("Listing(unbound) = %v", err)
	}
}

func TestListingReleasesConstants(t *testing.T) {
	s := rol.New()
	s.Collect()
	before := s.Heap().Stats().Live
	for i := 0; i < 100; i++ {
		if _, err := s.Listing(`"a" (if 1 "b" "c")`); err != nil {
			t.Fatalf("Listing: %v", err)
		}
	}
	if live := s.Heap().Stats().Live; live != before {
		t.Errorf("live records after listings = %d, want %d", live, before)
	}
	s.DropResults()
	s.Collect()
	if live := s.Heap().Stats().Live; live != before {
		t.Errorf("live records after collect = %d, want %d", live, before)
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	db, err := heapdump.Open(ctx, "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	s := rol.New()
	if err := s.Bind("xs", []interface{}{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	s.Heap().NewString("garbage")
	if _, err := s.Eval("xs"); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Snapshot(ctx, db, "test")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	// list, two elements, global frame, garbage string
	if snap.Records != 5 || snap.Reachable != 4 {
		t.Errorf("snapshot = %d records, %d reachable", snap.Records, snap.Reachable)
	}
}

func TestService(t *testing.T) {
	s := rol.New()
	svc := rol.NewService(s)
	ctx := context.Background()

	res, err := svc.Evaluate(ctx, `(if 0 "a" "b")`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Value != "b" || res.Kind != "string" {
		t.Errorf("Evaluate = %+v", res)
	}
	if _, err := svc.Evaluate(ctx, "(foo 1)"); err == nil {
		t.Error("expected error for unknown function")
	}
	if st := svc.Stats(); st.Functions != 1 {
		t.Errorf("Stats().Functions = %d, want 1", st.Functions)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := svc.Evaluate(cancelled, "1"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Evaluate = %v", err)
	}
}
