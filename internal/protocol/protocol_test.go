package protocol

import (
	"math"
	"testing"

	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/symbol"
	"github.com/funvibe/rol/internal/value"
)

func TestEveryTagHasATable(t *testing.T) {
	types := []value.Type{
		value.TypeNone, value.TypeBool, value.TypeInt, value.TypeFloat, value.TypeSymbol,
		value.TypePointer, value.TypeString, value.TypeList, value.TypeEnvironment, value.TypeClosure,
	}
	for _, ty := range types {
		p := Get(ty)
		if p.ToString == nil || p.Hash == nil || p.Equals == nil || p.Compare == nil ||
			p.IsTruthy == nil || p.Clone == nil || p.Drop == nil {
			t.Errorf("%s table is missing a required operation", ty)
		}
		if p.Name != ty.String() {
			t.Errorf("Get(%s).Name = %q", ty, p.Name)
		}
	}
}

func TestOptionalOperations(t *testing.T) {
	if Get(value.TypeBool).Length != nil {
		t.Errorf("bool has a length")
	}
	if Get(value.TypeInt).Get != nil {
		t.Errorf("int is indexable")
	}
	if Get(value.TypeList).Length == nil || Get(value.TypeString).Get == nil {
		t.Errorf("sequences lost their optional operations")
	}
	if _, ok := Len(nil, value.Int(3)); ok {
		t.Errorf("Len on int reported ok")
	}
}

func TestToString(t *testing.T) {
	h := heap.New(8)
	tests := []struct {
		v    value.Var
		want string
	}{
		{value.None(), "none"},
		{value.Bool(true), "true"},
		{value.Int(-7), "-7"},
		{value.Float(3), "3.0"},
		{value.Float(2.5), "2.5"},
		{symbol.Mk("alpha").Var(), "alpha"},
		{h.NewString("hello"), "hello"},
		{h.NewList([]value.Var{value.Int(1), h.NewString("a"), value.Float(0.5)}), "[1, a, 0.5]"},
		{h.NewList(nil), "[]"},
	}
	for _, tt := range tests {
		if got := ToString(h, tt.v); got != tt.want {
			t.Errorf("ToString(%s) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestTruthy(t *testing.T) {
	h := heap.New(8)
	tests := []struct {
		name string
		v    value.Var
		want bool
	}{
		{"none", value.None(), false},
		{"false", value.Bool(false), false},
		{"true", value.Bool(true), true},
		{"int zero", value.Int(0), false},
		{"int", value.Int(-1), true},
		{"float zero", value.Float(0), false},
		{"negative zero", value.Float(math.Copysign(0, -1)), false},
		{"nan", value.Float(math.NaN()), false},
		{"float", value.Float(1), true},
		{"symbol", symbol.Mk("x").Var(), true},
		{"empty string", h.NewString(""), false},
		{"string", h.NewString("s"), true},
		{"empty list", h.NewList(nil), false},
		{"list", h.NewList([]value.Var{value.None()}), true},
		{"environment", value.Environment(h.NewFrame(0, value.None())), true},
	}
	for _, tt := range tests {
		if got := Truthy(h, tt.v); got != tt.want {
			t.Errorf("Truthy(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEqualAndCompare(t *testing.T) {
	h := heap.New(8)
	a := h.NewString("abc")
	b := h.NewString("abc")
	c := h.NewString("abd")

	if !Equal(h, a, b) {
		t.Errorf("equal strings in distinct records compare unequal")
	}
	if Equal(h, a, c) {
		t.Errorf("different strings compare equal")
	}
	if !Equal(h, value.Int(2), value.Float(2)) {
		t.Errorf("2 != 2.0")
	}
	if Equal(h, value.Int(0), value.Bool(false)) {
		t.Errorf("0 == false")
	}
	if Hash(h, a) != Hash(h, b) {
		t.Errorf("equal strings hash differently")
	}
	if Hash(h, value.Float(0)) != Hash(h, value.Float(math.Copysign(0, -1))) {
		t.Errorf("0.0 and -0.0 hash differently")
	}
	for _, n := range []int32{1, -3, math.MaxInt32, math.MinInt32} {
		if Hash(h, value.Int(n)) != Hash(h, value.Float(float64(n))) {
			t.Errorf("%d and %d.0 hash differently", n, n)
		}
	}
	if xs, ys := h.NewList([]value.Var{a, value.Int(1)}), h.NewList([]value.Var{b, value.Float(1)}); !Equal(h, xs, ys) || Hash(h, xs) != Hash(h, ys) {
		t.Errorf("equal lists hash differently")
	}

	tests := []struct {
		a, b value.Var
		want int
		ok   bool
	}{
		{value.Int(1), value.Int(2), -1, true},
		{value.Float(2), value.Int(1), 1, true},
		{a, c, -1, true},
		{a, b, 0, true},
		{value.Bool(true), value.Bool(false), 1, true},
		{value.Int(1), a, 0, false},
		{h.NewList([]value.Var{value.Int(1), value.Int(2)}), h.NewList([]value.Var{value.Int(1)}), 1, true},
	}
	for i, tt := range tests {
		got, ok := Compare(h, tt.a, tt.b)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("case %d: Compare = %d, %v; want %d, %v", i, got, ok, tt.want, tt.ok)
		}
	}
}

// cycle builds a = [b], b = [a].
func cycle(t *testing.T, h *heap.Heap) (value.Var, value.Var) {
	t.Helper()
	a := h.NewList([]value.Var{value.None()})
	b := h.NewList([]value.Var{a})
	hd, _ := a.AsListHandle()
	vec, ok := h.LookupVector(hd)
	if !ok || !vec.Set(0, b) {
		t.Fatal("could not close the cycle")
	}
	return a, b
}

func TestListCycles(t *testing.T) {
	h := heap.New(8)
	a, b := cycle(t, h)
	if got := ToString(h, a); got != "[[[...]]]" {
		t.Errorf("ToString(a) = %q", got)
	}
	if got := ToString(h, b); got != "[[[...]]]" {
		t.Errorf("ToString(b) = %q", got)
	}

	self := h.NewList([]value.Var{value.Int(1)})
	hd, _ := self.AsListHandle()
	vec, _ := h.LookupVector(hd)
	vec.Set(0, self)
	if got := ToString(h, self); got != "[[...]]" {
		t.Errorf("ToString(self) = %q", got)
	}

	c, d := cycle(t, h)
	if !Equal(h, a, c) || !Equal(h, b, d) {
		t.Errorf("cycles of the same shape compare unequal")
	}
	if got, ok := Compare(h, a, c); !ok || got != 0 {
		t.Errorf("Compare(a, c) = %d, %v", got, ok)
	}
	_ = Hash(h, a)

	longer := h.NewList([]value.Var{b, value.Int(1)})
	if Equal(h, a, longer) {
		t.Errorf("lists of different lengths compare equal")
	}
	if got, _ := Compare(h, a, longer); got != -1 {
		t.Errorf("Compare(a, longer) = %d", got)
	}
}

func TestListIndexingAndIteration(t *testing.T) {
	h := heap.New(8)
	list := h.NewList([]value.Var{value.Int(10), value.Int(20), value.Int(30)})
	p := For(list)

	if n, _ := Len(h, list); n != 3 {
		t.Fatalf("Len = %d", n)
	}
	if got, _ := Index(h, list, value.Int(1)); got != value.Int(20) {
		t.Errorf("list[1] = %s", got)
	}
	if got, _ := Index(h, list, value.Int(3)); !got.IsNone() {
		t.Errorf("list[3] = %s, want none", got)
	}
	if !p.Put(h, list, value.Int(0), value.Int(99)) {
		t.Fatalf("Put failed")
	}
	if got, _ := Index(h, list, value.Int(0)); got != value.Int(99) {
		t.Errorf("list[0] after Put = %s", got)
	}

	var keys []int32
	for k := p.Next(h, list, value.None()); !k.IsNone(); k = p.Next(h, list, k) {
		i, _ := k.AsInt()
		keys = append(keys, i)
	}
	if len(keys) != 3 || keys[0] != 0 || keys[2] != 2 {
		t.Errorf("keys = %v", keys)
	}

	clone := p.Clone(h, list)
	if clone == list {
		t.Errorf("list clone shares the record")
	}
	if !Equal(h, clone, list) {
		t.Errorf("clone differs from original")
	}
	p.Drop(h, clone)
	if _, ok := h.ListOf(clone); ok {
		t.Errorf("Drop did not free the clone")
	}
}

func TestStringIndexing(t *testing.T) {
	h := heap.New(8)
	s := h.NewString("héllo")
	got, ok := Index(h, s, value.Int(1))
	if !ok {
		t.Fatalf("string is not indexable")
	}
	if str, _ := h.StringOf(got); str != "é" {
		t.Errorf("s[1] = %q", str)
	}
	if clone := For(s).Clone(h, s); clone != s {
		t.Errorf("string clone should share the immutable record")
	}
}

func TestRegisterReplacesTable(t *testing.T) {
	orig := Get(value.TypePointer)
	defer Register(value.TypePointer, orig)

	custom := *orig
	custom.ToString = func(*heap.Heap, value.Var) string { return "custom" }
	Register(value.TypePointer, &custom)
	if got := ToString(nil, value.Pointer(1)); got != "custom" {
		t.Errorf("ToString = %q", got)
	}
}
