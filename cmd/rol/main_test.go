package main

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		args []string
		want options
		pos  []string
	}{
		{[]string{"(+ 1 2)"}, options{driver: "sqlite"}, []string{"(+ 1 2)"}},
		{[]string{"-driver", "mysql", "1", "dsn"}, options{driver: "mysql"}, []string{"1", "dsn"}},
		{[]string{"1", "dsn", "-label", "boot", "-debug"}, options{driver: "sqlite", label: "boot", debug: true}, []string{"1", "dsn"}},
		{[]string{"localhost:1", "-stats"}, options{driver: "sqlite", stats: true}, []string{"localhost:1"}},
		{[]string{"-5"}, options{driver: "sqlite"}, []string{"-5"}},
		{[]string{"-debug", "-2.5", "-label", "x"}, options{driver: "sqlite", debug: true, label: "x"}, []string{"-2.5"}},
		{[]string{"--", "-nope", "(- 1)"}, options{driver: "sqlite"}, []string{"-nope", "(- 1)"}},
		{[]string{"-ir", "--", "-debug"}, options{driver: "sqlite", ir: true}, []string{"-debug"}},
		{[]string{"(+", "1", "--", "2)"}, options{driver: "sqlite"}, []string{"(+", "1", "2)"}},
	}
	for _, tt := range tests {
		opts, pos, err := parseOptions(tt.args)
		if err != nil {
			t.Errorf("parseOptions(%q): %v", tt.args, err)
			continue
		}
		if opts != tt.want {
			t.Errorf("parseOptions(%q) = %+v, want %+v", tt.args, opts, tt.want)
		}
		if !reflect.DeepEqual(pos, tt.pos) {
			t.Errorf("positional = %q, want %q", pos, tt.pos)
		}
	}
	if _, _, err := parseOptions([]string{"-nope"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestDispatchArgumentCounts(t *testing.T) {
	tests := []struct {
		cmd  string
		args []string
	}{
		{"eval", nil},
		{"run", nil},
		{"trace", []string{"1"}},
		{"serve", nil},
		{"call", []string{"addr"}},
	}
	for _, tt := range tests {
		err := dispatch(tt.cmd, options{driver: "sqlite"}, tt.args)
		if !errors.Is(err, errUsage) {
			t.Errorf("dispatch(%s, %q) = %v, want usage error", tt.cmd, tt.args, err)
		}
	}
	if err := dispatch("frobnicate", options{}, nil); err == nil {
		t.Error("expected unknown command error")
	}
	if err := dispatch("run", options{}, []string{"notes.txt"}); err == nil {
		t.Error("expected error for non-source file")
	}
}

func TestColorizeUnknownKind(t *testing.T) {
	if got := colorize("environment", "<environment>"); got != "<environment>" {
		t.Errorf("colorize = %q", got)
	}
}
