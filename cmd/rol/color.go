package main

import (
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

var (
	colorOnce sync.Once
	colorOn   bool
)

func useColor() bool {
	colorOnce.Do(func() {
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return
		}
		if os.Getenv("TERM") == "dumb" {
			return
		}
		colorOn = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	})
	return colorOn
}

var kindColors = map[string]string{
	"none":   "\x1b[90m",
	"bool":   "\x1b[35m",
	"int":    "\x1b[36m",
	"float":  "\x1b[36m",
	"string": "\x1b[32m",
	"list":   "\x1b[33m",
}

// colorize wraps text in the colour for a value kind when stdout is a terminal.
func colorize(kind, text string) string {
	code, ok := kindColors[kind]
	if !ok || !useColor() {
		return text
	}
	return code + text + "\x1b[0m"
}
