package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"google.golang.org/protobuf/encoding/protojson"
	_ "modernc.org/sqlite"

	"github.com/funvibe/rol/internal/config"
	"github.com/funvibe/rol/internal/heapdump"
	"github.com/funvibe/rol/internal/logger"
	"github.com/funvibe/rol/internal/rpc"
	"github.com/funvibe/rol/pkg/rol"
)

const usage = `Usage: rol <command> [options] [arguments]

Commands:
  eval <expr>              compile and run an expression
  run <file>               compile and run every expression in a source file
  ir <expr>                print the IR built for an expression
  trace <expr> <dsn>       run an expression and write a heap snapshot
  snapshots <dsn>          list the snapshots stored in a database
  serve <addr>             serve the Evaluator gRPC service
  call <addr> <expr>       evaluate on a remote server
  schema                   print the Evaluator service schema
  help                     show this message

Options:
  -config <path>   configuration file (default: nearest rol.yaml)
  -debug           log at debug level
  -driver <name>   database driver for trace and snapshots: sqlite or mysql
  -label <text>    snapshot label for trace
  -ir              with call: print the remote IR listing instead
  -stats           with call: print remote heap statistics
  -json            with schema: print the compiled descriptor as JSON

Arguments after -- are never read as options.
`

type options struct {
	configPath string
	debug      bool
	driver     string
	label      string
	ir         bool
	stats      bool
	json       bool
}

func parseOptions(args []string) (options, []string, error) {
	var opts options
	fs := flag.NewFlagSet("rol", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configPath, "config", "", "")
	fs.BoolVar(&opts.debug, "debug", false, "")
	fs.StringVar(&opts.driver, "driver", "sqlite", "")
	fs.StringVar(&opts.label, "label", "", "")
	fs.BoolVar(&opts.ir, "ir", false, "")
	fs.BoolVar(&opts.stats, "stats", false, "")
	fs.BoolVar(&opts.json, "json", false, "")

	// Options may follow positional arguments. Everything after -- and
	// any negative number is positional.
	var positional []string
	for len(args) > 0 {
		if args[0] == "--" {
			positional = append(positional, args[1:]...)
			break
		}
		if isNegativeNumber(args[0]) {
			positional = append(positional, args[0])
			args = args[1:]
			continue
		}
		end := 1
		for end < len(args) && args[end] != "--" && !isNegativeNumber(args[end]) {
			end++
		}
		if err := fs.Parse(args[:end]); err != nil {
			return opts, nil, err
		}
		next := fs.Args()
		if len(next) > 0 {
			positional = append(positional, next[0])
			next = next[1:]
		}
		args = append(append([]string(nil), next...), args[end:]...)
	}
	return opts, positional, nil
}

func isNegativeNumber(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	c := arg[1]
	return (c >= '0' && c <= '9') || c == '.'
}

func loadConfig(opts options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return config.Default(), nil
		}
		path, err = config.FindConfig(wd)
		if err != nil {
			return nil, err
		}
		if path == "" {
			return config.Default(), nil
		}
	}
	return config.LoadConfig(path)
}

func newSession(opts options) (*rol.Session, *slog.Logger, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	log := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return rol.New(rol.WithConfig(cfg), rol.WithLogger(log)), log, nil
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(os.Stderr, "Internal error: %v\n", r)
			fmt.Fprintln(os.Stderr, "This is a bug. Please report it.")
			os.Exit(1)
		}
	}()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Print(usage)
		return
	}

	opts, args, err := parseOptions(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n%s", err, usage)
		os.Exit(2)
	}
	if err := dispatch(cmd, opts, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("wrong number of arguments")

func dispatch(cmd string, opts options, args []string) error {
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s: %w (see rol help)", cmd, errUsage)
		}
		return nil
	}
	switch cmd {
	case "eval":
		if len(args) == 0 {
			return need(1)
		}
		return handleEval(opts, strings.Join(args, " "))
	case "run":
		if err := need(1); err != nil {
			return err
		}
		return handleRun(opts, args[0])
	case "ir":
		if len(args) == 0 {
			return need(1)
		}
		return handleIR(opts, strings.Join(args, " "))
	case "trace":
		if err := need(2); err != nil {
			return err
		}
		return handleTrace(opts, args[0], args[1])
	case "snapshots":
		if err := need(1); err != nil {
			return err
		}
		return handleSnapshots(opts, args[0])
	case "serve":
		if err := need(1); err != nil {
			return err
		}
		return handleServe(opts, args[0])
	case "call":
		if opts.stats {
			if err := need(1); err != nil {
				return err
			}
			return handleCall(opts, args[0], "")
		}
		if err := need(2); err != nil {
			return err
		}
		return handleCall(opts, args[0], args[1])
	case "schema":
		return handleSchema(opts)
	}
	return fmt.Errorf("unknown command %q (see rol help)", cmd)
}

func handleEval(opts options, src string) error {
	s, _, err := newSession(opts)
	if err != nil {
		return err
	}
	v, err := s.Eval(src)
	if err != nil {
		return err
	}
	fmt.Println(colorize(s.Kind(v), s.Format(v)))
	return nil
}

func isSourceFile(path string) bool {
	for _, ext := range config.SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func handleRun(opts options, path string) error {
	if !isSourceFile(path) {
		return fmt.Errorf("%s: not a source file (expected %s)", path, strings.Join(config.SourceFileExtensions, ", "))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s, _, err := newSession(opts)
	if err != nil {
		return err
	}
	v, err := s.Eval(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	fmt.Println(colorize(s.Kind(v), s.Format(v)))
	return nil
}

func handleIR(opts options, src string) error {
	s, _, err := newSession(opts)
	if err != nil {
		return err
	}
	listing, err := s.Listing(src)
	if err != nil {
		return err
	}
	fmt.Print(listing)
	return nil
}

func handleTrace(opts options, src, dsn string) error {
	s, _, err := newSession(opts)
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, err := heapdump.Open(ctx, opts.driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := s.Eval(src)
	if err != nil {
		return err
	}
	label := opts.label
	if label == "" {
		label = src
	}
	snap, err := s.Snapshot(ctx, db, label)
	if err != nil {
		return err
	}
	fmt.Println(colorize(s.Kind(v), s.Format(v)))
	fmt.Printf("snapshot %s: %d records, %d reachable, %d bytes\n", snap.ID, snap.Records, snap.Reachable, snap.Bytes)
	return nil
}

func handleSnapshots(opts options, dsn string) error {
	ctx := context.Background()
	db, err := heapdump.Open(ctx, opts.driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	snaps, err := heapdump.List(ctx, db)
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		fmt.Printf("%s  %s  %5d records  %5d reachable  %q\n",
			snap.ID, snap.TakenAt.Format(time.RFC3339), snap.Records, snap.Reachable, snap.Label)
	}
	return nil
}

func handleServe(opts options, addr string) error {
	s, log, err := newSession(opts)
	if err != nil {
		return err
	}
	srv, err := rpc.NewServer(rol.NewService(s), log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.Stop()
	}()
	return srv.ListenAndServe(addr)
}

func handleCall(opts options, addr, src string) error {
	client, err := rpc.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case opts.stats:
		st, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("live=%d bytes=%d functions=%d\n", st.Live, st.Bytes, st.Functions)
	case opts.ir:
		listing, err := client.Listing(ctx, src)
		if err != nil {
			return err
		}
		fmt.Print(listing)
	default:
		res, err := client.Eval(ctx, src)
		if err != nil {
			return err
		}
		fmt.Println(colorize(res.Kind, res.Value))
	}
	return nil
}

func handleSchema(opts options) error {
	if !opts.json {
		fmt.Print(rpc.Schema)
		return nil
	}
	fdp, err := rpc.DescriptorProto()
	if err != nil {
		return err
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(fdp)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
