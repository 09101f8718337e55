// spacectl drives a Spaces API server from the command line. Every command
// maps onto one catalog operation and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"spaces/api/internal/codec"
	"spaces/api/internal/ops"
	"spaces/api/internal/transport"
)

type options struct {
	server  string
	token   string
	cbor    bool
	timeout time.Duration
	retries int
	verbose bool

	name  string
	kind  string
	title string
	note  string
	space string
	limit int
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("spacectl", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", envOr("SPACES_SERVER", "http://localhost:8787"), "API base URL")
	flagSet.StringVar(&opts.token, "token", os.Getenv("SPACES_TOKEN"), "bearer token (see: spacectl login)")
	flagSet.BoolVar(&opts.cbor, "cbor", false, "encode requests as CBOR")
	flagSet.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-attempt timeout")
	flagSet.IntVar(&opts.retries, "retries", 3, "maximum attempts for retryable failures")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log each operation to stderr")
	flagSet.StringVar(&opts.name, "name", "", "display name (login)")
	flagSet.StringVar(&opts.kind, "kind", "", "All, Visited or Invited (list)")
	flagSet.StringVar(&opts.title, "title", "", "title of the saved item (add)")
	flagSet.StringVar(&opts.note, "note", "", "message included in sharing emails")
	flagSet.StringVar(&opts.space, "space", "", "limit search to one space")
	flagSet.IntVar(&opts.limit, "limit", 0, "maximum search hits or contact suggestions")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(flagSet)
		return errors.New("a command is required")
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}
	if len(rest)-1 < cmd.minArgs {
		return fmt.Errorf("usage: spacectl %s %s", rest[0], cmd.usage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout*time.Duration(max(opts.retries, 1))+5*time.Second)
	defer cancel()
	out, err := cmd.run(ctx, newEnv(opts), rest[1:])
	if err != nil {
		return err
	}
	return printJSON(out)
}

// env is what a command runs against.
type env struct {
	opts      options
	transport *transport.HTTP
	client    *ops.Client
}

func newEnv(opts options) *env {
	topts := []transport.Option{transport.WithToken(opts.token)}
	if opts.cbor {
		topts = append(topts, transport.WithCodec(codec.CBOR))
	}
	t := transport.NewHTTP(opts.server, topts...)

	cfg := ops.DefaultConfig()
	cfg.Timeout = opts.timeout
	cfg.MaxAttempts = opts.retries
	var clientOpts []ops.Option
	if opts.verbose {
		clientOpts = append(clientOpts, ops.WithEventSink(ops.LogSink))
	}
	return &env{opts: opts, transport: t, client: ops.NewClient(t, cfg, clientOpts...)}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) error {
	if v == nil {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "spacectl - command line client for the Spaces API\n\nUsage: spacectl [flags] <command> [args]\n\nCommands:\n")
	for _, name := range commandNames() {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", flagSet.FlagUsages())
}
