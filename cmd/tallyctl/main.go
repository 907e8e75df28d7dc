package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/civic-tally/tally/cmd/tallyctl/cli"
)

const usage = `usage: tallyctl [-redis addr] <command>

commands:
  trigger <job>   enqueue a job now (sweep)
  queue           print default queue statistics
  scheduled       list scheduled tasks
`

func main() {
	redisAddr := flag.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cli.NewJobsCLI(*redisAddr)
	code := run(ctx, c, flag.Args())
	if err := c.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, c *cli.JobsCLI, args []string) int {
	if len(args) == 0 {
		flag.Usage()
		return 2
	}
	var out any
	var err error
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			flag.Usage()
			return 2
		}
		out, err = c.Trigger(ctx, args[1])
	case "queue":
		out, err = c.InspectQueue(ctx)
	case "scheduled":
		out, err = c.ListScheduled(ctx, 20)
	default:
		flag.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
