package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/dbwait"
	"github.com/jpalmerr/dbwait/httpprobe"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockOnboardingServer(":9999")

	// set up context with signal handling so Ctrl+C cancels the waits
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cfg, err := dbwait.NewPollConfig(10*time.Second, 500*time.Millisecond,
		dbwait.WithProbeTimeout(2*time.Second),
	)
	if err == nil {
		err = run(ctx, os.Stdout, "http://localhost:9999", cfg, "c-1001", "c-1002")
	}
	stop()

	if err != nil {
		slog.Error("example failed", "error", err)
		os.Exit(1)
	}
}

// run waits for each client to be onboarded and prints how long it took.
func run(ctx context.Context, w io.Writer, baseURL string, cfg dbwait.PollConfig, clients ...string) error {
	client := httpprobe.NewClient()
	defer client.Close()

	for _, id := range clients {
		probe := httpprobe.Probe(client,
			httpprobe.Request{URL: baseURL + "/clients?id=" + id},
			httpprobe.JSONField("data.clnt_stat", "active"),
		)

		out := dbwait.Poll(ctx, probe, cfg)
		if !out.OK() {
			return fmt.Errorf("client %s not onboarded (%s): %w", id, out.Kind(), out.Err())
		}

		status, _ := httpprobe.JSONValue(out.Value().Body, "data.clnt_stat")
		fmt.Fprintf(w, "client %s is %s after %d attempts (%s)\n",
			id, status, out.Attempts(), out.Elapsed().Round(time.Millisecond))
	}
	return nil
}
