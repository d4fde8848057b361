package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
)

// Breakers are process-local, so the breaker commands go through the API of
// the running server.

func runBreakerList(ctx context.Context, cmd *cli.Command) error {
	return callServer(ctx, cmd, http.MethodGet, "/api/v1/circuit-breakers")
}

func runBreakerReset(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("all") {
		return callServer(ctx, cmd, http.MethodPost, "/api/v1/circuit-breakers/reset")
	}

	service := cmd.Args().First()
	if service == "" {
		return cli.Exit("service name or --all required", 2)
	}
	return callServer(ctx, cmd, http.MethodPost, "/api/v1/circuit-breakers/"+url.PathEscape(service)+"/reset")
}

func callServer(ctx context.Context, cmd *cli.Command, method, path string) error {
	base := strings.TrimRight(cmd.String("server"), "/")

	req, err := http.NewRequestWithContext(ctx, method, base+path, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(cmd.Root().Writer, resp.Body); err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer)

	if resp.StatusCode/100 != 2 {
		return cli.Exit(fmt.Sprintf("server replied %s", resp.Status), 1)
	}
	return nil
}
