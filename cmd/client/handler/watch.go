package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	client "github.com/HMasataka/clientserve/cmd/client/lib"
	"github.com/HMasataka/clientserve/internal/livereload"
	"github.com/HMasataka/clientserve/pkg/retry"
)

var errDisconnected = errors.New("disconnected from server")

type WatchCommand struct {
	BaseCommand
	Attempts int `long:"attempts" description:"Reconnect attempts, 0 retries forever" default:"0"`

	out io.Writer
}

func NewWatchCommand() *WatchCommand {
	return &WatchCommand{out: os.Stdout}
}

func (cmd *WatchCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Watch(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Watch prints every reload until ctx ends, reconnecting when the server goes
// away.
func (cmd *WatchCommand) Watch(ctx context.Context) error {
	cfg := retry.DefaultConfig()
	cfg.Attempts = cmd.Attempts

	return retry.Do(ctx, cfg, func(attempt int) error {
		c, err := cmd.dial(ctx)
		if err != nil {
			slog.Warn("connect failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			return err
		}
		defer c.Close()

		slog.Info("watching", slog.String("server", cmd.ServerURL))
		return cmd.receive(ctx, c)
	})
}

func (cmd *WatchCommand) receive(ctx context.Context, c *client.Client) error {
	for {
		select {
		case <-ctx.Done():
			return retry.Permanent(ctx.Err())
		case <-c.Done():
			return errDisconnected
		case params := <-c.Reloads():
			cmd.print(params)
		}
	}
}

func (cmd *WatchCommand) print(params livereload.ReloadParams) {
	w := cmd.out
	if w == nil {
		w = os.Stdout
	}

	if len(params.Changes) == 0 {
		fmt.Fprintf(w, "reload %s\n", strings.Join(params.Paths, " "))
		return
	}
	for _, c := range params.Changes {
		fmt.Fprintf(w, "%s %s\n", c.Op, c.Path)
	}
}
