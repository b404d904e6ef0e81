package handler

import (
	"context"
	"time"

	client "github.com/HMasataka/clientserve/cmd/client/lib"
	"github.com/HMasataka/clientserve/internal/server"
)

const callTimeout = 5 * time.Second

type BaseCommand struct {
	ServerURL string `long:"server" description:"Server URL" default:"http://127.0.0.1:5000"`
}

func (cmd *BaseCommand) dial(ctx context.Context) (*client.Client, error) {
	return client.Dial(ctx, cmd.ServerURL, server.LiveReloadPath)
}
