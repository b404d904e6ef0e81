package handler

import (
	"context"
	"fmt"
)

type PingCommand struct {
	BaseCommand
}

func NewPingCommand() *PingCommand {
	return &PingCommand{}
}

func (cmd *PingCommand) Execute(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	c, err := cmd.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Ping(ctx); err != nil {
		return err
	}

	fmt.Println("pong")

	return nil
}
