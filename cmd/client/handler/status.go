package handler

import (
	"context"
	"encoding/json"
	"fmt"
)

type StatusCommand struct {
	BaseCommand
}

func NewStatusCommand() *StatusCommand {
	return &StatusCommand{}
}

func (cmd *StatusCommand) Execute(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	c, err := cmd.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := c.Status(ctx)
	if err != nil {
		return err
	}

	respJSON, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling response: %w", err)
	}
	fmt.Printf("Response: %s\n", respJSON)

	return nil
}
