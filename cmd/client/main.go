package main

import (
	"errors"
	"os"

	"github.com/HMasataka/clientserve/cmd/client/handler"
	"github.com/jessevdk/go-flags"
)

type Options struct{}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("ping", "Check the live reload endpoint", "", handler.NewPingCommand())
	parser.AddCommand("status", "Show live reload status", "", handler.NewStatusCommand())
	parser.AddCommand("watch", "Print reload notifications", "", handler.NewWatchCommand())

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
