package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// run is main with the operating system passed in, so it can be tested in isolation.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := NewRootCommand(getenv, stdout, stderr)
	cmd.SetArgs(args[1:])

	return cmd.ExecuteContext(ctx)
}
