//go:build !windows

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func runServe(ctx context.Context, opts *RootOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, opts)
}
