// Package cmd provides common process helpers for the certmint binaries.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// FailOnError logs the message with the error and exits when err is
// non-nil.
func FailOnError(logger *zap.Logger, err error, msg string) {
	if err == nil {
		return
	}
	logger.Fatal(msg, zap.Error(err))
}

// SignalContext returns a context that is cancelled when the process
// receives SIGTERM, SIGINT or SIGHUP, so in-flight work can abort at its
// next checkpoint.
func SignalContext(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("caught signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
