package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"landscapesim/pkg/batch/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("received signal '%v', stopping", sig)
		cancel()
	}()

	os.Exit(execute(ctx, os.Args[1:]))
}
