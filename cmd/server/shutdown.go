package main

import (
	"log"
	"os"
	"time"
)

// watchSignals cancels on the first signal, then exits with code 1 on a
// second signal or once grace elapses, unless done is closed first.
func watchSignals(sigCh <-chan os.Signal, cancel func(), done <-chan struct{}, grace time.Duration, exit func(int), logger *log.Logger) {
	sig := <-sigCh
	logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	cancel()

	// Wait for second signal for immediate shutdown
	select {
	case sig := <-sigCh:
		logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
		exit(1)
	case <-time.After(grace):
		logger.Printf("Graceful shutdown timed out after %s, forcing exit", grace)
		exit(1)
	case <-done:
	}
}
