//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
}

// watchDumpSignal dumps the log ring buffer on every SIGUSR1.
func watchDumpSignal(baseDir string) func() {
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-usr1Chan:
				dumpRingBuffer(baseDir)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(usr1Chan)
		close(done)
	}
}
