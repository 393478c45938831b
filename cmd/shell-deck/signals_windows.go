//go:build windows

package main

import "os"

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// No SIGUSR1 on Windows; crash dumps are unavailable.
func watchDumpSignal(string) func() {
	return func() {}
}
