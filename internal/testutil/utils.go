package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger tagged with the test name.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "["+t.Name()+"] ", log.Lmicroseconds)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
