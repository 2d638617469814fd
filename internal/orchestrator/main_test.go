package orchestrator

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for the orchestrator package.
// The retrieval fan-out spawns goroutines per branch; leaks here mean a
// branch outlived its request.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
