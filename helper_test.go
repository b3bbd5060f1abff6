package corewp

import (
	"os"
	"testing"
)

// makeSocketPair returns two pollable, non-overlapping file descriptors
// (an os.Pipe's read and write ends) for tests that need a real descriptor
// to register on a pollset. t.Cleanup closes both ends.
func makeSocketPair(t *testing.T) [2]int {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return [2]int{int(r.Fd()), int(w.Fd())}
}
