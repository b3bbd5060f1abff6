package corewp

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panlibin/corewp/internal/netpoll"
)

// corewpCrashHelperEnv re-execs this same test binary as a subprocess: the
// parent checks the exit code, the child actually drives the crashing path.
// logging.Fatalf terminates the process, so the only way to observe it is
// from outside.
const corewpCrashHelperEnv = "COREWP_FATAL_TEST_HELPER"

// TestAddFdFatalErrorAbortsProcess drives resolveAddError's default branch
// (an errno that is none of EEXIST/ENOSPC) by registering an invalid
// descriptor, which unix.EpollCtl/Kevent reports as EBADF. That branch is
// documented to abort the process rather than return, and this is the only
// way to verify it actually does.
func TestAddFdFatalErrorAbortsProcess(t *testing.T) {
	if os.Getenv(corewpCrashHelperEnv) == "1" {
		w := newTestWorker(t)
		_ = w.AddFd(-1, netpoll.EventRead, &PollData{Kind: KindConn})
		t.Fatal("AddFd(-1, ...) must have aborted the process via logging.Fatalf")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestAddFdFatalErrorAbortsProcess$")
	cmd.Env = append(os.Environ(), corewpCrashHelperEnv+"=1")
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, "a fatal pollset error must abort the process rather than return")
	assert.False(t, exitErr.Success(), "the aborted subprocess must exit nonzero")
	// A child whose AddFd returned would also exit nonzero through t.Fatal,
	// so the fatal log line is what tells the two outcomes apart.
	assert.Contains(t, string(out), "fatal pollset error adding fd", "the subprocess must have exited through resolveAddError's fatal branch")
}
