package launcher

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var ioDevID = flag.String("iodev", "", "Linux block device ID in <MAJ>:<MIN> format to use for setting IO cgroup quota")

// Run example (replace the param for iodev with a suitable block device ID):
//   go test -race -v -iodev <MAJ>:<MIN> ./internal/launcher/...

func TestResourceLimiterLifecycle(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root to write cgroup-v2 control files")
	}

	defer goleak.VerifyNone(t)

	limiter, err := NewResourceLimiter(*ioDevID)
	require.NoError(t, err)
	defer func() { _ = limiter.Teardown() }()

	jobDir, err := limiter.CreateJobCgroup("job-1")
	require.NoError(t, err)
	require.DirExists(t, jobDir)

	require.NoError(t, limiter.RemoveJobCgroup("job-1"))
	require.NoDirExists(t, jobDir)

	// Removing an already-removed cgroup is a no-op, not an error.
	require.NoError(t, limiter.RemoveJobCgroup("job-1"))
}

func TestCreateJobCgroupRejectsEmptyJobID(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root to write cgroup-v2 control files")
	}

	limiter, err := NewResourceLimiter("")
	require.NoError(t, err)
	defer func() { _ = limiter.Teardown() }()

	_, err = limiter.CreateJobCgroup("   ")
	require.Error(t, err)
}
