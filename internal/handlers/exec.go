package handlers

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/docforge/docforge/internal/models"
)

// captureLimit bounds how much subprocess output is retained. Streams
// are always drained fully so the child never blocks on a full pipe.
const captureLimit = 64 * 1024

// cappedBuffer keeps the first captureLimit bytes and discards the rest.
type cappedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := captureLimit - len(b.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		b.buf = append(b.buf, p[:room]...)
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// runCommand executes name with args under a timeout, capturing stdout
// and stderr concurrently with bounded buffers. A non-zero exit or
// timeout returns an error carrying the captured stderr.
func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr cappedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", models.Transientf("%s timed out after %s", name, timeout)
		}
		return "", fmt.Errorf("%s failed: %w (stderr: %s)", name, err, stderr.String())
	}
	return stdout.String(), nil
}
