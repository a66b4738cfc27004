package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/greenpool/pkg/control"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a running command.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(ctx context.Context, args ...string) (stdout, stderr *syncBuffer, err error) {
	stdout, stderr = &syncBuffer{}, &syncBuffer{}
	root := NewRootCmd()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err = root.ExecuteContext(ctx)
	return stdout, stderr, err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greenpool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := execute(context.Background(), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "greenpool dev"))
}

func TestRevoke(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sub := rdb.Subscribe(context.Background(), control.DefaultChannel)
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	out, _, err := execute(context.Background(), "revoke", "job-9", "--redis-addr", mr.Addr(), "--signal", "kill")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "revoke job-9 sent to 1 worker(s)")

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"job_id":"job-9"`)
	assert.Contains(t, msg.Payload, `"signal":"SIGKILL"`)
}

func TestRevokeErrors(t *testing.T) {
	_, _, err := execute(context.Background(), "revoke", "job-1")
	assert.ErrorContains(t, err, "no redis address")

	_, _, err = execute(context.Background(), "revoke", "job-1", "--redis-addr", "localhost:1", "--signal", "bogus")
	assert.Error(t, err)

	_, _, err = execute(context.Background(), "revoke")
	assert.Error(t, err)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "pool:\n  concurrency: -1\n")
	_, _, err := execute(context.Background(), "run", "--config", path)
	assert.Error(t, err)

	_, _, err = execute(context.Background(), "run", "--no-metrics", "--concurrency", "-2")
	assert.Error(t, err)
}

func TestRunServesUntilCanceled(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeConfig(t, `
pool:
  name: itest
  concurrency: 2
  stop_timeout: 50ms
metrics:
  addr: 127.0.0.1:0
control:
  redis_addr: `+mr.Addr()+`
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		stderr *syncBuffer
		runErr error
		done   = make(chan struct{})
		ready  = make(chan *syncBuffer, 1)
	)
	go func() {
		defer close(done)
		stderr = &syncBuffer{}
		ready <- stderr
		root := NewRootCmd()
		root.SetOut(&syncBuffer{})
		root.SetErr(stderr)
		root.SetArgs([]string{"run", "--config", path, "--debug", "--demo-jobs", "3", "--demo-duration", "1h", "--stats-interval", "10ms"})
		runErr = root.ExecuteContext(ctx)
	}()
	logs := <-ready

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "job_id=demo-1") && strings.Contains(logs.String(), "revoke listener subscribed")
	}, 5*time.Second, 10*time.Millisecond)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	n, err := control.Revoke(context.Background(), rdb, "", "demo-0", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.Eventually(t, func() bool {
		s := logs.String()
		return strings.Contains(s, "revoke applied") && strings.Contains(s, "pool stats")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
	require.NoError(t, runErr)
	assert.Contains(t, logs.String(), "serving metrics")
	assert.Contains(t, logs.String(), "shutting down")
}
