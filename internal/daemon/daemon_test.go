package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"firestige.xyz/scanguard/internal/command"
	"firestige.xyz/scanguard/internal/core"
	"firestige.xyz/scanguard/internal/intercept"
	"firestige.xyz/scanguard/internal/log"
	"firestige.xyz/scanguard/internal/testutil"
)

// fakeHook records registration and lets tests push packets through fn.
type fakeHook struct {
	mu          sync.Mutex
	mode        string
	fn          intercept.PacketFunc
	registered  bool
	registerErr error
	unregisters int
}

func (h *fakeHook) Register(ctx context.Context, fn intercept.PacketFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registerErr != nil {
		return h.registerErr
	}
	if h.registered {
		return core.ErrHookRegistered
	}
	h.fn = fn
	h.registered = true
	return nil
}

func (h *fakeHook) Unregister() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registered {
		return core.ErrHookNotRegistered
	}
	h.registered = false
	h.unregisters++
	return nil
}

func (h *fakeHook) Registered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registered
}

func (h *fakeHook) Mode() string { return h.mode }

func (h *fakeHook) deliver(raw core.RawPacket) core.Verdict {
	h.mu.Lock()
	fn := h.fn
	h.mu.Unlock()
	return fn(raw)
}

func factoryFor(h *fakeHook) Option {
	return WithHookFactory(func(mode string, ops intercept.HookOps, logger log.Logger) (intercept.Hook, error) {
		h.mode = mode
		return h, nil
	})
}

func writeConfig(t *testing.T, dir, level string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yml")
	content := `
scanguard:
  node:
    hostname: test-daemon-001
  intercept:
    mode: enforce
    queue_num: 7
  log:
    level: ` + level + `
    format: text
  metrics:
    enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// socketDir keeps unix socket paths below the sun_path limit.
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sgd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("UDS socket was not created: %s", path)
}

func TestDaemon_StartStopIntegration(t *testing.T) {
	dir := socketDir(t)
	configPath := writeConfig(t, dir, "debug")
	socketPath := filepath.Join(dir, "d.sock")
	pidFile := filepath.Join(dir, "d.pid")

	hook := &fakeHook{}
	d, err := New(configPath, socketPath, pidFile, factoryFor(hook))
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}

	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		t.Fatalf("PID file was not created: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	if !hook.Registered() || hook.Mode() != "enforce" {
		t.Fatalf("hook not registered in enforce mode: registered=%v mode=%q", hook.Registered(), hook.Mode())
	}

	xmas := testutil.TCP(t, core.LinkTypeRaw, testutil.TCPSpec{
		Flags:  core.FlagFIN | core.FlagPSH | core.FlagURG,
		Window: 1024,
	})
	if v := hook.deliver(core.RawPacket{Data: xmas, LinkType: core.LinkTypeRaw}); v != core.VerdictDrop {
		t.Errorf("xmas verdict = %v, want drop", v)
	}

	waitForSocket(t, socketPath)

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run()
	}()

	client := command.NewUDSClient(socketPath, 2*time.Second)
	ctx := context.Background()

	status, err := client.DaemonStatus(ctx)
	if err != nil {
		t.Fatalf("daemon.status: %v", err)
	}
	if status.Mode != "enforce" || !status.Registered {
		t.Errorf("status = %+v", status)
	}

	stats, err := client.EngineStats(ctx)
	if err != nil {
		t.Fatalf("engine.stats: %v", err)
	}
	if stats.Received != 1 || stats.Dropped != 1 {
		t.Errorf("stats = %+v, want 1 received and 1 dropped", stats)
	}

	if err := client.Shutdown(ctx); err != nil {
		t.Fatalf("daemon.shutdown: %v", err)
	}

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("daemon.Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	if hook.Registered() || hook.unregisters != 1 {
		t.Errorf("hook not unregistered exactly once: registered=%v unregisters=%d", hook.Registered(), hook.unregisters)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Errorf("PID file was not removed after shutdown: %s", pidFile)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("UDS socket was not removed after shutdown: %s", socketPath)
	}
}

func TestDaemon_StartHookFailure(t *testing.T) {
	dir := socketDir(t)
	configPath := writeConfig(t, dir, "info")
	pidFile := filepath.Join(dir, "d.pid")

	hookErr := errors.New("nfqueue unavailable")
	hook := &fakeHook{registerErr: hookErr}
	d, err := New(configPath, filepath.Join(dir, "d.sock"), pidFile, factoryFor(hook))
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	err = d.Start()
	if !errors.Is(err, hookErr) {
		t.Fatalf("Start() error = %v, want %v", err, hookErr)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Errorf("PID file left behind after failed start")
	}

	// Stop after a failed start is a no-op.
	d.Stop()
}

func TestDaemon_RunStopsOnContextCancel(t *testing.T) {
	dir := socketDir(t)
	d, err := New(writeConfig(t, dir, "info"), filepath.Join(dir, "d.sock"), filepath.Join(dir, "d.pid"), factoryFor(&fakeHook{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run() }()
	d.cancel()

	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.yml"), "", ""); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadPIDFile(filepath.Join(dir, "none.pid")); !errors.Is(err, core.ErrDaemonNotRunning) {
		t.Errorf("missing PID file error = %v, want ErrDaemonNotRunning", err)
	}

	bad := filepath.Join(dir, "bad.pid")
	os.WriteFile(bad, []byte("abc\n"), 0644)
	if _, err := ReadPIDFile(bad); err == nil {
		t.Error("expected error for malformed PID file")
	}

	good := filepath.Join(dir, "good.pid")
	os.WriteFile(good, []byte("4242\n"), 0644)
	if pid, err := ReadPIDFile(good); err != nil || pid != 4242 {
		t.Errorf("ReadPIDFile = %d, %v; want 4242", pid, err)
	}
}

func TestDaemon_StartRefusesLivePIDFile(t *testing.T) {
	dir := socketDir(t)
	pidFile := filepath.Join(dir, "d.pid")

	// the test runner's parent stands in for a running daemon
	other := strconv.Itoa(os.Getppid()) + "\n"
	if err := os.WriteFile(pidFile, []byte(other), 0644); err != nil {
		t.Fatal(err)
	}

	hook := &fakeHook{}
	d, err := New(writeConfig(t, dir, "info"), filepath.Join(dir, "d.sock"), pidFile, factoryFor(hook))
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Start(); !errors.Is(err, core.ErrDaemonRunning) {
		t.Fatalf("Start() error = %v, want ErrDaemonRunning", err)
	}
	if hook.Registered() {
		t.Error("hook registered although another daemon owns the PID file")
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("PID file of the running daemon was removed: %v", err)
	}
	if string(data) != other {
		t.Errorf("PID file = %q, want %q", data, other)
	}
}

func TestDaemon_StartReplacesStalePIDFile(t *testing.T) {
	dir := socketDir(t)
	pidFile := filepath.Join(dir, "d.pid")

	// far above any pid_max, so no such process exists
	if err := os.WriteFile(pidFile, []byte("2147483646\n"), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := New(writeConfig(t, dir, "info"), filepath.Join(dir, "d.sock"), pidFile, factoryFor(&fakeHook{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop()

	if pid, err := ReadPIDFile(pidFile); err != nil || pid != os.Getpid() {
		t.Errorf("ReadPIDFile = %d, %v; want %d", pid, err, os.Getpid())
	}
}
