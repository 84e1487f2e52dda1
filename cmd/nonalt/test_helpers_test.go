package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nonalt/internal/logging"
	"nonalt/internal/msg"
)

// stubAgent implements msg.Handler with canned responses so CLI commands can
// be exercised without a browser or store.
type stubAgent struct {
	queue   []msg.QueueEntry
	history []msg.HistoryEntry
	posts   map[string][]msg.PostImage
	status  msg.StatusResponse

	scanRunning bool
	reblogErr   string
}

func (s *stubAgent) PreflightOnPost(req msg.PreflightOnPostRequest, resp *msg.PreflightOnPostResponse) error {
	resp.ImageURLs = req.PostImageURLs
	resp.WorkingSet = req.WorkingSet
	return nil
}

func (s *stubAgent) QueueForReblogging(req msg.QueueForRebloggingRequest, resp *msg.QueueForRebloggingResponse) error {
	s.queue = append(s.queue, msg.QueueEntry{PostURL: req.PostURL, ImageURLs: req.ImageURLs})
	return nil
}

func (s *stubAgent) DequeueForReblogging(req msg.DequeueForRebloggingRequest, resp *msg.DequeueForRebloggingResponse) error {
	for i, entry := range s.queue {
		if entry.PostURL == req.PostURL {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			resp.Removed = true
			return nil
		}
	}
	return nil
}

func (s *stubAgent) QueueList(req msg.QueueListRequest, resp *msg.QueueListResponse) error {
	resp.Entries = s.queue
	return nil
}

func (s *stubAgent) QueueClear(req msg.QueueClearRequest, resp *msg.QueueClearResponse) error {
	resp.Removed = int64(len(s.queue))
	s.queue = nil
	return nil
}

func (s *stubAgent) LoadPostImages(req msg.LoadPostImagesRequest, resp *msg.LoadPostImagesResponse) error {
	resp.Posts = s.posts
	return nil
}

func (s *stubAgent) ClearPostImages(req msg.ClearPostImagesRequest, resp *msg.ClearPostImagesResponse) error {
	resp.Removed = int64(len(s.posts))
	s.posts = nil
	return nil
}

func (s *stubAgent) HistoryList(req msg.HistoryListRequest, resp *msg.HistoryListResponse) error {
	resp.Entries = s.history
	return nil
}

func (s *stubAgent) ScanStart(req msg.ScanStartRequest, resp *msg.ScanStartResponse) error {
	if s.scanRunning {
		resp.Message = "Scan already running"
		return nil
	}
	s.scanRunning = true
	resp.Started = true
	return nil
}

func (s *stubAgent) ScanStop(req msg.ScanStopRequest, resp *msg.ScanStopResponse) error {
	resp.Stopped = s.scanRunning
	s.scanRunning = false
	return nil
}

func (s *stubAgent) Reblog(req msg.ReblogRequest, resp *msg.ReblogResponse) error {
	if s.reblogErr != "" {
		resp.SetError(s.reblogErr)
		return nil
	}
	resp.Done = true
	resp.Message = fmt.Sprintf("%d reposted, 0 skipped", len(s.queue))
	s.queue = nil
	return nil
}

func (s *stubAgent) Status(req msg.StatusRequest, resp *msg.StatusResponse) error {
	*resp = s.status
	resp.QueueLength = len(s.queue)
	return nil
}

type cliTestEnv struct {
	agent      *stubAgent
	server     *msg.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, base)

	agent := &stubAgent{status: msg.StatusResponse{Running: true, PID: os.Getpid()}}
	socketPath := filepath.Join(base, "cli.sock")
	srv, err := msg.NewServer(socketPath, agent, logging.NewNop())
	if err != nil {
		t.Fatalf("msg.NewServer: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })

	return &cliTestEnv{
		agent:      agent,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path, base string) {
	t.Helper()
	content := fmt.Sprintf(
		"[account]\nname = %q\n\n[paths]\ndata_dir = %q\nlog_dir = %q\nartists_path = %q\n",
		"test-account",
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "artists.yaml"),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
