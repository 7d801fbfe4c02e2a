package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aurora/internal/config"
	"aurora/internal/container"
	"aurora/internal/contracts"
	"aurora/internal/objectstore"
	"aurora/internal/pkg/errors"
	"aurora/internal/pkg/logger"
	"aurora/internal/timings"
)

type fakeContainers struct {
	invocations []container.Invocation
	credsSeen   []byte
	err         error
}

func (f *fakeContainers) Run(ctx context.Context, inv container.Invocation) (container.Result, error) {
	f.invocations = append(f.invocations, inv)
	for _, m := range inv.Mounts {
		if m.ContainerPath == CredentialsMount {
			f.credsSeen, _ = os.ReadFile(filepath.Join(m.HostPath, "houdini_credentials.json"))
		}
	}
	if f.err != nil {
		return container.Result{ExitCode: errors.GetExitCode(f.err), LogPath: inv.LogPath}, f.err
	}
	return container.Result{LogPath: inv.LogPath}, nil
}

type memSecrets map[string]string

func (m memSecrets) GetSecret(ctx context.Context, name string) ([]byte, error) {
	v, ok := m[name]
	if !ok {
		return nil, errors.NotFound("secret", name)
	}
	return []byte(v), nil
}

type recordingPublisher struct {
	queues []string
	bodies []string
}

func (p *recordingPublisher) Publish(ctx context.Context, queueURL, body string) (string, error) {
	p.queues = append(p.queues, queueURL)
	p.bodies = append(p.bodies, body)
	return "m", nil
}

func newTestRunner(t *testing.T, containers *fakeContainers, pub *recordingPublisher) (*Runner, Config) {
	t.Helper()
	root := t.TempDir()
	cfg := Config{ToolingRoot: root, Profile: config.DefaultProfile(root)}

	objects := objectstore.NewLocalFS(t.TempDir())
	err := objects.PutObject(context.Background(), objectstore.PutObjectInput{
		Bucket: "jobs", ObjectKey: "scene.zip", Reader: bytes.NewReader([]byte("zip")),
	})
	if err != nil {
		t.Fatal(err)
	}

	d := Deps{
		Containers: containers,
		Secrets:    memSecrets{"SideFXOAuthCredentials": `{"sidefx_client":"id","sidefx_secret":"s"}`},
		Objects:    objects,
		Log:        logger.Discard(),
	}
	if pub != nil {
		d.Responses = pub
	}
	return New(cfg, d), cfg
}

func readTimings(t *testing.T, cfg Config) map[string]float64 {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(cfg.OutputDir(), timings.FileName))
	if err != nil {
		t.Fatalf("expected timings file: %v", err)
	}
	var m map[string]float64
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRunProcessHip(t *testing.T) {
	containers := &fakeContainers{}
	pub := &recordingPublisher{}
	r, cfg := newTestRunner(t, containers, pub)

	err := r.Run(context.Background(), Options{
		ProcessHip:       true,
		WorkDirective:    "$DATA_ROOT/IN/houdini_directive.json",
		JobID:            "job-1",
		JobPackage:       "s3://jobs/scene.zip",
		ResponseQueueURL: "https://sqs/resp",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.InputDir(), "scene.zip")); err != nil {
		t.Errorf("expected job package in input dir: %v", err)
	}

	if len(containers.invocations) != 1 {
		t.Fatalf("expected one container run, got %d", len(containers.invocations))
	}
	inv := containers.invocations[0]
	if inv.Image != "houdini_aws:latest" || inv.Name != "houdini_aws-latest" {
		t.Errorf("unexpected image/name %s/%s", inv.Image, inv.Name)
	}
	if strings.Join(inv.Args, " ") != "--work_directive /mnt/data//IN/houdini_directive.json" {
		t.Errorf("unexpected args %v", inv.Args)
	}
	mounts := map[string]string{}
	for _, m := range inv.Mounts {
		mounts[m.ContainerPath] = m.HostPath
	}
	if mounts[ToolingMount] != cfg.ToolingRoot || mounts[DataMount] != cfg.DataRoot() || mounts[CredentialsMount] != cfg.CredentialsRoot() {
		t.Errorf("unexpected mounts %v", mounts)
	}
	if !strings.Contains(string(containers.credsSeen), `"sidefx_client": "id"`) {
		t.Errorf("expected credentials written inside the scope, got %q", containers.credsSeen)
	}
	if _, err := os.Stat(cfg.CredentialsRoot()); !os.IsNotExist(err) {
		t.Error("expected credentials root removed after the run")
	}

	tm := readTimings(t, cfg)
	if _, ok := tm[StageFetchJobPackage]; !ok {
		t.Errorf("missing %s timing: %v", StageFetchJobPackage, tm)
	}
	if _, ok := tm[StageGenerate]; !ok {
		t.Errorf("missing %s timing: %v", StageGenerate, tm)
	}

	if len(pub.bodies) != 1 || pub.queues[0] != "https://sqs/resp" {
		t.Fatalf("expected one response, got %v", pub.queues)
	}
	var resp contracts.JobResponse
	if err := json.Unmarshal([]byte(pub.bodies[0]), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != contracts.StatusSucceeded || resp.JobID != "job-1" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRunContainerFailure(t *testing.T) {
	containers := &fakeContainers{err: errors.Execution(2, "container exited")}
	pub := &recordingPublisher{}
	r, cfg := newTestRunner(t, containers, pub)

	err := r.Run(context.Background(), Options{
		ProcessHip:       true,
		WorkDirective:    "$DATA_ROOT/IN/d.json",
		JobID:            "job-2",
		ResponseQueueURL: "https://sqs/resp",
	})
	if !errors.IsCode(err, errors.CodeExecution) || errors.GetExitCode(err) != 2 {
		t.Fatalf("expected execution error with exit 2, got %v", err)
	}
	if _, err := os.Stat(cfg.CredentialsRoot()); !os.IsNotExist(err) {
		t.Error("expected credentials root removed after a failed run")
	}
	if _, ok := readTimings(t, cfg)[StageGenerate]; !ok {
		t.Error("expected failed stage to be timed")
	}

	var resp contracts.JobResponse
	if err := json.Unmarshal([]byte(pub.bodies[0]), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != contracts.StatusFailed || resp.ExitCode != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRunRequiresDirective(t *testing.T) {
	containers := &fakeContainers{}
	r, cfg := newTestRunner(t, containers, nil)

	err := r.Run(context.Background(), Options{ProcessHip: true})
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(containers.invocations) != 0 {
		t.Error("expected no container run")
	}
	if tm := readTimings(t, cfg); len(tm) != 0 {
		t.Errorf("expected empty timings, got %v", tm)
	}
}

func TestRunValidatesReadableDirective(t *testing.T) {
	containers := &fakeContainers{}
	r, cfg := newTestRunner(t, containers, nil)

	if err := os.MkdirAll(cfg.InputDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	bad := `[{"enabled": true, "inputs": []}]`
	if err := os.WriteFile(filepath.Join(cfg.InputDir(), "d.json"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	err := r.Run(context.Background(), Options{ProcessHip: true, WorkDirective: "$DATA_ROOT/IN/d.json"})
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(containers.invocations) != 0 {
		t.Error("expected no container run for an invalid directive")
	}
}

func TestRunWithoutStagesWritesTimings(t *testing.T) {
	r, cfg := newTestRunner(t, &fakeContainers{}, nil)
	if err := r.Run(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}
	readTimings(t, cfg)
}

func TestInvocationProfileOverrides(t *testing.T) {
	root := t.TempDir()
	p := config.DefaultProfile(root)
	p.ContainerName = "render-01"
	p.Env = map[string]string{"HOUDINI_MAXTHREADS": "8"}
	p.ExtraDockerArgs = []string{"--shm-size", "8g"}

	r := New(Config{ToolingRoot: root, Profile: p}, Deps{Log: logger.Discard()})
	inv := r.invocation(Options{WorkDirective: "/mnt/data/d.json", JobID: "j"}, "/tmp/creds")

	if inv.Name != "render-01" {
		t.Errorf("expected profile container name, got %s", inv.Name)
	}
	if inv.Timeout != config.DefaultTimeout {
		t.Errorf("expected default timeout, got %v", inv.Timeout)
	}
	if inv.LogPath != filepath.Join(root, "logs", "runtime.log") {
		t.Errorf("unexpected log path %s", inv.LogPath)
	}
	last := inv.Env[len(inv.Env)-1]
	if last.Key != "HOUDINI_MAXTHREADS" {
		t.Errorf("expected profile env after the fixed env, got %+v", inv.Env)
	}
}
