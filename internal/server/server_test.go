package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/store"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(":0", opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Shutdown(context.Background())
	})
	return s, ts
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func waitForState(t *testing.T, s *Server, id string, timeout time.Duration) Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, ok := s.jobManager.GetJob(id)
		if ok && job.State.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish within %v", id, timeout)
	return Job{}
}

func TestServer_CreateJob(t *testing.T) {
	s, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/jobs", JobConfig{
		Problem:    "sphere",
		Dimension:  3,
		Algorithm:  opt.AlgorithmRandomSearch,
		Iterations: 5,
		Seed:       42,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	job := decode[Job](t, resp)
	if job.ID == "" {
		t.Fatal("Job ID should not be empty")
	}
	if job.State != StatePending && job.State != StateRunning {
		t.Errorf("Expected pending or running state, got %s", job.State)
	}

	done := waitForState(t, s, job.ID, 10*time.Second)
	if done.State != StateCompleted {
		t.Errorf("Expected completed, got %s (%s)", done.State, done.Error)
	}
}

func TestServer_CreateJob_Defaults(t *testing.T) {
	s, ts := newTestServer(t)

	job := decode[Job](t, postJSON(t, ts.URL+"/api/v1/jobs", JobConfig{Problem: "mixed", Iterations: 3}))
	if job.Config.Algorithm != defaultAlgorithm {
		t.Errorf("Expected default algorithm %s, got %s", defaultAlgorithm, job.Config.Algorithm)
	}
	waitForState(t, s, job.ID, 10*time.Second)
}

func TestServer_CreateJob_ValidationErrors(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name   string
		config JobConfig
		want   string
	}{
		{"missing problem", JobConfig{}, "problem is required"},
		{"unknown problem", JobConfig{Problem: "ackley"}, "unknown problem"},
		{"unknown algorithm", JobConfig{Problem: "sphere", Algorithm: "tabu"}, "algorithm not found"},
		{"negative dimension", JobConfig{Problem: "sphere", Dimension: -1}, "cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/v1/jobs", tt.config)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.StatusCode)
			}
			body := decode[map[string]string](t, resp)
			if !strings.Contains(body["error"], tt.want) {
				t.Errorf("Expected error containing %q, got %q", tt.want, body["error"])
			}
		})
	}

	resp, err := http.Post(ts.URL+"/api/v1/jobs", "application/json", strings.NewReader("{bad"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid JSON, got %d", resp.StatusCode)
	}
}

func TestServer_ListJobs(t *testing.T) {
	s, ts := newTestServer(t)

	s.jobManager.CreateJob(JobConfig{Problem: "sphere"})
	s.jobManager.CreateJob(JobConfig{Problem: "mixed"})

	resp, err := http.Get(ts.URL + "/api/v1/jobs")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if jobs := decode[[]Job](t, resp); len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s, ts := newTestServer(t)
	job := s.jobManager.CreateJob(JobConfig{Problem: "sphere", Algorithm: opt.AlgorithmGenetic})

	for _, path := range []string{"", "/status"} {
		resp, err := http.Get(ts.URL + "/api/v1/jobs/" + job.ID + path)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		status := decode[map[string]any](t, resp)
		if status["id"] != job.ID || status["state"] != string(StatePending) {
			t.Errorf("Unexpected status: %v", status)
		}
		for _, key := range []string{"bestFitness", "evaluations", "eps", "elapsed"} {
			if _, ok := status[key]; !ok {
				t.Errorf("Status lacks %s", key)
			}
		}
	}

	resp, err := http.Get(ts.URL + "/api/v1/jobs/nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestServer_CancelJob(t *testing.T) {
	s, ts := newTestServer(t)

	job := decode[Job](t, postJSON(t, ts.URL+"/api/v1/jobs", JobConfig{
		Problem:    "rastrigin",
		Algorithm:  opt.AlgorithmRandomSearch,
		Iterations: 1_000_000,
	}))

	resp := postJSON(t, ts.URL+"/api/v1/jobs/"+job.ID+"/cancel", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", resp.StatusCode)
	}
	done := waitForState(t, s, job.ID, 10*time.Second)
	if done.State != StateCancelled {
		t.Errorf("Expected cancelled, got %s", done.State)
	}

	resp = postJSON(t, ts.URL+"/api/v1/jobs/"+job.ID+"/cancel", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected status 409 for a finished job, got %d", resp.StatusCode)
	}
}

func TestServer_CheckpointResumeFlow(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s, ts := newTestServer(t, WithCheckpointStore(fs, dir))

	first := decode[Job](t, postJSON(t, ts.URL+"/api/v1/jobs", JobConfig{
		Problem:            "mixed",
		Algorithm:          opt.AlgorithmGenetic,
		Iterations:         10,
		CheckpointInterval: 60,
	}))
	original := waitForState(t, s, first.ID, 10*time.Second)
	if original.State != StateCompleted {
		t.Fatalf("Expected completed, got %s (%s)", original.State, original.Error)
	}

	resp, err := http.Get(ts.URL + "/api/v1/checkpoints")
	if err != nil {
		t.Fatal(err)
	}
	infos := decode[[]store.CheckpointInfo](t, resp)
	if len(infos) != 1 || infos[0].JobID != first.ID {
		t.Fatalf("Expected one checkpoint for %s, got %+v", first.ID, infos)
	}

	resp, err = http.Get(ts.URL + "/api/v1/jobs/" + first.ID + "/trace")
	if err != nil {
		t.Fatal(err)
	}
	if trace := decode[[]store.TraceEntry](t, resp); len(trace) == 0 {
		t.Error("Expected trace entries")
	}

	// Changing the problem is rejected.
	resp = postJSON(t, ts.URL+"/api/v1/jobs/"+first.ID+"/resume", JobConfig{Problem: "sphere"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected status 409 for an incompatible resume, got %d", resp.StatusCode)
	}

	resumed := decode[Job](t, postJSON(t, ts.URL+"/api/v1/jobs/"+first.ID+"/resume", map[string]any{
		"algorithm":  opt.AlgorithmCVOA,
		"iterations": 3,
	}))
	if resumed.ResumedFrom != first.ID || resumed.Config.Algorithm != opt.AlgorithmCVOA {
		t.Fatalf("Unexpected resumed job: %+v", resumed)
	}
	after := waitForState(t, s, resumed.ID, 30*time.Second)
	if after.BestFitness() > original.BestFitness() {
		t.Errorf("Resumed best %v is worse than the checkpoint %v", after.BestFitness(), original.BestFitness())
	}
	if after.Evaluations <= original.Evaluations {
		t.Errorf("Evaluations should continue from the checkpoint: %d <= %d", after.Evaluations, original.Evaluations)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/checkpoints/"+first.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
	resp, err = http.Get(ts.URL + "/api/v1/checkpoints/" + first.ID)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", resp.StatusCode)
	}
}

func TestServer_ResumeWithoutStore(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/jobs/whatever/resume", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("Expected status 501, got %d", resp.StatusCode)
	}
}

func TestServer_Catalog(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/algorithms")
	if err != nil {
		t.Fatal(err)
	}
	if algs := decode[[]string](t, resp); len(algs) != len(opt.Algorithms()) {
		t.Errorf("Expected %d algorithms, got %v", len(opt.Algorithms()), algs)
	}

	resp, err = http.Get(ts.URL + "/api/v1/problems")
	if err != nil {
		t.Fatal(err)
	}
	probs := decode[[]map[string]string](t, resp)
	if len(probs) == 0 || probs[0]["description"] == "" {
		t.Errorf("Expected described problems, got %v", probs)
	}
}

func TestServer_MetricsAndHealth(t *testing.T) {
	s, ts := newTestServer(t)

	job := decode[Job](t, postJSON(t, ts.URL+"/api/v1/jobs", JobConfig{Problem: "sphere", Algorithm: opt.AlgorithmSimulatedAnnealing, Iterations: 5}))
	waitForState(t, s, job.ID, 10*time.Second)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	for _, name := range []string{"metagen_jobs_created_total", "metagen_fitness_evaluations_total", "metagen_job_best_fitness"} {
		if !strings.Contains(buf.String(), name) {
			t.Errorf("Metrics lack %s", name)
		}
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping SSE test in short mode")
	}
	_, ts := newTestServer(t)

	job := decode[Job](t, postJSON(t, ts.URL+"/api/v1/jobs", JobConfig{
		Problem:    "layers",
		Algorithm:  opt.AlgorithmRandomSearch,
		Iterations: 200,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/jobs/%s/stream", ts.URL, job.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}

	// The stream ends with the terminal event.
	var last ProgressEvent
	events := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last); err != nil {
			t.Fatalf("Invalid event %q: %v", line, err)
		}
		events++
	}
	if events == 0 {
		t.Fatal("Expected SSE events")
	}
	if !last.State.Terminal() {
		t.Errorf("Expected the last event to be terminal, got %s", last.State)
	}
	if last.JobID != job.ID {
		t.Errorf("Expected events for %s, got %s", job.ID, last.JobID)
	}
}

func TestServer_JobStream_NotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/jobs/nonexistent/stream")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	eb.Broadcast(ProgressEvent{
		JobID:       "job1",
		State:       StateRunning,
		Iterations:  10,
		Evaluations: 300,
		BestFitness: 100.5,
		Timestamp:   time.Now(),
	})

	select {
	case received := <-ch:
		if received.JobID != "job1" || received.Iterations != 10 {
			t.Errorf("Unexpected event: %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Late subscribers get the last event.
	late := eb.Subscribe("job1")
	select {
	case received := <-late:
		if received.Evaluations != 300 {
			t.Errorf("Expected the cached event, got %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for cached event")
	}

	// Cleanup closes the channels; the deferred Unsubscribe must not panic.
	eb.CleanupJob("job1")
	if _, ok := <-late; ok {
		t.Error("Expected the channel to be closed")
	}
}
