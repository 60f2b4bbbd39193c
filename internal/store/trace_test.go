package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/solution"
)

func readTrace(t *testing.T, dir, jobID string) []TraceEntry {
	t.Helper()

	reader, err := NewTraceReader(dir, jobID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	return entries
}

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-123"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Algorithm: "genetic", Iteration: 0, Evaluations: 10, BestFitness: 4, Timestamp: time.Now()},
		{Algorithm: "genetic", Iteration: 1, Evaluations: 20, BestFitness: 2.5, Timestamp: time.Now()},
		{Algorithm: "genetic", Iteration: 2, Evaluations: 30, BestFitness: 1, Timestamp: time.Now(),
			Variables: map[string]any{"I": 10, "C": "C1"}},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "jobs", jobID, "trace.jsonl")
	if writer.Path() != tracePath {
		t.Errorf("Expected path %s, got %s", tracePath, writer.Path())
	}

	got := readTrace(t, tmpDir, jobID)
	if len(got) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(got))
	}
	for i, entry := range got {
		if entry.Iteration != entries[i].Iteration || entry.BestFitness != entries[i].BestFitness {
			t.Errorf("Entry %d: expected %+v, got %+v", i, entries[i], entry)
		}
		if entry.Evaluations != entries[i].Evaluations {
			t.Errorf("Entry %d: expected %d evaluations, got %d", i, entries[i].Evaluations, entry.Evaluations)
		}
	}
	if got[0].Variables != nil {
		t.Errorf("Expected no variables on the first entry, got %v", got[0].Variables)
	}
	if got[2].Variables["C"] != "C1" {
		t.Errorf("Expected variables on the last entry, got %v", got[2].Variables)
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-append"

	for i, appendMode := range []bool{false, true} {
		writer, err := NewTraceWriter(tmpDir, jobID, appendMode)
		if err != nil {
			t.Fatalf("Failed to create trace writer: %v", err)
		}
		if err := writer.Write(TraceEntry{Iteration: i * 10, BestFitness: 1, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("Failed to close writer: %v", err)
		}
	}

	entries := readTrace(t, tmpDir, jobID)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[1].Iteration != 10 {
		t.Errorf("Second entry: expected iteration 10, got %d", entries[1].Iteration)
	}

	// Truncate mode starts over.
	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatal(err)
	}
	writer.Close()
	if entries := readTrace(t, tmpDir, jobID); len(entries) != 0 {
		t.Errorf("Expected an empty trace after truncation, got %d entries", len(entries))
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-flush"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(TraceEntry{Iteration: 0, BestFitness: 1, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	data, err := os.ReadFile(writer.Path())
	if err != nil {
		t.Fatalf("Failed to read trace file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Trace file is empty after flush")
	}
}

func TestTraceWriter_Observe(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "observed"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatal(err)
	}
	p := opt.Progress{
		Algorithm:   "cvoa",
		Iteration:   3,
		Evaluations: 42,
		BestFitness: 0.5,
		Best:        solution.Snapshot{Fitness: 0.5, Variables: map[string]any{"R": 0.25}},
	}
	writer.Observe(p, false)
	writer.Observe(p, true)
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	entries := readTrace(t, tmpDir, jobID)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Algorithm != "cvoa" || entries[0].Evaluations != 42 || entries[0].BestFitness != 0.5 {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}
	if entries[0].Variables != nil {
		t.Error("Variables should be omitted when not requested")
	}
	if entries[1].Variables["R"] != 0.25 {
		t.Errorf("Expected variables on the second entry, got %v", entries[1].Variables)
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-iter"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := writer.Write(TraceEntry{Iteration: i, BestFitness: 1 - float64(i)*0.1, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	writer.Close()

	reader, err := NewTraceReader(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read entry: %v", err)
		}
		if entry.Iteration != count {
			t.Errorf("Entry %d: got iteration %d", count, entry.Iteration)
		}
		count++
	}
	if count != 5 {
		t.Errorf("Expected to read 5 entries, got %d", count)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "nonexistent-job")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFoundError, got: %v", err)
	}
}

func TestTraceReader_CorruptLine(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "jobs", "corrupt")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := []byte("{\"iteration\":1,\"bestFitness\":2}\nnot json\n")
	if err := os.WriteFile(filepath.Join(dir, "trace.jsonl"), data, 0644); err != nil {
		t.Fatal(err)
	}

	reader, err := NewTraceReader(tmpDir, "corrupt")
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	if _, err := reader.ReadAll(); err == nil {
		t.Error("Expected an unmarshal error for the corrupt line")
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-delete"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Write(TraceEntry{Iteration: 0, BestFitness: 1, Timestamp: time.Now()})
	writer.Close()

	if err := DeleteTrace(tmpDir, jobID); err != nil {
		t.Fatalf("Failed to delete trace: %v", err)
	}
	if _, err := os.Stat(writer.Path()); !os.IsNotExist(err) {
		t.Error("Trace file still exists after delete")
	}
	if err := DeleteTrace(tmpDir, "nonexistent-job"); err != nil {
		t.Errorf("DeleteTrace should not error for nonexistent file, got: %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-concurrent"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(iter int) {
			defer wg.Done()
			writer.Observe(opt.Progress{Iteration: iter, BestFitness: float64(iter)}, false)
		}(i)
	}
	wg.Wait()
	if err := writer.Flush(); err != nil {
		t.Fatal(err)
	}

	if entries := readTrace(t, tmpDir, jobID); len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}
