package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/problems"
)

// Defaults applied to submitted jobs.
const (
	defaultIterations = 100
	defaultAlgorithm  = opt.AlgorithmGenetic
)

// normalizeJobConfig fills defaults and rejects unknown problems or algorithms.
func normalizeJobConfig(config *JobConfig) error {
	if config.Problem == "" {
		return fmt.Errorf("problem is required")
	}
	if _, err := problems.Get(config.Problem); err != nil {
		return err
	}
	if config.Algorithm == "" {
		config.Algorithm = defaultAlgorithm
	}
	if !slices.Contains(opt.Algorithms(), config.Algorithm) {
		return fmt.Errorf("%w: %s", opt.ErrAlgorithmNotFound, config.Algorithm)
	}
	if config.Iterations <= 0 {
		config.Iterations = defaultIterations
	}
	if config.Dimension < 0 || config.PopSize < 0 || config.CheckpointInterval < 0 {
		return fmt.Errorf("dimension, popSize and checkpointInterval cannot be negative")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
