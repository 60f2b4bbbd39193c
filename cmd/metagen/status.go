package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, args[0]), args[0])
}

// jobSummary mirrors the fields of the server's job JSON that are printed.
type jobSummary struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Config struct {
		Problem    string `json:"problem"`
		Algorithm  string `json:"algorithm"`
		Dimension  int    `json:"dimension"`
		Iterations int    `json:"iterations"`
		PopSize    int    `json:"popSize"`
	} `json:"config"`
	InitialFitness float64  `json:"initialFitness"`
	Iterations     int      `json:"iterations"`
	Evaluations    int      `json:"evaluations"`
	Elapsed        float64  `json:"elapsed"`
	EPS            float64  `json:"eps"`
	Error          string   `json:"error"`
	ResumedFrom    string   `json:"resumedFrom"`
	Best           *struct {
		Fitness   float64        `json:"fitness"`
		Variables map[string]any `json:"variables"`
	} `json:"best"`
}

func fetch(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(url string) error {
	var jobs []jobSummary
	if _, err := fetch(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job.ID)
		fmt.Printf("  State: %s\n", job.State)
		fmt.Printf("  Problem: %s (%s)\n", job.Config.Problem, job.Config.Algorithm)
		if job.Best != nil {
			fmt.Printf("  Fitness: %g -> %g\n", job.InitialFitness, job.Best.Fitness)
		}
		fmt.Println()
	}
	return nil
}

func getJobStatus(url, jobID string) error {
	var status jobSummary
	code, err := fetch(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Job: %s\n", status.ID)
	fmt.Printf("State: %s\n", status.State)
	if status.ResumedFrom != "" {
		fmt.Printf("Resumed from: %s\n", status.ResumedFrom)
	}
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Problem: %s\n", status.Config.Problem)
	fmt.Printf("  Algorithm: %s\n", status.Config.Algorithm)
	fmt.Printf("  Iterations: %d\n", status.Config.Iterations)
	if status.Config.PopSize > 0 {
		fmt.Printf("  Population: %d\n", status.Config.PopSize)
	}
	fmt.Println()

	fmt.Println("Progress:")
	fmt.Printf("  Iterations: %d\n", status.Iterations)
	fmt.Printf("  Evaluations: %d (%.0f/sec)\n", status.Evaluations, status.EPS)
	if status.Best != nil {
		fmt.Printf("  Initial Fitness: %g\n", status.InitialFitness)
		fmt.Printf("  Best Fitness: %g\n", status.Best.Fitness)
		fmt.Printf("  Best: %v\n", status.Best.Variables)
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.Error != "" {
		fmt.Printf("\nError: %s\n", status.Error)
	}
	return nil
}
