package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// jobsCreated counts submitted jobs by algorithm
	jobsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metagen_jobs_created_total",
		Help: "Total optimization jobs submitted by algorithm",
	}, []string{"algorithm"})

	// jobsFinished counts finished jobs by algorithm and final state
	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metagen_jobs_finished_total",
		Help: "Total optimization jobs finished by algorithm and state",
	}, []string{"algorithm", "state"})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "metagen_jobs_running",
		Help: "Optimization jobs currently running",
	})

	// evaluationsTotal counts fitness evaluations across all jobs
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metagen_fitness_evaluations_total",
		Help: "Total fitness evaluations by algorithm",
	}, []string{"algorithm"})

	bestFitness = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "metagen_job_best_fitness",
		Help: "Best fitness found so far per job",
	}, []string{"job_id", "problem"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metagen_job_duration_seconds",
		Help:    "Wall time of finished jobs in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~44min
	}, []string{"algorithm"})

	checkpointsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metagen_checkpoints_saved_total",
		Help: "Checkpoint saves by result",
	}, []string{"result"})
)
