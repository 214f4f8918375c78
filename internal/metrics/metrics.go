// Package metrics holds the Prometheus collectors shared by the API and worker.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsAdmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_admitted_total", Help: "Jobs accepted for processing",
	}, []string{"kind"})
	JobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_finished_total", Help: "Jobs that reached a terminal state",
	}, []string{"state"})
	RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "render_duration_seconds",
		Help:    "Wall time of the render capability per job",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	})
	QueuePublishAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_publish_attempts_total", Help: "Queue publish attempts by outcome",
	}, []string{"outcome"})
	SkillInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skill_invocations_total", Help: "Skill invocations by skill and outcome",
	}, []string{"skill", "outcome"})
	VoiceDownloadRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voice_download_retries_total", Help: "Voice track download retries",
	})
	AvatarPoolDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "avatar_pool_queue_depth", Help: "Tasks waiting in the synchronous avatar pool",
	})
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			JobsAdmitted,
			JobsFinished,
			RenderDuration,
			QueuePublishAttempts,
			SkillInvocations,
			VoiceDownloadRetries,
			AvatarPoolDepth,
		)
	})
}

// Handler exposes /metrics with the collectors registered.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
