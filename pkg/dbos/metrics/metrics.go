// Package metrics exposes Prometheus counters and histograms for the
// Executor and Workflow Context, grounded on the teacher's
// execution_metrics.go counter-per-label pattern, generalized from
// gateway/worker labels to workflow_name/step_kind/status labels.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workflowsStartedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbos_workflows_started_total",
		Help: "Total number of workflow invocations started, grouped by workflow name.",
	}, []string{"workflow"})

	workflowsCompletedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbos_workflows_completed_total",
		Help: "Total number of workflow invocations that reached a terminal state, grouped by workflow name and final status.",
	}, []string{"workflow", "status"})

	workflowDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dbos_workflow_duration_seconds",
		Help:    "Duration from PENDING to terminal status, split by workflow name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"workflow"})

	stepDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dbos_step_duration_seconds",
		Help:    "Duration of individual transaction/communicator steps, split by step kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	stepRetriesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbos_step_retries_total",
		Help: "Total number of communicator step retry attempts, grouped by communicator name.",
	}, []string{"workflow"})

	recoveryAttemptsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dbos_workflow_recovery_attempts_total",
		Help: "Total number of recovery re-invocations, grouped by executor id.",
	}, []string{"executor_id"})

	pendingWorkflowsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dbos_pending_workflows",
		Help: "Number of workflows currently running in this process.",
	})
)

// RecordWorkflowStarted increments the started counter for a workflow name.
func RecordWorkflowStarted(workflow string) {
	workflowsStartedCounter.WithLabelValues(normalizeLabel(workflow)).Inc()
}

// RecordWorkflowCompleted increments the completed counter and observes the
// total elapsed duration for one workflow invocation.
func RecordWorkflowCompleted(workflow, status string, duration time.Duration) {
	workflowsCompletedCounter.WithLabelValues(normalizeLabel(workflow), strings.ToUpper(status)).Inc()
	workflowDurationHistogram.WithLabelValues(normalizeLabel(workflow)).Observe(duration.Seconds())
}

// ObserveStepDuration records the time taken by one transaction or
// communicator step.
func ObserveStepDuration(kind string, duration time.Duration) {
	stepDurationHistogram.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

// IncrementStepRetry increments the retry counter by one retry of a
// communicator step; the caller passes the communicator's registered name,
// which is recorded under the "workflow" label.
func IncrementStepRetry(workflow string) {
	stepRetriesCounter.WithLabelValues(normalizeLabel(workflow)).Inc()
}

// IncrementRecoveryAttempt increments the recovery-attempt counter for an
// executor identity.
func IncrementRecoveryAttempt(executorID string) {
	recoveryAttemptsCounter.WithLabelValues(normalizeLabel(executorID)).Inc()
}

// SetPendingWorkflows reports the current count of in-process running
// workflows.
func SetPendingWorkflows(count int) {
	if count < 0 {
		count = 0
	}
	pendingWorkflowsGauge.Set(float64(count))
}

func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unknown"
	}
	return label
}
