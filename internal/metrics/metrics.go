package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	subsystem = "assessment_orchestrator"

	// Job metrics
	jobsSubmittedTotal = "jobs_submitted_total"
	jobsFinishedTotal  = "jobs_finished_total"

	// Orchestration metrics
	activityDurationSeconds = "activity_duration_seconds"
	runningOrchestrations   = "running_orchestrations"
	replayedActivitiesTotal = "replayed_activities_total"

	// Labels
	statusLabel   = "status"
	activityLabel = "activity"
	outcomeLabel  = "outcome"
)

/**
* Metrics definition
**/
var jobsSubmittedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsSubmittedTotal,
		Help:      "number of extended assessment jobs submitted",
	},
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsFinishedTotal,
		Help:      "number of jobs that reached a terminal status",
	},
	[]string{statusLabel},
)

var activityDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      activityDurationSeconds,
		Help:      "activity execution time",
		Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
	},
	[]string{activityLabel, outcomeLabel},
)

var runningOrchestrationsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      runningOrchestrations,
		Help:      "orchestration instances currently driven by this process",
	},
)

var replayedActivitiesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      replayedActivitiesTotal,
		Help:      "activity calls answered from history instead of executed",
	},
	[]string{activityLabel},
)

func IncreaseJobsSubmittedMetric() {
	jobsSubmittedMetric.Inc()
}

func IncreaseJobsFinishedMetric(status string) {
	jobsFinishedMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func ObserveActivityDuration(activity string, succeeded bool, d time.Duration) {
	outcome := "success"
	if !succeeded {
		outcome = "error"
	}
	activityDurationMetric.With(prometheus.Labels{
		activityLabel: activity,
		outcomeLabel:  outcome,
	}).Observe(d.Seconds())
}

func IncreaseRunningOrchestrations() {
	runningOrchestrationsMetric.Inc()
}

func DecreaseRunningOrchestrations() {
	runningOrchestrationsMetric.Dec()
}

func IncreaseReplayedActivitiesMetric(activity string) {
	replayedActivitiesMetric.With(prometheus.Labels{activityLabel: activity}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedMetric)
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(activityDurationMetric)
	prometheus.MustRegister(runningOrchestrationsMetric)
	prometheus.MustRegister(replayedActivitiesMetric)
}
