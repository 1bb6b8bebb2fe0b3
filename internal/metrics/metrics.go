// Package metrics は生成ジョブのライフサイクルに関する Prometheus メトリクスを定義します。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poster_jobs_created_total",
		Help: "Number of remote generation job creation attempts by result.",
	}, []string{"result"})

	statusReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poster_job_status_reads_total",
		Help: "Number of remote job status reads by observed state.",
	}, []string{"state"})

	jobOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poster_job_outcomes_total",
		Help: "Number of completed waits by final state (success, fail, timeout, error).",
	}, []string{"state"})

	historyRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poster_history_records_total",
		Help: "Number of entries recorded into session histories.",
	})
)

// JobCreated はジョブ作成の試行結果を記録します。
func JobCreated(ok bool) {
	if ok {
		jobsCreatedTotal.WithLabelValues("ok").Inc()
		return
	}
	jobsCreatedTotal.WithLabelValues("error").Inc()
}

// StatusRead は状態取得1回分を記録します。
func StatusRead(state string) {
	if state == "" {
		state = "unknown"
	}
	statusReadsTotal.WithLabelValues(state).Inc()
}

// JobOutcome は待機の最終結果を記録します。
func JobOutcome(state string) {
	jobOutcomesTotal.WithLabelValues(state).Inc()
}

// HistoryRecorded は履歴への追加を記録します。
func HistoryRecorded() {
	historyRecordsTotal.Inc()
}
