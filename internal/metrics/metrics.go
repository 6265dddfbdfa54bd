package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmailsListed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paypal_emails_listed_total",
		Help: "Total number of unread PayPal emails returned by the mail source.",
	})

	EmailsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypal_emails_processed_total",
		Help: "Total number of emails turned into payment records, labelled by kind.",
	}, []string{"kind"})

	EmailsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypal_emails_skipped_total",
		Help: "Total number of emails dropped before producing a record, labelled by reason.",
	}, []string{"reason"})

	FieldsMissing = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypal_fields_missing_total",
		Help: "Total number of fields left absent by extraction, labelled by kind and field.",
	}, []string{"kind", "field"})

	MarkReadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paypal_mark_read_failures_total",
		Help: "Total number of emails that could not be marked as read.",
	})

	DuplicateRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paypal_duplicate_records_total",
		Help: "Total number of records ignored because their message was already processed.",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypal_notifications_sent_total",
		Help: "Total number of notifications delivered, labelled by kind and status.",
	}, []string{"kind", "status"})

	BatchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypal_batch_runs_total",
		Help: "Total number of mailbox checks, labelled by outcome.",
	}, []string{"outcome"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paypal_batch_duration_seconds",
		Help:    "Duration of one mailbox check in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

// Skip reasons.
const (
	ReasonFetchFailed  = "fetch_failed"
	ReasonUnrecognized = "unrecognized"
	ReasonExtractError = "extract_error"
)

// Batch outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeReauth  = "reauth"
	OutcomeFailure = "failure"
)
