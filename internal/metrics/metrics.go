package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailramp_emails_sent_total",
			Help: "Emails accepted by the transport, by kind",
		},
		[]string{"kind"},
	)

	EmailFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailramp_email_failures_total",
			Help: "Send attempts rejected by the transport, by kind",
		},
		[]string{"kind"},
	)

	SendSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailramp_send_skips_total",
			Help: "Due entries not sent this tick, by reason",
		},
		[]string{"reason"},
	)

	QueueEntriesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailramp_queue_entries_created_total",
			Help: "Campaign queue entries created",
		},
	)

	StaleEntriesReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailramp_stale_entries_reclaimed_total",
			Help: "Entries stuck in sending that were returned to pending",
		},
	)

	MailboxesDeactivated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailramp_mailboxes_deactivated_total",
			Help: "Mailboxes deactivated after repeated mailbox faults",
		},
	)

	WarmupTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailramp_warmup_transitions_total",
			Help: "Warmup status changes, by target status",
		},
		[]string{"to"},
	)

	HolidayLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailramp_holiday_lookups_total",
			Help: "Holiday calendar lookups, by cache result",
		},
		[]string{"result"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailramp_tick_duration_seconds",
			Help:    "Wall time of one dispatch tick",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(SendSkips)
	prometheus.MustRegister(QueueEntriesCreated)
	prometheus.MustRegister(StaleEntriesReclaimed)
	prometheus.MustRegister(MailboxesDeactivated)
	prometheus.MustRegister(WarmupTransitions)
	prometheus.MustRegister(HolidayLookups)
	prometheus.MustRegister(TickDuration)
}
