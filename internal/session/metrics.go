package session

import "expvar"

var (
	metricSessionsStarted = expvar.NewInt("session_start_total")
	metricVerdicts        = expvar.NewInt("session_verdict_total")

	metricDeductions      = expvar.NewInt("deduction_total")
	metricDeductionErrors = expvar.NewInt("deduction_errors_total")

	metricPolls      = expvar.NewInt("status_poll_total")
	metricPollsEmpty = expvar.NewInt("status_poll_empty_total")

	metricReconnectAttempts  = expvar.NewInt("reconnect_attempts_total")
	metricReconnectSuccesses = expvar.NewInt("reconnect_success_total")

	metricGiftAccepts    = expvar.NewInt("gift_accept_total")
	metricGiftDuplicates = expvar.NewInt("gift_duplicate_total")
)
