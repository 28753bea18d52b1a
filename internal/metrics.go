package internal

import "expvar"

var (
	requestsTotal   = expvar.NewMap("hookgram_requests_total")
	rejectedTotal   = expvar.NewMap("hookgram_rejected_total")
	deliveriesTotal = expvar.NewMap("hookgram_deliveries_total")
	skipsTotal      = expvar.NewMap("hookgram_skips_total")
	dispatchErrors  = expvar.NewMap("hookgram_dispatch_errors_total")
	publishErrors   = expvar.NewMap("hookgram_publish_errors_total")
)

func IncRequest(event string) {
	requestsTotal.Add(event, 1)
}

// IncRejected counts refused requests keyed by reason.
func IncRejected(reason string) {
	rejectedTotal.Add(reason, 1)
}

func IncDelivery(service string) {
	deliveriesTotal.Add(service, 1)
}

func IncSkip(reason string) {
	skipsTotal.Add(reason, 1)
}

func IncDispatchError(service string) {
	dispatchErrors.Add(service, 1)
}

func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}
