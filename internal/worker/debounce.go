package worker

// debounceVerdict is the scheduling outcome for a claimed conversation that
// may still be inside its quiet window.
type debounceVerdict struct {
	Wait          bool
	Exhaust       bool
	NextAttemptMs int64
}

// evaluateDebounce decides whether a conversation has been quiet long enough
// to process. While the customer is still typing (inbound newer than the
// debounce window) processing is postponed, up to postponeMax times; the
// deferral after that parks the conversation as exhausted. A fresh inbound
// message resets the budget.
func evaluateDebounce(lastInboundMs, nowMs int64, debounceSec, postponeWindowSec, postponeCount, postponeMax int) debounceVerdict {
	quietMs := nowMs - lastInboundMs
	if quietMs >= int64(debounceSec)*1000 {
		return debounceVerdict{}
	}
	if postponeCount >= postponeMax {
		return debounceVerdict{Exhaust: true}
	}
	return debounceVerdict{
		Wait:          true,
		NextAttemptMs: nowMs + int64(postponeWindowSec)*1000,
	}
}
