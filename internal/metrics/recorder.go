package metrics

import (
	"context"

	"github.com/mnamhq/channelsync/internal/channex"
)

// RequestObserver mirrors channel API attempts into the request
// counters and then hands the entry to the next recorder, normally the
// audit log. It satisfies channex.RequestRecorder.
type RequestObserver struct {
	set  *Set
	next channex.RequestRecorder
}

// NewRequestObserver decorates next with metric recording. next may be
// nil when only metrics are wanted.
func NewRequestObserver(set *Set, next channex.RequestRecorder) *RequestObserver {
	return &RequestObserver{set: set, next: next}
}

func (o *RequestObserver) RecordRequest(ctx context.Context, entry channex.RequestLog) {
	outcome := "success"
	if !entry.Success {
		outcome = "failure"
	}
	endpoint := endpointLabel(entry.Endpoint)
	o.set.ChannelRequests.WithLabelValues(endpoint, outcome).Inc()
	o.set.ChannelLatency.WithLabelValues(endpoint).Observe(float64(entry.DurationMs) / 1000)
	if o.next != nil {
		o.next.RecordRequest(ctx, entry)
	}
}
