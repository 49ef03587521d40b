package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Health struct {
	Received   prometheus.Counter
	Processed  *prometheus.CounterVec
	Failed     *prometheus.CounterVec
	Dropped    prometheus.Counter
	Disconnect prometheus.Counter
}

func NewHealth() *Health {
	return &Health{
		Received: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_messages_received",
			Help: "Total number of queue deliveries received",
		}),
		Processed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_messages_processed",
			Help: "Total number of envelopes handled successfully",
		}, []string{"service"}),
		Failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_messages_failed",
			Help: "Total number of envelopes whose handler failed",
		}, []string{"service"}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_messages_dropped",
			Help: "Total number of deliveries dropped as malformed or unroutable",
		}),
		Disconnect: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_broker_disconnects",
			Help: "Total number of broker connection losses",
		}),
	}
}
