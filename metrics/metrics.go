// Package metrics exports ERCP engine and session counters to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/go-ercp/device"
	"github.com/arloliu/go-ercp/ercp"
)

// Namespace prefixes every metric name.
const Namespace = "ercp"

// Register registers collectors reading conn and loop on reg. Either may be nil.
func Register(reg prometheus.Registerer, conn *ercp.ConnectionMetrics, loop *device.LogLoopStats) error {
	var collectors []prometheus.Collector

	if conn != nil {
		collectors = append(collectors,
			counterFunc("link", "frames_sent_total", "Frames written to the port.", conn.FrameSendCount.Load),
			counterFunc("link", "frames_received_total", "Valid frames received.", conn.FrameRecvCount.Load),
			counterFunc("link", "retries_total", "Commands resent after NACK(InvalidCRC).", conn.RetryCount.Load),
			counterFunc("link", "crc_errors_total", "Received frames with a CRC mismatch.", conn.CRCErrCount.Load),
			counterFunc("link", "frame_errors_total", "Dropped malformed or stalled frames.", conn.FrameErrCount.Load),
			counterFunc("link", "timeouts_total", "Reply timeouts.", conn.TimeoutCount.Load),
			counterFunc("link", "discarded_total", "Stale input and frames not answering the pending request.", conn.DiscardCount.Load),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "link",
				Name:      "inflight_requests",
				Help:      "Requests waiting for their reply.",
			}, func() float64 { return float64(conn.InflightGauge.Load()) }),
		)
	}

	if loop != nil {
		collectors = append(collectors,
			counterFunc("log", "delivered_total", "Log notifications printed and acknowledged.", loop.Delivered.Load),
			counterFunc("log", "rejected_total", "Unexpected frames, undecodable messages and receive errors.", loop.Rejected.Load),
			counterFunc("log", "ack_failures_total", "Log notifications whose acknowledgment failed.", loop.AckFailures.Load),
		)
	}

	var errs error
	for _, c := range collectors {
		errs = errors.Join(errs, reg.Register(c))
	}

	return errs
}

func counterFunc(subsystem, name, help string, load func() uint64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(load()) })
}

// Recorder records the outcome and duration of session operations.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewRecorder creates a Recorder and registers it on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "session",
				Name:      "operations_total",
				Help:      "Session operations by outcome.",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "session",
				Name:      "operation_duration_seconds",
				Help:      "Session operation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}

	if err := errors.Join(reg.Register(r.operations), reg.Register(r.duration)); err != nil {
		return nil, err
	}

	return r, nil
}

// Observe records one operation. A nil Recorder records nothing.
func (r *Recorder) Observe(op string, err error, d time.Duration) {
	if r == nil {
		return
	}

	r.operations.WithLabelValues(op, resultLabel(err)).Inc()
	r.duration.WithLabelValues(op).Observe(d.Seconds())
}

func resultLabel(err error) string {
	switch device.KindOf(err) {
	case nil:
		if err != nil {
			return "error"
		}

		return "ok"
	case device.ErrTransport:
		return "transport"
	case device.ErrProtocol:
		return "protocol"
	case device.ErrConstruction:
		return "construction"
	case device.ErrUnexpectedFrame:
		return "unexpected_frame"
	case device.ErrEncoding:
		return "encoding"
	case device.ErrCanceled:
		return "canceled"
	default:
		return "error"
	}
}
