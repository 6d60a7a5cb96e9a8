package ercp

import (
	"sync/atomic"
)

// ConnectionMetrics contains atomic metrics for an ERCP connection.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ConnectionMetrics struct {
	// FrameSendCount indicates the number of frames written to the port.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of valid frames received.
	FrameRecvCount atomic.Uint64
	// RetryCount indicates the number of commands resent after NACK(InvalidCRC).
	RetryCount atomic.Uint64
	// CRCErrCount indicates the number of received frames with a CRC mismatch.
	CRCErrCount atomic.Uint64
	// FrameErrCount indicates the number of dropped malformed or stalled frames.
	FrameErrCount atomic.Uint64
	// TimeoutCount indicates the number of reply timeouts.
	TimeoutCount atomic.Uint64
	// DiscardCount indicates the number of received frames, or runs of stale input, dropped
	// because they could not answer the pending request.
	DiscardCount atomic.Uint64
	// InflightGauge is 1 while a Transceive call waits for its reply.
	InflightGauge atomic.Int32
}

func (m *ConnectionMetrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *ConnectionMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *ConnectionMetrics) incRetryCount() {
	m.RetryCount.Add(1)
}

func (m *ConnectionMetrics) incCRCErrCount() {
	m.CRCErrCount.Add(1)
}

func (m *ConnectionMetrics) incFrameErrCount() {
	m.FrameErrCount.Add(1)
}

func (m *ConnectionMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *ConnectionMetrics) incDiscardCount() {
	m.DiscardCount.Add(1)
}
