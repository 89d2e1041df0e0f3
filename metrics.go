package iso8583

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProcessorMetrics counts what a Processor does. A nil *ProcessorMetrics
// records nothing.
type ProcessorMetrics struct {
	decoded     *prometheus.CounterVec
	faults      *prometheus.CounterVec
	suspensions prometheus.Counter
	bytesRead   prometheus.Counter
}

// NewProcessorMetrics registers the processor collectors with reg. A nil reg
// creates unregistered collectors, which is handy in tests.
func NewProcessorMetrics(reg prometheus.Registerer, namespace string) *ProcessorMetrics {
	factory := promauto.With(reg)
	return &ProcessorMetrics{
		decoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "iso8583",
			Name:      "messages_decoded_total",
			Help:      "Messages decoded, by MTI.",
		}, []string{"mti"}),
		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "iso8583",
			Name:      "decode_faults_total",
			Help:      "Messages rejected while decoding, by kind.",
		}, []string{"kind"}),
		suspensions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "iso8583",
			Name:      "parse_suspensions_total",
			Help:      "Times a parse stopped to wait for more bytes.",
		}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "iso8583",
			Name:      "bytes_read_total",
			Help:      "Bytes read from streams.",
		}),
	}
}

func (m *ProcessorMetrics) messageDecoded(msg *Message) {
	if m == nil {
		return
	}
	m.decoded.WithLabelValues(msg.MTI()).Inc()
}

func (m *ProcessorMetrics) decodeFault(err error) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(faultKind(err)).Inc()
}

func (m *ProcessorMetrics) suspended() {
	if m == nil {
		return
	}
	m.suspensions.Inc()
}

func (m *ProcessorMetrics) read(n int) {
	if m == nil {
		return
	}
	m.bytesRead.Add(float64(n))
}
