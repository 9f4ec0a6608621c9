// Package metrics wires the counters named by spec.md §4.6 (Query
// Recoverer) and the outcome records of §4.3/§4.4 (Ingestion Channel,
// Ingestion Facade) into Prometheus, optionally. NewRegistry(nil) returns a
// Registry whose counters are never registered, so updates are dropped
// without call sites branching on whether metrics are enabled. A nil
// *Registry is not usable; this module's constructors substitute
// NewRegistry(nil) when given one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters this module updates. Construct one with
// NewRegistry(reg) to publish to a real prometheus.Registerer, or
// NewRegistry(nil) to get a Registry whose methods are no-ops.
type Registry struct {
	framesSubmitted   prometheus.Counter
	messagesEmitted   prometheus.Counter
	messagesSent      prometheus.Counter
	messagesAccepted  prometheus.Counter
	messagesRejected  prometheus.Counter
	transportErrors   prometheus.Counter
	queryMessages     prometheus.Counter
	queryBytes        prometheus.Counter
	compositeRequests prometheus.Counter
}

// NewRegistry constructs a Registry. If reg is nil, every counter is a
// detached prometheus.Counter that nothing ever collects — cheap, and
// nil-safe without conditional logic at call sites.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		framesSubmitted:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dpclient", Subsystem: "ingest", Name: "frames_submitted_total", Help: "Frames submitted to the Frame Processor."}),
		messagesEmitted:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dpclient", Subsystem: "ingest", Name: "wire_messages_emitted_total", Help: "Wire request messages emitted by the Frame Processor."}),
		messagesSent:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dpclient", Subsystem: "ingest", Name: "wire_messages_sent_total", Help: "Wire request messages sent over an ingestion stream."}),
		messagesAccepted:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dpclient", Subsystem: "ingest", Name: "messages_accepted_total", Help: "Ingestion responses classified as accepted."}),
		messagesRejected:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dpclient", Subsystem: "ingest", Name: "messages_rejected_total", Help: "Ingestion responses classified as rejected."}),
		transportErrors:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dpclient", Subsystem: "ingest", Name: "transport_errors_total", Help: "Transport-level exceptions observed by the Ingestion Channel."}),
		queryMessages:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dpclient", Subsystem: "query", Name: "processed_messages_total", Help: "Query response messages processed by the Query Recoverer."}),
		queryBytes:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dpclient", Subsystem: "query", Name: "processed_bytes_total", Help: "Estimated serialized bytes of processed query responses."}),
		compositeRequests: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dpclient", Subsystem: "query", Name: "composite_requests_total", Help: "Requests that were decomposed into more than one sub-request."}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{
			r.framesSubmitted, r.messagesEmitted, r.messagesSent, r.messagesAccepted,
			r.messagesRejected, r.transportErrors, r.queryMessages, r.queryBytes, r.compositeRequests,
		} {
			reg.MustRegister(c)
		}
	}
	return r
}

func (r *Registry) FrameSubmitted()         { r.framesSubmitted.Inc() }
func (r *Registry) MessageEmitted()         { r.messagesEmitted.Inc() }
func (r *Registry) MessageSent()            { r.messagesSent.Inc() }
func (r *Registry) MessageAccepted()        { r.messagesAccepted.Inc() }
func (r *Registry) MessageRejected()        { r.messagesRejected.Inc() }
func (r *Registry) TransportError()         { r.transportErrors.Inc() }
func (r *Registry) QueryMessage(bytes int)  { r.queryMessages.Inc(); r.queryBytes.Add(float64(bytes)) }
func (r *Registry) CompositeRequest()       { r.compositeRequests.Inc() }
