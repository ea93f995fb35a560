// Package metrics provides Prometheus collectors for the realtime channel,
// the REST transport and the development hub.
//
// Each constructor registers its collectors with the given Registerer, so
// tests and embedding applications can use their own registry:
//
//	reg := prometheus.NewRegistry()
//	rt := metrics.NewRealtime(reg, "notifykit")
//	channel := realtime.New(dialer, store, realtime.WithRecorder(rt))
//
// The types satisfy the Recorder interfaces declared by the packages they
// observe; this package imports none of them.
package metrics
