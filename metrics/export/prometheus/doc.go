// Package prometheus renders authsvc engine metrics in Prometheus text
// exposition format.
//
// Counters are named authsvc_*_total; the login, validate and logout
// latency histograms are authsvc_*_latency_seconds. Nothing is registered in
// a global registry: callers mount [Exporter.Handler] on their own mux.
package prometheus
