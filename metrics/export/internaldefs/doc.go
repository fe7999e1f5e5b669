// Package internaldefs holds the metric names, help strings and bucket
// labels shared by the Prometheus and OTel exporters, so both expose the
// same series for every authsvc.MetricID.
//
// The package performs no I/O and imports no exporter package.
package internaldefs
