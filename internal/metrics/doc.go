// Package metrics exports placement and budget metrics to Prometheus.
package metrics
