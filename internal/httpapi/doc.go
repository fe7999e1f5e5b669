// Package httpapi serves the liveness, readiness and metrics endpoints.
package httpapi
