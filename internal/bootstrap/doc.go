// Package bootstrap loads process configuration and wires the engine, its
// stores and the gRPC, HTTP and event-stream adapters into one runtime.
package bootstrap
