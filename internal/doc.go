// Package internal holds secure session id generation and parsing shared by
// the session store.
//
// Sub-packages:
//
//   - audit: async login-history dispatch
//   - limiters: account lockout policy
//   - workpool: bounded executor for account store calls
//   - events: account lifecycle consumer
//   - grpcapi: RPC facade over the engine
//   - httpapi: health, readiness and metrics endpoints
//   - bootstrap: configuration loading and process wiring
package internal
