// Package events consumes the account lifecycle stream.
//
// Two topics carry protobuf-encoded payloads: account-created events with an
// account id and initial credential, and account-deleted events with only an
// account id. The [Worker] decodes each message, hands it to the engine's
// bounded-retry handler and commits the offset regardless of the result.
// Undecodable payloads are logged and acknowledged without retry.
package events
