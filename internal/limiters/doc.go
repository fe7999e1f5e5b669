// Package limiters holds the account lockout policy.
//
// The failed-attempt counter itself lives with the account record and is
// incremented atomically by the account store; this package only decides
// what a given count means.
//
// # What this package must NOT do
//
//   - Import authsvc or any sibling internal package.
//   - Perform I/O. Every method is a pure function of its inputs.
package limiters
