// Package state records which content items each report profile has already
// delivered, plus the last successful run per cadence.
//
// The Document is an explicit value: Load returns it, a Store wraps it for
// queries and mutations, and Save replaces the file atomically. Only daily
// runs open a Store in ReadWrite mode; any mutation through a ReadOnly store
// fails with ErrStateMutationForbidden and must abort the invocation.
package state
