// Package dispatch issues cancellation commands and reconciles their
// optimistic UI state against server truth.
//
// A kill never mutates the snapshot locally; the next coordinator
// delivery showing the record in a terminal state is the confirmation.
// If no change is observed within the grace period the disabled
// affordance is released and a soft failure is reported.
package dispatch
