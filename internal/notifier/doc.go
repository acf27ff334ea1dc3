// Package notifier provides the async delivery pipeline for reminder
// messages: a bounded queue feeding a worker pool behind a shared rate
// limiter.
//
// Deduplication happens upstream in the engine's fired ledger; the
// notifier's only contract is at-most-once-attempt delivery of whatever
// it accepts. Acceptance (a nil Notify return) is what the engine
// records in the ledger, so a message lost between queue and Telegram
// is never retried on a later pass.
//
// For debugging and operator visibility, the service keeps a small
// in-memory history of recently sent messages.
package notifier
