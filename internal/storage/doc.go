package storage

// Package storage provides a minimal persistence layer used by the bot.
//
// It currently supports:
//   - Audit log appends (dispatched notifications, admin actions)
//   - Fired-ledger snapshots (so dedup state survives restarts)
