package engine

import "errors"

var (
	// ErrPoolNotFound means no pool exists for the asset identifier.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrPoolAlreadyExists means the asset already has a pool; pools are never
	// deleted, so a graduated pool still occupies its key.
	ErrPoolAlreadyExists = errors.New("pool already exists")
	// ErrPoolNotActive means the pool's lifecycle state forbids the operation.
	ErrPoolNotActive = errors.New("pool not active")
	// ErrSlippageExceeded means the re-derived output fell below the caller's
	// minimum; safe to retry with a fresh quote.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrRailUnavailable means no external payment rail is configured, so
	// withdrawals cannot be submitted.
	ErrRailUnavailable = errors.New("payment rail unavailable")
)
