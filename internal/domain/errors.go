package domain

import "errors"

var (
	// Trading errors.
	ErrInvalidInput      = errors.New("invalid input")
	ErrSignalRejected    = errors.New("signal rejected by risk gate")
	ErrOrderTimeout      = errors.New("order timed out unfilled")
	ErrPartialLegFailure = errors.New("leg group partially filled")
	ErrKillSwitch        = errors.New("kill switch triggered")
	ErrStaleData         = errors.New("market data stale")
	ErrLedgerDrift       = errors.New("ledger drift detected")
	ErrPostOnlyCross     = errors.New("post-only order would cross")

	// Infrastructure errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")
)
