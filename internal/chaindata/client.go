// Package chaindata provides read-only access to an Etherscan-style
// transaction-history API, with retry, backoff and a shared TTL cache.
package chaindata

import (
	"context"
	"errors"

	"eth-trace-lab/internal/domain"
)

// Provider errors. The HTTP client retries internally before surfacing these.
var (
	// ErrRateLimited is returned when the upstream rejects for rate limiting
	// even after backoff.
	ErrRateLimited = errors.New("chain data provider rate limited")

	// ErrUnavailable is returned when the upstream keeps failing with
	// transport or server errors.
	ErrUnavailable = errors.New("chain data provider unavailable")

	// ErrTimeout is returned when a request exceeds its deadline.
	ErrTimeout = errors.New("chain data provider timeout")
)

// Client fetches the transaction history of an address. Implementations
// must be safe for concurrent use: the trace engine issues bounded parallel
// fetches.
type Client interface {
	// FetchOutgoing retrieves transactions involving address starting at
	// startBlock, in ascending block order. The caller filters direction.
	FetchOutgoing(ctx context.Context, address string, startBlock int64) ([]domain.Transaction, error)

	// APICalls reports how many upstream requests were spent so far.
	// Cache hits are free.
	APICalls() int
}
