package stub

import (
	"context"
	"strings"
	"sync"

	"eth-trace-lab/internal/chaindata"
	"eth-trace-lab/internal/domain"
)

// Client implements chaindata.Client for testing and fixture runs.
type Client struct {
	mu sync.Mutex

	// Transactions maps address -> full transaction history.
	Transactions map[string][]domain.Transaction

	// Errors maps address -> error returned for that address's fetch.
	Errors map[string]error

	// FailAll, when set, makes every fetch fail with this error.
	FailAll error

	calls int
}

// NewClient creates a new stub chain data client.
func NewClient() *Client {
	return &Client{
		Transactions: make(map[string][]domain.Transaction),
		Errors:       make(map[string]error),
	}
}

// Add appends transactions to an address's history.
func (c *Client) Add(address string, txs ...domain.Transaction) {
	address = strings.ToLower(address)
	c.Transactions[address] = append(c.Transactions[address], txs...)
}

// FetchOutgoing returns the stubbed history filtered by startBlock.
func (c *Client) FetchOutgoing(_ context.Context, address string, startBlock int64) ([]domain.Transaction, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.FailAll != nil {
		return nil, c.FailAll
	}

	address = strings.ToLower(address)
	if err, ok := c.Errors[address]; ok {
		return nil, err
	}

	var result []domain.Transaction
	for _, tx := range c.Transactions[address] {
		if tx.BlockNumber >= startBlock {
			result = append(result, tx)
		}
	}
	return result, nil
}

// APICalls reports how many fetches were issued.
func (c *Client) APICalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Compile-time interface check.
var _ chaindata.Client = (*Client)(nil)
