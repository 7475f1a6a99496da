package chaindata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"eth-trace-lab/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.etherscan.io/api"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultPageSize    = 50
)

// EtherscanClient implements Client against the Etherscan account txlist API.
type EtherscanClient struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	cache       *Cache
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	pageSize    int
	apiCalls    atomic.Int64
}

// ClientOption configures EtherscanClient.
type ClientOption func(*EtherscanClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *EtherscanClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *EtherscanClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *EtherscanClient) {
		c.retryDelay = d
	}
}

// WithCache sets a shared response cache. Without it every fetch hits the API.
func WithCache(cache *Cache) ClientOption {
	return func(c *EtherscanClient) {
		c.cache = cache
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *EtherscanClient) {
		c.client = client
	}
}

// WithPageSize sets how many transactions one fetch requests.
func WithPageSize(n int) ClientOption {
	return func(c *EtherscanClient) {
		c.pageSize = n
	}
}

// NewEtherscanClient creates a new Etherscan HTTP client.
func NewEtherscanClient(baseURL, apiKey string, opts ...ClientOption) *EtherscanClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &EtherscanClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		pageSize:    DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*EtherscanClient)(nil)

// txlistResponse is the raw Etherscan envelope.
type txlistResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Result  []rawTxItem `json:"result"`
}

// rawTxItem carries Etherscan's stringly-typed transaction fields.
type rawTxItem struct {
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	GasUsed     string `json:"gasUsed"`
	GasPrice    string `json:"gasPrice"`
}

// FetchOutgoing retrieves transactions for an address from startBlock,
// ascending. Consults the shared cache first; a cache hit spends no API call.
func (c *EtherscanClient) FetchOutgoing(ctx context.Context, address string, startBlock int64) ([]domain.Transaction, error) {
	address = strings.ToLower(address)

	if c.cache != nil {
		if txs, ok := c.cache.Get(address, startBlock); ok {
			return txs, nil
		}
	}

	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "txlist")
	params.Set("address", address)
	params.Set("startblock", strconv.FormatInt(startBlock, 10))
	params.Set("endblock", "99999999")
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(c.pageSize))
	params.Set("sort", "asc")
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	txs := normalize(resp.Result)
	if c.cache != nil {
		c.cache.Put(address, startBlock, txs)
	}
	return txs, nil
}

// APICalls reports upstream requests spent so far.
func (c *EtherscanClient) APICalls() int {
	return int(c.apiCalls.Load())
}

// get performs the HTTP request with retries and exponential backoff.
func (c *EtherscanClient) get(ctx context.Context, params url.Values) (*txlistResponse, error) {
	delay := c.retryDelay
	var lastErr error
	rateLimited := false

	c.apiCalls.Add(1)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			}
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimited = true
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		var envelope txlistResponse
		if err := json.Unmarshal(body, &envelope); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		// Etherscan signals application errors with status "0".
		// "No transactions found" is an empty result, not an error.
		if envelope.Status == "0" && envelope.Message != "No transactions found" {
			if strings.Contains(strings.ToLower(envelope.Message), "rate limit") {
				rateLimited = true
				lastErr = fmt.Errorf("api rate limit: %s", envelope.Message)
				continue
			}
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, envelope.Message)
		}

		return &envelope, nil
	}

	if rateLimited {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
	}
	return nil, fmt.Errorf("%w: max retries exceeded: %v", ErrUnavailable, lastErr)
}

// normalize converts raw Etherscan items to domain transactions. Records
// with unparseable numeric fields keep zero values; the filter pipeline
// drops anything malformed.
func normalize(items []rawTxItem) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		tx := domain.Transaction{
			Hash:        item.Hash,
			From:        strings.ToLower(item.From),
			To:          strings.ToLower(item.To),
			ValueWei:    item.Value,
			ValueEth:    domain.WeiToEth(item.Value),
			BlockNumber: parseInt(item.BlockNumber),
			Timestamp:   parseInt(item.TimeStamp),
			GasUsed:     parseInt(item.GasUsed),
			GasPrice:    parseInt(item.GasPrice),
		}
		txs = append(txs, tx)
	}
	return txs
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
