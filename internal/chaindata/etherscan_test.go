package chaindata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testAddr = "0x2222222222222222222222222222222222222222"

func txlistBody(items string) string {
	return fmt.Sprintf(`{"status":"1","message":"OK","result":[%s]}`, items)
}

func rawItem(hash string, valueWei string, block int64) string {
	return fmt.Sprintf(`{
		"blockNumber":"%d","timeStamp":"1700000060","hash":"%s",
		"from":"0x2222222222222222222222222222222222222222",
		"to":"0xAbC3333333333333333333333333333333333333",
		"value":"%s","gasUsed":"21000","gasPrice":"30000000000"}`,
		block, hash, valueWei)
}

func TestFetchOutgoingNormalizes(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"address":    r.URL.Query().Get("address"),
			"startblock": r.URL.Query().Get("startblock"),
			"sort":       r.URL.Query().Get("sort"),
			"action":     r.URL.Query().Get("action"),
		}
		fmt.Fprint(w, txlistBody(rawItem("0xaaa1", "1500000000000000000", 18000005)))
	}))
	defer server.Close()

	c := NewEtherscanClient(server.URL, "test-key")
	txs, err := c.FetchOutgoing(context.Background(), "0x2222222222222222222222222222222222222222", 18000000)
	if err != nil {
		t.Fatalf("FetchOutgoing: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	tx := txs[0]
	if tx.Hash != "0xaaa1" || tx.BlockNumber != 18000005 || tx.Timestamp != 1700000060 {
		t.Fatalf("tx = %+v", tx)
	}
	if tx.To != "0xabc3333333333333333333333333333333333333" {
		t.Fatalf("To not lowercased: %q", tx.To)
	}
	if tx.ValueWei != "1500000000000000000" || tx.ValueEth != 1.5 {
		t.Fatalf("value = %q / %v", tx.ValueWei, tx.ValueEth)
	}
	if tx.GasUsed != 21000 || tx.GasPrice != 30_000_000_000 {
		t.Fatalf("gas = %d / %d", tx.GasUsed, tx.GasPrice)
	}

	if gotQuery["address"] != testAddr || gotQuery["startblock"] != "18000000" {
		t.Fatalf("query = %v", gotQuery)
	}
	if gotQuery["sort"] != "asc" || gotQuery["action"] != "txlist" {
		t.Fatalf("query = %v", gotQuery)
	}
	if c.APICalls() != 1 {
		t.Fatalf("APICalls = %d, want 1", c.APICalls())
	}
}

func TestFetchOutgoingEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"No transactions found","result":[]}`)
	}))
	defer server.Close()

	c := NewEtherscanClient(server.URL, "")
	txs, err := c.FetchOutgoing(context.Background(), testAddr, 0)
	if err != nil {
		t.Fatalf("FetchOutgoing: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("got %d transactions, want 0", len(txs))
	}
}

func TestFetchOutgoingRateLimited(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewEtherscanClient(server.URL, "",
		WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	_, err := c.FetchOutgoing(context.Background(), testAddr, 0)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if hits != 3 { // initial attempt plus two retries
		t.Fatalf("hits = %d, want 3", hits)
	}
	// Retries are one logical fetch.
	if c.APICalls() != 1 {
		t.Fatalf("APICalls = %d, want 1", c.APICalls())
	}
}

func TestFetchOutgoingServerErrorsRetry(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, txlistBody(rawItem("0xaaa1", "1000000000000000000", 1)))
	}))
	defer server.Close()

	c := NewEtherscanClient(server.URL, "",
		WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	txs, err := c.FetchOutgoing(context.Background(), testAddr, 0)
	if err != nil {
		t.Fatalf("FetchOutgoing after retries: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
}

func TestFetchOutgoingAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"NOTOK: invalid address format","result":[]}`)
	}))
	defer server.Close()

	c := NewEtherscanClient(server.URL, "")
	_, err := c.FetchOutgoing(context.Background(), "bogus", 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestFetchOutgoingCacheHit(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, txlistBody(rawItem("0xaaa1", "1000000000000000000", 1)))
	}))
	defer server.Close()

	c := NewEtherscanClient(server.URL, "", WithCache(NewCache(time.Minute)))
	for i := 0; i < 3; i++ {
		txs, err := c.FetchOutgoing(context.Background(), testAddr, 0)
		if err != nil || len(txs) != 1 {
			t.Fatalf("fetch %d: %v, %d txs", i, err, len(txs))
		}
	}
	if hits != 1 {
		t.Fatalf("server hits = %d, want 1", hits)
	}
	if c.APICalls() != 1 {
		t.Fatalf("APICalls = %d, want 1 (cache hits are free)", c.APICalls())
	}
	// A different startBlock is a different cache key.
	if _, err := c.FetchOutgoing(context.Background(), testAddr, 100); err != nil {
		t.Fatalf("fetch with new startBlock: %v", err)
	}
	if hits != 2 {
		t.Fatalf("server hits = %d, want 2", hits)
	}
}

func TestFetchOutgoingContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, txlistBody(""))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	c := NewEtherscanClient(server.URL, "")
	_, err := c.FetchOutgoing(ctx, testAddr, 0)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}
