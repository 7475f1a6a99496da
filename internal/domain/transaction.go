package domain

import "math/big"

// weiPerEth as a big.Float, shared by conversions.
var weiPerEth = new(big.Float).SetFloat64(1e18)

// Transaction is a normalized on-chain transfer as returned by the chain
// data provider. Values are kept in wei as a decimal string to avoid
// precision loss; ValueEth is derived once at normalization time.
type Transaction struct {
	Hash        string
	From        string // lowercase hex
	To          string // lowercase hex, empty for contract creation
	ValueWei    string // decimal string
	ValueEth    float64
	BlockNumber int64
	Timestamp   int64 // unix seconds
	GasUsed     int64
	GasPrice    int64 // wei
}

// Valid reports whether the transaction carries the fields the trace engine
// requires. Malformed provider records fail this and are skipped upstream.
func (t *Transaction) Valid() bool {
	return t.Hash != "" && t.From != "" && t.To != "" && t.ValueWei != ""
}

// WeiToEth converts a decimal wei string to ETH. Returns 0 for unparseable
// input; callers treat such records as malformed.
func WeiToEth(wei string) float64 {
	v, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return 0
	}
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(v), weiPerEth).Float64()
	return eth
}
