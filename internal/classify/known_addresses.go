package classify

import (
	"strings"

	"eth-trace-lab/internal/domain"
)

// Reputation is a curated verdict for a known on-chain entity.
type Reputation struct {
	EntityType domain.EntityType
	Confidence float64
	Name       string
}

// defaultReputation is the built-in address book of major exchanges, DEX
// routers, mixers and bridges. Keys are lowercase hex addresses.
var defaultReputation = map[string]Reputation{
	// Centralized exchanges
	"0x3f5ce5fbfe3e9af3971dd833d26ba9b5c936f0be": {domain.EntityCEX, 95, "Binance"},
	"0xd551234ae421e3bcba99a0da6d736074f22192ff": {domain.EntityCEX, 95, "Binance"},
	"0x564286362092d8e7936f0549571a803b203aaced": {domain.EntityCEX, 95, "Binance"},
	"0x0681d8db095565fe8a346fa0277bffde9c0edbbf": {domain.EntityCEX, 95, "Binance"},
	"0x32be343b94f860124dc4fee278fdcbd38c102d88": {domain.EntityCEX, 95, "Poloniex"},
	"0xb794f5ea0ba39494ce839613fffba74279579268": {domain.EntityCEX, 95, "Poloniex"},
	"0x267be1c1d684f78cb4f6a176c4911b741e4ffdc0": {domain.EntityCEX, 95, "Kraken"},
	"0xfa52274dd61e1643d2205169732f29114bc240b3": {domain.EntityCEX, 95, "Kraken"},
	"0x1522900b6dafac587d499a862861c0869be6e428": {domain.EntityCEX, 95, "KuCoin"},
	"0x2b5634c42055806a59e9107ed44d43c426e58258": {domain.EntityCEX, 95, "KuCoin"},

	// DEX routers
	"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": {domain.EntityDEX, 90, "Uniswap V2 Router"},
	"0xe592427a0aece92de3edee1f18e0157c05861564": {domain.EntityDEX, 90, "Uniswap V3 Router"},
	"0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45": {domain.EntityDEX, 90, "Uniswap Router"},
	"0xd9e1ce17f2641f24ae83637ab66a2cca9c378b9f": {domain.EntityDEX, 90, "SushiSwap Router"},
	"0x1111111254fb6c44bac0bed2854e76f90643097d": {domain.EntityDEX, 85, "1inch Router"},

	// Mixers
	"0x12d66f87a04a9e220743712ce6d9bb1b5616b8fc": {domain.EntityMixer, 85, "Tornado Cash"},
	"0x47ce0c6ed5b0ce3d3a51fdb1c52dc66a7c3c2936": {domain.EntityMixer, 85, "Tornado Cash"},

	// Bridges
	"0x3154cf16ccdb4c6d922629664174b904d80f2c35": {domain.EntityBridge, 80, "Base Bridge"},
	"0xa0b86a33e6c68c93d8b48fc5b41bc1ee0ba9f41d": {domain.EntityBridge, 80, "Polygon Bridge"},
}

// AddressBook resolves addresses against a curated reputation set.
type AddressBook struct {
	entries map[string]Reputation
}

// NewAddressBook returns a book seeded with the built-in entries.
func NewAddressBook() *AddressBook {
	entries := make(map[string]Reputation, len(defaultReputation))
	for addr, rep := range defaultReputation {
		entries[addr] = rep
	}
	return &AddressBook{entries: entries}
}

// Lookup returns the reputation for an address, if curated.
func (b *AddressBook) Lookup(address string) (Reputation, bool) {
	rep, ok := b.entries[strings.ToLower(address)]
	return rep, ok
}

// Add registers or overwrites a curated entry.
func (b *AddressBook) Add(address string, rep Reputation) {
	b.entries[strings.ToLower(address)] = rep
}

// Len reports the number of curated entries.
func (b *AddressBook) Len() int {
	return len(b.entries)
}
