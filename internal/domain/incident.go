package domain

// Incident holds the seed data a trace starts from.
// Corresponds to incidents table in PostgreSQL.
type Incident struct {
	ID              string  // PRIMARY KEY, externally assigned
	VictimAddress   string  // hex address the funds were stolen from
	HackTxHash      string  // transaction that moved the funds out
	HackToAddress   string  // first address the funds landed on
	StolenAmountEth float64 // total stolen value in ETH
	SeedBlockNumber int64   // block of the hack transaction
	CreatedAt       int64   // record creation timestamp (ms)
}

// MinPercentageThreshold returns the dynamic percentage-of-stolen-amount
// threshold used by value filtering. Larger hacks use a finer threshold.
func (i *Incident) MinPercentageThreshold() float64 {
	switch {
	case i.StolenAmountEth > 100:
		return 0.1
	case i.StolenAmountEth >= 10:
		return 0.5
	default:
		return 1.0
	}
}
