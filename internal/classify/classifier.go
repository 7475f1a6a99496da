// Package classify decides whether graph exploration should stop at an
// address and why. Rules run in a fixed precedence order so overlapping
// conditions always yield the same verdict.
package classify

import (
	"eth-trace-lab/internal/domain"
)

const (
	// DefaultMaxDepth is the hop limit from the hack transaction.
	DefaultMaxDepth = 8

	// HighVolumeOutgoingTx marks an address as a service rather than a
	// personal wallet.
	HighVolumeOutgoingTx = 200

	// HighConfidenceCutoff is the reputation confidence above which an
	// entity match alone terminates exploration.
	HighConfidenceCutoff = 70

	// MinFlowPercentage is the cumulative outflow below which a branch is
	// not worth following, as a percentage of the stolen amount.
	MinFlowPercentage = 5.0
)

// Input carries everything the rules inspect for one address. Chain-data
// dependent fields are only meaningful when HasChainData is set; callers
// may classify before fetching to avoid spending API budget on addresses
// the reputation or depth rules already settle.
type Input struct {
	Address          string
	Depth            int
	HasChainData     bool
	OutgoingTxCount  int
	PrimarySurvivors int
	// CumulativeOutflowEth is the total value this address forwarded
	// onward within the traced graph.
	CumulativeOutflowEth float64
	StolenAmountEth      float64
}

// Verdict is the classification outcome. Terminal verdicts stop
// exploration; the node keeps its edges but contributes no further fetches.
type Verdict struct {
	Terminal   bool
	EntityType domain.EntityType
	EntityName string
	Confidence float64
	Reason     string
}

// Classifier applies the endpoint rules against a reputation source.
type Classifier struct {
	book     *AddressBook
	maxDepth int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMaxDepth overrides the hop limit.
func WithMaxDepth(depth int) Option {
	return func(c *Classifier) { c.maxDepth = depth }
}

// WithAddressBook substitutes the reputation source.
func WithAddressBook(book *AddressBook) Option {
	return func(c *Classifier) { c.book = book }
}

// NewClassifier creates a classifier with the built-in address book.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		book:     NewAddressBook(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify evaluates the rules in precedence order and returns the first
// match. Without chain data only the reputation and depth rules can fire.
func (c *Classifier) Classify(in Input) Verdict {
	rep, known := c.book.Lookup(in.Address)

	if in.HasChainData {
		if in.OutgoingTxCount > HighVolumeOutgoingTx {
			return Verdict{
				Terminal:   true,
				EntityType: domain.EntityPotentialEndpoint,
				Confidence: 80,
				Reason:     domain.ReasonHighTransactionVolume,
			}
		}
		if in.PrimarySurvivors == 0 {
			return Verdict{
				Terminal:   true,
				EntityType: domain.EntityNonPromisingEndpoint,
				Confidence: 90,
				Reason:     domain.ReasonNoSignificantTx,
			}
		}
	}

	if known && rep.Confidence > HighConfidenceCutoff {
		return Verdict{
			Terminal:   true,
			EntityType: rep.EntityType,
			EntityName: rep.Name,
			Confidence: rep.Confidence,
			Reason:     domain.ReasonHighConfidence,
		}
	}

	if in.HasChainData && in.StolenAmountEth > 0 {
		pct := in.CumulativeOutflowEth / in.StolenAmountEth * 100
		if pct < MinFlowPercentage {
			return Verdict{
				Terminal:   true,
				EntityType: domain.EntityNonPromisingEndpoint,
				Confidence: 85,
				Reason:     domain.ReasonInsufficientValueFlow,
			}
		}
	}

	if in.Depth >= c.maxDepth {
		return Verdict{
			Terminal:   true,
			EntityType: domain.EntityNonPromisingEndpoint,
			Confidence: 75,
			Reason:     domain.ReasonMaxDepthReached,
		}
	}

	v := Verdict{EntityType: domain.EntityUnknown}
	if known {
		// Low-confidence reputation annotates but does not terminate.
		v.EntityType = rep.EntityType
		v.EntityName = rep.Name
		v.Confidence = rep.Confidence
	}
	return v
}
