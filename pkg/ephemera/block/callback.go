package block

import "github.com/nymtech/ephemera-sub001/pkg/ephemera/types"

// ProducerCallback is the block producer's own veto hook (spec §4.6's
// "on_proposed_messages"), grounded in the original's
// block::callback::BlockProducerCallback trait — a separate, narrower hook
// than the five-method broadcast callback.Callback, since the producer only
// ever needs a yes/no on "seal now".
type ProducerCallback interface {
	// OnProposedMessages is consulted after every Submit. Returning true
	// forces an immediate seal regardless of the size/interval triggers.
	OnProposedMessages(candidate []types.SignedMessage) (bool, error)
}

// AlwaysFalse never forces an early seal, the equivalent of the original's
// DummyBlockProducerCallback — sealing is driven purely by size/interval.
type AlwaysFalse struct{}

func (AlwaysFalse) OnProposedMessages([]types.SignedMessage) (bool, error) {
	return false, nil
}

// MinMessageCount forces a seal once the candidate reaches N messages,
// mirroring the original's MinMessageCountBlockProducerCallback.
type MinMessageCount struct {
	N int
}

func (c MinMessageCount) OnProposedMessages(candidate []types.SignedMessage) (bool, error) {
	return len(candidate) >= c.N, nil
}
