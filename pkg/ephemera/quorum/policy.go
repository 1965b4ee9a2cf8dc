// Package quorum implements component C: the monotone predicate deciding
// when echo/vote tallies suffice against a snapshot of a given size.
package quorum

// Policy answers whether a set of endorsements satisfies the echo and vote
// thresholds for a snapshot of Size members. Any implementation must be
// monotone: once true for k endorsements it must stay true for k+1, or the
// state machine in pkg/ephemera/broadcast loses liveness.
type Policy interface {
	EchoThreshold(size, echoCount int) bool
	VoteThreshold(size, voteCount int) bool
}

// Unanimous is the default policy: both thresholds require every member of
// the snapshot to have endorsed, mirroring the teacher-adjacent
// node/src/broadcast/quorum.rs BasicQuorum, which also defaults both
// thresholds to `ready == size`.
type Unanimous struct{}

func (Unanimous) EchoThreshold(size, echoCount int) bool {
	return size > 0 && echoCount == size
}

func (Unanimous) VoteThreshold(size, voteCount int) bool {
	return size > 0 && voteCount == size
}

// Fraction implements a `count >= ceil(size*num/den)` policy, e.g. a
// classic `2f+1` deployment can supply Fraction{Num: 2, Den: 3}. Deployers
// wanting a non-unanimous policy supply one of these (or their own) instead
// of Unanimous, per spec §4.3's "policy is pluggable" note.
type Fraction struct {
	Num, Den int
}

func (f Fraction) threshold(size, count int) bool {
	if size == 0 || f.Den == 0 {
		return false
	}
	needed := (size*f.Num + f.Den - 1) / f.Den
	return count >= needed
}

func (f Fraction) EchoThreshold(size, echoCount int) bool {
	return f.threshold(size, echoCount)
}

func (f Fraction) VoteThreshold(size, voteCount int) bool {
	return f.threshold(size, voteCount)
}
