package services

import (
	"fmt"
	"math"
	"strings"
)

// Love index policy names, as used in configuration.
const (
	PolicyBounded = "bounded"
	PolicyRatio   = "ratio"
)

// MaxLoveIndex is the upper bound of every policy.
const MaxLoveIndex = 100

// LoveIndexPolicy is a named pure function from (sent, received) counts to a score in
// [0, MaxLoveIndex]. A deployment picks exactly one.
type LoveIndexPolicy struct {
	name    string
	compute func(sent, received int) float64
}

// BoundedGrowth scores sqrt(sent*10 + received*15).
var BoundedGrowth = LoveIndexPolicy{
	name: PolicyBounded,
	compute: func(sent, received int) float64 {
		return math.Sqrt(float64(sent*10 + received*15))
	},
}

// PenalizedRatio scores 50 + 5*sent - 2*received + 5*ratio, where ratio is sent/received,
// or sent when nothing was received.
var PenalizedRatio = LoveIndexPolicy{
	name: PolicyRatio,
	compute: func(sent, received int) float64 {
		ratio := float64(sent)
		if received > 0 {
			ratio = float64(sent) / float64(received)
		}
		return 50 + float64(sent)*5 - float64(received)*2 + ratio*5
	},
}

func (p LoveIndexPolicy) Name() string { return p.name }

// Compute returns the index, rounded half up and clamped to [0, MaxLoveIndex]. Negative
// counts are treated as zero.
func (p LoveIndexPolicy) Compute(sent, received int) int {
	if p.compute == nil {
		p = BoundedGrowth
	}
	sent, received = max(sent, 0), max(received, 0)
	score := int(math.Floor(p.compute(sent, received) + 0.5))
	return min(max(score, 0), MaxLoveIndex)
}

// ComputeLoveIndex applies policy to the counts.
func ComputeLoveIndex(policy LoveIndexPolicy, sent, received int) int {
	return policy.Compute(sent, received)
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (LoveIndexPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyBounded, "a", "":
		return BoundedGrowth, nil
	case PolicyRatio, "b":
		return PenalizedRatio, nil
	default:
		return LoveIndexPolicy{}, fmt.Errorf("unknown love index policy %q", name)
	}
}
