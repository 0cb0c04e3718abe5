package domain

import "time"

// RateTier is one of the ordered sampling frequencies for the location stream.
type RateTier string

const (
	TierReduced         RateTier = "reduced"
	TierThreeKilometers RateTier = "threeKilometers"
	TierKilometer       RateTier = "kilometer"
	TierHundredMeters   RateTier = "hundredMeters"
	TierTenMeters       RateTier = "tenMeters"
	TierHigh            RateTier = "high"
	TierRealtime        RateTier = "realtime"
)

// DefaultRateTier is applied when a location subscription omits a rate and
// when no subscriptions are recorded for a user.
const DefaultRateTier = TierReduced

var tierRank = map[RateTier]int{
	TierReduced:         0,
	TierThreeKilometers: 1,
	TierKilometer:       2,
	TierHundredMeters:   3,
	TierTenMeters:       4,
	TierHigh:            5,
	TierRealtime:        6,
}

// Rank returns the position of the tier in the hierarchy, weakest first.
// Unknown tiers rank below "reduced".
func (t RateTier) Rank() int {
	rank, ok := tierRank[t]
	if !ok {
		return -1
	}
	return rank
}

// Known reports whether the tier is part of the hierarchy.
func (t RateTier) Known() bool {
	_, ok := tierRank[t]
	return ok
}

// AtLeast reports whether the tier is as strong as or stronger than other.
func (t RateTier) AtLeast(other RateTier) bool {
	return t.Rank() >= other.Rank()
}

// MaxTier returns the strongest tier of the arguments, or DefaultRateTier
// when none of them is known.
func MaxTier(tiers ...RateTier) RateTier {
	max := DefaultRateTier
	for _, t := range tiers {
		if t.Rank() > max.Rank() {
			max = t
		}
	}
	return max
}

// fallbackCacheAge bounds cache staleness for unrecognized accuracy values.
const fallbackCacheAge = time.Minute

var maxCacheAge = map[RateTier]time.Duration{
	TierRealtime:        time.Second,
	TierHigh:            10 * time.Second,
	TierTenMeters:       30 * time.Second,
	TierHundredMeters:   time.Minute,
	TierKilometer:       5 * time.Minute,
	TierThreeKilometers: 15 * time.Minute,
	TierReduced:         15 * time.Minute,
}

// MaxCacheAge returns how stale a cached location sample may be while still
// satisfying a poll at the requested accuracy.
func MaxCacheAge(accuracy RateTier) time.Duration {
	if age, ok := maxCacheAge[accuracy]; ok {
		return age
	}
	return fallbackCacheAge
}

// LocationSample is a single position fix reported by the device.
type LocationSample struct {
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Accuracy      *float64  `json:"accuracy,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
