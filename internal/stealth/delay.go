package stealth

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// DelayProfile names a jitter range applied before each outbound request.
type DelayProfile string

const (
	// ProfileOff disables the jitter. Equivalence fetches run under a 3s
	// per-URL budget, so this is the default.
	ProfileOff        DelayProfile = "off"
	ProfileCautious   DelayProfile = "cautious"
	ProfileNormal     DelayProfile = "normal"
	ProfileAggressive DelayProfile = "aggressive"
)

// ParseDelayProfile validates a profile name. Empty means off.
func ParseDelayProfile(s string) (DelayProfile, error) {
	switch p := DelayProfile(s); p {
	case "":
		return ProfileOff, nil
	case ProfileOff, ProfileCautious, ProfileNormal, ProfileAggressive:
		return p, nil
	}
	return "", fmt.Errorf("unknown delay profile %q (want off, cautious, normal or aggressive)", s)
}

// HumanDelay sleeps a random duration in [MinDelay, MaxDelay).
type HumanDelay struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// NewHumanDelay returns the delay for profile, or nil for ProfileOff.
// Unknown names get the normal range.
func NewHumanDelay(profile DelayProfile) *HumanDelay {
	switch profile {
	case ProfileOff:
		return nil
	case ProfileCautious:
		return &HumanDelay{MinDelay: 1500 * time.Millisecond, MaxDelay: 4 * time.Second}
	case ProfileAggressive:
		return &HumanDelay{MinDelay: 50 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
	default:
		return &HumanDelay{MinDelay: 300 * time.Millisecond, MaxDelay: time.Second}
	}
}

// Wait sleeps for one jittered interval or until ctx is done.
// A nil HumanDelay returns immediately.
func (h *HumanDelay) Wait(ctx context.Context) error {
	if h == nil {
		return nil
	}
	t := time.NewTimer(h.Next())
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next jittered duration.
func (h *HumanDelay) Next() time.Duration {
	if h.MinDelay >= h.MaxDelay {
		return h.MinDelay
	}
	return h.MinDelay + time.Duration(rand.Int64N(int64(h.MaxDelay-h.MinDelay)))
}
