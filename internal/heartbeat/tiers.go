package heartbeat

import (
	"fmt"
	"sort"
	"time"

	"github.com/staminads/staminads-sub000/internal/models"
)

// minInterval is the floor applied to any configured heartbeat interval.
const minInterval = 5 * time.Second

// Tier maps a cumulative active-time threshold to emission intervals per
// device class. A zero interval means the heartbeat stops permanently once
// the tier is entered.
type Tier struct {
	After   time.Duration
	Desktop time.Duration
	Mobile  time.Duration
}

// ValidateTiers normalizes a tier table: sorted ascending by threshold,
// non-zero intervals raised to the floor, and a tier at threshold zero
// required so cadence is defined from the first active second.
func ValidateTiers(tiers []Tier) ([]Tier, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier table is empty")
	}
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].After < out[j].After })
	if out[0].After != 0 {
		return nil, fmt.Errorf("tier table has no tier at threshold 0")
	}
	for i := range out {
		if out[i].Desktop > 0 && out[i].Desktop < minInterval {
			out[i].Desktop = minInterval
		}
		if out[i].Mobile > 0 && out[i].Mobile < minInterval {
			out[i].Mobile = minInterval
		}
	}
	return out, nil
}

// tierFor returns the index of the tier with the greatest threshold not
// exceeding the given active time. Tiers must be pre-validated.
func tierFor(tiers []Tier, active time.Duration) int {
	idx := 0
	for i, t := range tiers {
		if t.After <= active {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// interval returns the effective emission interval for a device class.
// Zero means the heartbeat stops.
func (t Tier) interval(class models.DeviceClass) time.Duration {
	if class == models.DeviceMobile {
		return t.Mobile
	}
	return t.Desktop
}
