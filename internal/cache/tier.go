package cache

import (
	"fmt"
	"strings"

	"github.com/bassista/manifest_alert/internal/errs"
)

// Tier selects one of the two independently TTL'd maps.
type Tier int

const (
	// TierNetwork holds whole shared documents; default TTL 30s.
	TierNetwork Tier = iota
	// TierFast serves hot UI polls such as mute status; default TTL 5s.
	TierFast
)

var allTiers = []Tier{TierNetwork, TierFast}

func (t Tier) String() string {
	switch t {
	case TierNetwork:
		return "network"
	case TierFast:
		return "fast"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func (t Tier) valid() bool { return t == TierNetwork || t == TierFast }

// ParseTier accepts "network" or "fast"; anything else is rejected.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "network":
		return TierNetwork, nil
	case "fast":
		return TierFast, nil
	default:
		return 0, errs.Validation("tier", s, fmt.Errorf("unknown cache tier"))
	}
}
