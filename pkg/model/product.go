package model

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog record. Sizes is an ordered multiset: a label repeated
// n times means n physical units of that size are stocked.
type Product struct {
	ID            string            `json:"id"`
	MediaRef      string            `json:"media_ref"`
	Price         decimal.Decimal   `json:"price"`
	Sizes         Sizes             `json:"sizes"`
	SubAttributes map[string]string `json:"sub_attributes,omitempty"` // size label -> e.g. insole length
	ListingRef    string            `json:"listing_ref,omitempty"`
	IsSold        bool              `json:"is_sold"`
	IsDeleted     bool              `json:"is_deleted"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Sizes is a multiset of size labels kept in display order.
type Sizes []string

// ParseSizes reads a comma separated list ("40,40,41" or "40, 41").
func ParseSizes(s string) Sizes {
	var out Sizes
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out.Sorted()
}

// Count returns how many units of label the multiset holds.
func (s Sizes) Count(label string) int {
	n := 0
	for _, v := range s {
		if v == label {
			n++
		}
	}
	return n
}

// Counts returns label -> units.
func (s Sizes) Counts() map[string]int {
	out := make(map[string]int, len(s))
	for _, v := range s {
		out[v]++
	}
	return out
}

// Distinct returns each label once, in multiset order.
func (s Sizes) Distinct() []string {
	seen := make(map[string]struct{}, len(s))
	var out []string
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Without removes one unit of label. ok is false when no unit was present.
func (s Sizes) Without(label string) (Sizes, bool) {
	for i, v := range s {
		if v == label {
			out := make(Sizes, 0, len(s)-1)
			out = append(out, s[:i]...)
			out = append(out, s[i+1:]...)
			return out, true
		}
	}
	return s.clone(), false
}

// With adds one unit of label and re-sorts.
func (s Sizes) With(label string) Sizes {
	out := append(s.clone(), label)
	return out.Sorted()
}

// Sorted orders labels numerically when both sides are numbers, lexically otherwise.
func (s Sizes) Sorted() Sizes {
	out := s.clone()
	sort.SliceStable(out, func(i, j int) bool {
		a, errA := strconv.ParseFloat(out[i], 64)
		b, errB := strconv.ParseFloat(out[j], 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}

func (s Sizes) String() string {
	return strings.Join(s, ", ")
}

func (s Sizes) clone() Sizes {
	if s == nil {
		return Sizes{}
	}
	out := make(Sizes, len(s))
	copy(out, s)
	return out
}
