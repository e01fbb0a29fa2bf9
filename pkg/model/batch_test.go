package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBatchStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to BatchStatus
		ok       bool
	}{
		{StatusHeld, StatusProofSubmitted, true},
		{StatusHeld, StatusExpired, true},
		{StatusHeld, StatusConfirmed, false},
		{StatusProofSubmitted, StatusDetailsCollected, true},
		{StatusDetailsCollected, StatusSubmittedForReview, true},
		{StatusSubmittedForReview, StatusConfirmed, true},
		{StatusSubmittedForReview, StatusExpired, true},
		{StatusConfirmed, StatusDispatched, true},
		{StatusConfirmed, StatusExpired, false},
		{StatusDispatched, StatusReturned, true},
		{StatusDispatched, StatusPickedUp, true},
		{StatusPickedUp, StatusReturned, false},
		{StatusExpired, StatusHeld, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestBatchStatus_TerminalAndLive(t *testing.T) {
	assert.True(t, StatusExpired.Terminal())
	assert.True(t, StatusPickedUp.Terminal())
	assert.True(t, StatusReturned.Terminal())
	assert.False(t, StatusConfirmed.Terminal())

	assert.True(t, StatusHeld.Live())
	assert.True(t, StatusSubmittedForReview.Live())
	assert.False(t, StatusConfirmed.Live())
}

func TestBatch_TotalAndProducts(t *testing.T) {
	b := Batch{Items: []Item{
		{ProductID: "p1", Size: "40", Price: decimal.NewFromInt(1000)},
		{ProductID: "p2", Size: "38", Price: decimal.NewFromInt(750)},
		{ProductID: "p1", Size: "41", Price: decimal.NewFromInt(1000)},
	}}
	assert.True(t, decimal.NewFromInt(2750).Equal(b.Total()))
	assert.Equal(t, []string{"p1", "p2"}, b.ProductIDs())
}

func TestLineError_Unwraps(t *testing.T) {
	err := error(&LineError{Line: 2, ProductID: "p1", Size: "40", Requested: 2, Available: 1, Err: ErrInsufficientAvailability})
	assert.True(t, errors.Is(err, ErrInsufficientAvailability))

	var le *LineError
	assert.True(t, errors.As(err, &le))
	assert.Equal(t, 2, le.Line)
	assert.Contains(t, err.Error(), "requested 2, available 1")
}
