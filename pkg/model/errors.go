package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrPublisherUnavailable     = errors.New("listing publisher unavailable")
	ErrDuplicateProcessing      = errors.New("batch already processed")
	ErrMalformedInput           = errors.New("malformed input")

	ErrEmptyCart          = errors.New("cart is empty")
	ErrSessionBusy        = errors.New("session already has an active reservation")
	ErrInvalidTransition  = errors.New("invalid batch transition")
	ErrReservationExpired = errors.New("reservation expired")
	ErrUnitMissing        = errors.New("catalog unit missing")
	ErrProductInUse       = errors.New("product referenced by an open order")
)

// LineError reports the cart line that failed checkout validation.
type LineError struct {
	Line      int    `json:"line"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Err       error  `json:"-"`
}

func (e *LineError) Error() string {
	return fmt.Sprintf("cart line %d (%s size %s): %v: requested %d, available %d",
		e.Line, e.ProductID, e.Size, e.Err, e.Requested, e.Available)
}

func (e *LineError) Unwrap() error { return e.Err }
