package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSchedulingConflict        = errors.New("this staff member is already booked for this time")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrPromotionInvalid          = errors.New("promotion invalid")
	ErrInsufficientLoyaltyPoints = errors.New("insufficient loyalty points")
	ErrInvoiceNumberCollision    = errors.New("invoice number collision")
	ErrNotFound                  = errors.New("not found")
	ErrTransactionAborted        = errors.New("transaction aborted")
	ErrInvalidRequest            = errors.New("invalid request")
	ErrNoActiveTransaction       = errors.New("write requires an active transaction")
)

type InsufficientStockError struct {
	ProductID string
	OutletID  string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s at %s", e.ProductID, e.OutletID)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type PromotionReason string

const (
	PromotionNotFound       PromotionReason = "not_found"
	PromotionInactive       PromotionReason = "inactive"
	PromotionNotStarted     PromotionReason = "not_started"
	PromotionExpired        PromotionReason = "expired"
	PromotionUsageExhausted PromotionReason = "usage_limit_reached"
	PromotionOutsideHours   PromotionReason = "outside_allowed_hours"
	PromotionMinBillNotMet  PromotionReason = "minimum_bill_not_met"
	PromotionNotEligible    PromotionReason = "customer_not_eligible"
	PromotionMisconfigured  PromotionReason = "misconfigured"
)

var promotionReasonText = map[PromotionReason]string{
	PromotionNotFound:       "promotion not found",
	PromotionInactive:       "promotion is not active",
	PromotionNotStarted:     "promotion has not started yet",
	PromotionExpired:        "promotion expired",
	PromotionUsageExhausted: "promotion usage limit reached",
	PromotionOutsideHours:   "promotion is outside allowed hours",
	PromotionMinBillNotMet:  "minimum bill not met",
	PromotionNotEligible:    "customer not eligible for this promotion",
	PromotionMisconfigured:  "promotion is misconfigured",
}

type PromotionError struct {
	PromotionID string
	Reason      PromotionReason
}

func (e *PromotionError) Error() string {
	if text, ok := promotionReasonText[e.Reason]; ok {
		return text
	}
	return string(e.Reason)
}

func (e *PromotionError) Is(target error) bool {
	return target == ErrPromotionInvalid
}
