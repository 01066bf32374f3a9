package cart

// RejectReason explains why a candidate quantity was refused.
type RejectReason string

const (
	ReasonZero           RejectReason = "zero"
	ReasonNegativeOrZero RejectReason = "negative_or_zero"
	ReasonExceedsStock   RejectReason = "exceeds_stock"
)

type CheckResult struct {
	OK     bool
	Reason RejectReason
}

// CheckQuantity gates a cart mutation against a fresh stock snapshot.
// It accepts iff 0 < candidate <= available and never mutates anything;
// the caller decides what to do with a rejection.
func CheckQuantity(candidate, available int32) CheckResult {
	switch {
	case candidate == 0:
		return CheckResult{Reason: ReasonZero}
	case candidate < 0:
		return CheckResult{Reason: ReasonNegativeOrZero}
	case candidate > available:
		return CheckResult{Reason: ReasonExceedsStock}
	default:
		return CheckResult{OK: true}
	}
}
