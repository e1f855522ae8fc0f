package enums

import "fmt"

// TransactionStatus tracks the escrow lifecycle of a purchase attempt.
//
// The graph is strictly monotonic: a transaction never moves backwards,
// and every status write must go through CanTransition.
type TransactionStatus string

const (
	// TransactionStatusCreated means the listing is reserved and the buyer
	// has been handed off to the payment provider. No funds have moved.
	TransactionStatusCreated TransactionStatus = "created"
	// TransactionStatusInVault means funding was confirmed and the money is
	// held in the digital vault until the handover is verified.
	TransactionStatusInVault TransactionStatus = "in_vault"
	// TransactionStatusReleased is terminal: the handover token was redeemed
	// and funds are released to the seller.
	TransactionStatusReleased TransactionStatus = "released"
	// TransactionStatusExpired is terminal: no funding arrived before the
	// reservation TTL ran out.
	TransactionStatusExpired TransactionStatus = "expired"
	// TransactionStatusFailed is terminal: the provider reported a
	// definitive payment failure.
	TransactionStatusFailed TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusCreated,
	TransactionStatusInVault,
	TransactionStatusReleased,
	TransactionStatusExpired,
	TransactionStatusFailed,
}

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusCreated: {
		TransactionStatusInVault,
		TransactionStatusExpired,
		TransactionStatusFailed,
	},
	TransactionStatusInVault: {
		TransactionStatusReleased,
	},
}

// String implements fmt.Stringer.
func (t TransactionStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionStatus.
func (t TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (t TransactionStatus) IsTerminal() bool {
	return len(transactionTransitions[t]) == 0 && t.IsValid()
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to TransactionStatus) bool {
	for _, candidate := range transactionTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
