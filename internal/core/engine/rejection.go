package engine

import "errors"

// Rejection is a deterministic rejection of a request. The Reason string is
// published verbatim in the error outcome event and is part of the wire
// contract; do not reword.
type Rejection struct {
	Code   string
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

var (
	ErrUnparsableContent = &Rejection{Code: "unparsable-content", Reason: "Unparsable content"}
	ErrBadDelegation     = &Rejection{Code: "bad-delegation", Reason: "Bad delegation"}
	ErrNonPositiveAmount = &Rejection{Code: "non-positive-amount", Reason: "Token amount must be a positive number"}
	ErrUnsupportedToken  = &Rejection{Code: "unsupported-token", Reason: "Token not supported"}
	ErrUnsupportedType   = &Rejection{Code: "unsupported-type", Reason: "Transaction not supported"}
	ErrUnauthorizedMint  = &Rejection{Code: "unauthorized-mint", Reason: "Author cannot mint this token"}
	ErrUnauthorizedBurn  = &Rejection{Code: "unauthorized-burn", Reason: "Author cannot burn this token"}
	ErrInsufficientFunds = &Rejection{Code: "insufficient-funds", Reason: "Not enough funds"}
)

// ReasonNetworkError is published when transient retries are exhausted.
const ReasonNetworkError = "Network Error"

// ErrDuplicate marks a request whose event id is already stored. Duplicates
// are dropped silently: no republish, no error event.
var ErrDuplicate = errors.New("duplicate request event")

// AsRejection unwraps a deterministic rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
