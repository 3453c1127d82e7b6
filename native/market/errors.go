package market

import "errors"

var (
	ErrNilState = errors.New("market engine: collaborators not configured")
	// ErrTokenUnknown is returned when an operation references a tid that was
	// never created on this market.
	ErrTokenUnknown = errors.New("market engine: token not created")
	// ErrAmount covers zero amounts and amounts exceeding a balance, a
	// position, or the circulating supply.
	ErrAmount = errors.New("market engine: amount invalid")
	// ErrTokenAmount is the cash/forceCash flavour of ErrAmount: zero or
	// over-amount against the position being settled.
	ErrTokenAmount = errors.New("market engine: token amount invalid")
	// ErrValue is returned when the supplied native-currency value understates
	// the computed payment requirement. The engine never silently short-pays.
	ErrValue = errors.New("market engine: insufficient pay value supplied")
	// ErrAccessOwner is returned when the caller neither owns nor is approved
	// on the position.
	ErrAccessOwner = errors.New("market engine: caller is not owner or approved")
	// ErrCash is returned when cash would require the owner to cover a
	// deficit; forceCash handles that case.
	ErrCash = errors.New("market engine: position has no realizable surplus")
	// ErrFeeRecipient is returned when a non-zero fee has no configured
	// recipient to route to.
	ErrFeeRecipient = errors.New("market engine: fee recipient not configured")
)
