package errors

var (
	ErrNumberUnavailable = &DomainError{
		Kind:    KindConflict,
		Code:    "NUMBER_UNAVAILABLE",
		Message: "phone number is already held by another account",
	}
	ErrNumberPending = &DomainError{
		Kind:    KindInProgress,
		Code:    "NUMBER_PENDING",
		Message: "phone number order is still being processed",
	}
	ErrNumberNotOwned = &DomainError{
		Kind:    KindForbidden,
		Code:    "NUMBER_NOT_OWNED",
		Message: "you can only send from an active number you own",
	}
)
