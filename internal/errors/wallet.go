package errors

var (
	ErrInsufficientBalance = &DomainError{
		Kind:    KindAuthorization,
		Code:    "INSUFFICIENT_BALANCE",
		Message: "insufficient wallet balance",
	}
	ErrInsufficientPoints = &DomainError{
		Kind:    KindAuthorization,
		Code:    "INSUFFICIENT_POINTS",
		Message: "insufficient points",
	}
	ErrBalanceChanged = &DomainError{
		Kind:    KindConsistency,
		Code:    "BALANCE_CHANGED",
		Message: "insufficient funds (balance changed during transaction)",
	}
	ErrInvalidAmount = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_AMOUNT",
		Message: "invalid amount",
	}
	ErrUnsupportedCurrency = &DomainError{
		Kind:    KindValidation,
		Code:    "UNSUPPORTED_CURRENCY",
		Message: "unsupported currency",
	}
	ErrWalletNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "WALLET_NOT_FOUND",
		Message: "wallet not found",
	}
	ErrReferenceMismatch = &DomainError{
		Kind:    KindConflict,
		Code:    "REFERENCE_MISMATCH",
		Message: "payment reference is already used by another operation",
	}
	ErrTransactionFailed = &DomainError{
		Kind:    KindInternal,
		Code:    "TRANSACTION_FAILED",
		Message: "transaction failed, no funds deducted, please try again",
	}
	ErrInternal = &DomainError{
		Kind:    KindInternal,
		Code:    "INTERNAL",
		Message: "internal error",
	}
)
