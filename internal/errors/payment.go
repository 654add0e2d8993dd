package errors

var (
	ErrPaymentNotConfirmed = &DomainError{
		Kind:    KindAuthorization,
		Code:    "PAYMENT_NOT_CONFIRMED",
		Message: "payment failed or was not confirmed",
	}
	ErrPaymentPending = &DomainError{
		Kind:    KindAuthorization,
		Code:    "PAYMENT_PENDING",
		Message: "payment is still pending confirmation",
	}
	ErrPaymentMismatch = &DomainError{
		Kind:    KindAuthorization,
		Code:    "PAYMENT_MISMATCH",
		Message: "payment does not match this purchase",
	}
	ErrUnsupportedMethod = &DomainError{
		Kind:    KindValidation,
		Code:    "UNSUPPORTED_PAYMENT_METHOD",
		Message: "unsupported payment method",
	}
	ErrInvalidSignature = &DomainError{
		Kind:    KindUnauthenticated,
		Code:    "INVALID_SIGNATURE",
		Message: "invalid webhook signature",
	}
	ErrUnauthenticated = &DomainError{
		Kind:    KindUnauthenticated,
		Code:    "UNAUTHENTICATED",
		Message: "invalid credentials",
	}
	ErrForbidden = &DomainError{
		Kind:    KindForbidden,
		Code:    "FORBIDDEN",
		Message: "insufficient permissions",
	}
)

var (
	ErrPlanNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "PLAN_NOT_FOUND",
		Message: "plan not found",
	}
	ErrESimNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "ESIM_NOT_FOUND",
		Message: "eSIM not found",
	}
	ErrOrderInProgress = &DomainError{
		Kind:    KindInProgress,
		Code:    "ORDER_IN_PROGRESS",
		Message: "an order for this payment reference is already being processed",
	}
	ErrProvisioningFailed = &DomainError{
		Kind:    KindProvisioningFailed,
		Code:    "PROVISIONING_FAILED",
		Message: "provisioning failed, no funds deducted",
	}
	ErrProvisioningUnknown = &DomainError{
		Kind:    KindInProgress,
		Code:    "PROVISIONING_OUTCOME_UNKNOWN",
		Message: "provisioning did not complete in time, retry later with the same reference",
	}
)

var (
	ErrUserExists = &DomainError{
		Kind:    KindConflict,
		Code:    "USER_EXISTS",
		Message: "an account with this email already exists",
	}
	ErrUserNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "USER_NOT_FOUND",
		Message: "user not found",
	}
	ErrDuplicateInvite = &DomainError{
		Kind:    KindConflict,
		Code:    "DUPLICATE_INVITE",
		Message: "this email has already been invited",
	}
)
