package wallet

// History page bounds
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Reference prefixes for funds that arrive without a processor reference.
const (
	manualReferencePrefix = "fund_"
)
