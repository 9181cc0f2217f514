package domain

const (
	// LitoshisPerCoin is the number of litoshis in 1 LTC.
	LitoshisPerCoin = 100000000
	// DefaultMaxAddressAttempts is the default number of invalid addresses
	// accepted before the address entry is locked.
	DefaultMaxAddressAttempts = 5
)
