package apperrors

import "errors"

// Data availability errors. These describe routine data-quality states and are
// rendered as informative messages, not failures.
var (
	// ErrDataUnavailable indicates the valuation table is missing, empty or
	// uncoercible after cleaning.
	ErrDataUnavailable = errors.New("valuation data unavailable")

	// ErrNoDataFile indicates no file matched the index prefix in the data directory.
	ErrNoDataFile = errors.New("no valuation data file found")
)

// Ledger errors. Operations that return one of these leave the stored state unchanged.
var (
	// ErrUnknownIndex indicates the index code is not configured.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrEmptyIndexCode indicates a required index code is missing.
	ErrEmptyIndexCode = errors.New("index code cannot be empty")

	// ErrInvalidPosition indicates an edit/delete referenced a position outside the history.
	ErrInvalidPosition = errors.New("history position out of range")

	// ErrTransactionNotFound indicates no transaction carries the given id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrOversell indicates a sell of more units than currently held.
	ErrOversell = errors.New("sell exceeds units held")

	ErrInvalidUnit  = errors.New("unit must be positive")
	ErrInvalidPrice = errors.New("price must be positive")
	ErrInvalidType  = errors.New("transaction type must be buy or sell")
	ErrInvalidDate  = errors.New("transaction date is required")
)

// Data integrity errors.
var (
	// ErrCorruptState indicates the persisted ledger file could not be decoded.
	ErrCorruptState = errors.New("ledger state file is corrupt")
)
