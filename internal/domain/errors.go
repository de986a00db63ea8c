package domain

import "errors"

var (
	// ErrContractNotFound is returned when a contract key is not registered
	ErrContractNotFound = errors.New("contract not found")

	// ErrHolderNotFound is returned when a wallet owns no tokens of a contract
	ErrHolderNotFound = errors.New("holder not found")

	// ErrPopulationInProgress is returned when a population run is already active
	ErrPopulationInProgress = errors.New("population already in progress")

	// ErrNoSnapshot is returned when no holders snapshot has been built yet
	ErrNoSnapshot = errors.New("no holders snapshot available")

	// ErrEmptyOwnership is returned when an ownership scan finds zero owners
	// for a contract whose total supply is non-zero
	ErrEmptyOwnership = errors.New("ownership scan returned no owners")

	// ErrRateLimited is returned when the upstream provider rejected a request
	// due to rate limiting after all retries were exhausted
	ErrRateLimited = errors.New("upstream provider rate limited")
)
