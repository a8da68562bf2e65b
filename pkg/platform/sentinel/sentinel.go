package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the ledger and the
// simulation service return these (usually wrapped) and the HTTP layer maps
// them onto status codes.
//
//   - ErrNotFound: entity does not exist
//   - ErrConflict: entity already exists or the write raced another one
//   - ErrInvalidState: entity in wrong state for requested operation
//   - ErrUnavailable: service or resource temporarily unavailable
//
// Validation failures are not sentinels; callers return descriptive errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
