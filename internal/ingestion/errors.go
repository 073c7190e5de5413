package ingestion

import "fmt"

// TransientFetchError is a failure worth retrying: network errors, timeouts,
// rate limiting, provider 5xx and an open circuit.
type TransientFetchError struct {
	Provider   string
	LocationID string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient fetch failure for %s (status %d): %v", e.Provider, e.LocationID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient fetch failure for %s: %v", e.Provider, e.LocationID, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// PermanentFetchError will not succeed on retry: bad credentials, an unknown
// or malformed location, or a payload that cannot be parsed.
type PermanentFetchError struct {
	Provider   string
	LocationID string
	StatusCode int
	Err        error
}

func (e *PermanentFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: permanent fetch failure for %s (status %d): %v", e.Provider, e.LocationID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: permanent fetch failure for %s: %v", e.Provider, e.LocationID, e.Err)
}

func (e *PermanentFetchError) Unwrap() error { return e.Err }
