package provider

import "fmt"

// ExchangeError reports a failed authorization-code exchange. The caller
// decides whether to restart the link flow.
type ExchangeError struct {
	Reason string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %s", e.Reason)
}

// RefreshError reports a rejected or unusable refresh grant. The bundle it
// was attempted for must be treated as disconnected.
type RefreshError struct {
	Reason string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %s", e.Reason)
}

// SyncError reports a failed data fetch. Stage distinguishes the fatal
// account-list fetch from a per-account transaction fetch, which callers
// skip instead of failing.
type SyncError struct {
	Stage  string
	Status int
	Reason string
}

func (e *SyncError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s fetch failed with status %d: %s", e.Stage, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s fetch failed: %s", e.Stage, e.Reason)
}
