package slotapi

import (
	"errors"
	"fmt"

	"github.com/fiffu/ttquick/lib/models"
)

// TransientFetchError means the scheduler API could not answer for a
// location: transport failure, timeout, unexpected status or an undecodable
// body. The caller retries on its next scheduled run.
type TransientFetchError struct {
	LocationID models.LocationID
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.LocationID == 0 {
		return fmt.Sprintf("slotapi: fetch failed: %v", e.Err)
	}
	return fmt.Sprintf("slotapi: location %s: fetch failed: %v", e.LocationID, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var tfe *TransientFetchError
	return errors.As(err, &tfe)
}
