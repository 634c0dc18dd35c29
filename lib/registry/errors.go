package registry

import (
	"errors"
	"fmt"

	"github.com/fiffu/ttquick/lib/models"
)

// ErrLocationRetired is returned when subscribing to a location the
// directory no longer lists.
var ErrLocationRetired = errors.New("location is no longer operational")

// ConsistencyError reports a location whose subscriber count disagrees with
// its subscriber set. It should never happen; when it does the count is
// recomputed from the set.
type ConsistencyError struct {
	LocationID models.LocationID
	Count      int
	SetSize    int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("location %s: subscriber count %d does not match %d subscribers", e.LocationID, e.Count, e.SetSize)
}
