// README: Driver roster read model.
package driver

import (
	"time"

	"towline/internal/types"
)

type Driver struct {
	ID        types.ID
	Name      string
	Phone     string
	Rating    float64
	Approved  bool
	Online    bool
	CreatedAt time.Time
}
