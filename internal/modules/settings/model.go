// README: Operator-tunable settings stored as JSON values under unique keys.
package settings

import (
	"encoding/json"
	"time"
)

type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
