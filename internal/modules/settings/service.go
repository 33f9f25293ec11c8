// README: Settings service; typed accessors over the raw JSON store.
package settings

import (
	"context"
	"encoding/json"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context) ([]Setting, error) {
	return s.store.List(ctx)
}

func (s *Service) Upsert(ctx context.Context, key string, value json.RawMessage) (Setting, error) {
	return s.store.Upsert(ctx, key, value)
}

// Float reads a numeric setting. ok is false when the key is absent or the
// stored value is not a number.
func (s *Service) Float(ctx context.Context, key string) (float64, bool, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	return floatFromJSON(raw)
}

func floatFromJSON(raw json.RawMessage) (float64, bool, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, nil
	}
	return v, true, nil
}
