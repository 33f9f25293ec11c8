// README: Driver service; read-only roster access for dispatch and the chat wizard.
package driver

import (
	"context"

	"towline/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListApproved(ctx context.Context) ([]Driver, error) {
	return s.store.ListApproved(ctx)
}
