package repository

import (
	"context"

	"github.com/bigkaa/goartstore/media-module/internal/storage/kv"
)

// InviteRepository — счётчик пространства invite. Выпуск и погашение
// ключей принадлежат подсистеме аутентификации.
type InviteRepository struct {
	ns kv.Namespace
}

// NewInviteRepository создаёт репозиторий поверх пространства invite.
func NewInviteRepository(store kv.Store) (*InviteRepository, error) {
	ns, err := store.Namespace(kv.NamespaceInvite)
	if err != nil {
		return nil, err
	}
	return &InviteRepository{ns: ns}, nil
}

// Count возвращает количество ключей приглашений.
func (r *InviteRepository) Count(ctx context.Context) (int, error) {
	entries, err := r.ns.Scan(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
