package match

import "context"

// Store persists match records under an optimistic-concurrency contract:
// ConditionalUpdateMatch succeeds only when the stored version still equals
// expectedVersion, and bumps the version by one as part of the write.
// Unrelated matches never contend with each other.
type Store interface {
	GetMatch(ctx context.Context, id string) (*Match, error)
	CreateMatch(ctx context.Context, m *Match) error
	ConditionalUpdateMatch(ctx context.Context, id string, expectedVersion int64, m *Match) error
	DeleteMatch(ctx context.Context, id string) error

	// ListOngoingExhibition returns ongoing automated-vs-automated matches
	// ordered by most recent move first.
	ListOngoingExhibition(ctx context.Context) ([]*Match, error)
}
