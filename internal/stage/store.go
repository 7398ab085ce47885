package stage

import (
	"context"
	"errors"
	"time"
)

// Message direction markers, kept as the two-state strings the transcript
// tables use.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// InboundMessage is the transcript row for the message that triggered a turn.
type InboundMessage struct {
	MessageID string
	Content   string
	CreatedAt time.Time
}

// ErrProfileNotFound is returned by stores when a client has no profile yet.
// The engine treats it as "first contact" and starts a fresh profile.
var ErrProfileNotFound = errors.New("stage: profile not found")

// ErrDuplicateTurn is returned by SaveTurn when the inbound message id was
// already committed by an earlier turn. The write is discarded; the engine
// answers the redelivery from the stored state as a self-loop.
var ErrDuplicateTurn = errors.New("stage: turn already recorded")

// Store is the persistence capability the engine consumes. A store failure
// is fatal to the turn: SaveTurn must be atomic so a failed turn leaves no
// partial profile or history behind.
type Store interface {
	// GetProfile loads the client's profile, or ErrProfileNotFound.
	GetProfile(ctx context.Context, clientID string) (*Profile, error)
	// SaveTurn persists the updated profile, the turn's history record and
	// the inbound message in one atomic write. A message id that was already
	// committed returns ErrDuplicateTurn with nothing written.
	SaveTurn(ctx context.Context, p *Profile, rec HistoryRecord, in InboundMessage) error
	// RecordOutbound appends the reply to the transcript. It runs after the
	// turn is committed, so a failure here is logged, not fatal.
	RecordOutbound(ctx context.Context, clientID, content string, at time.Time) error
	// Stats aggregates the read-only counters for GET /stats.
	Stats(ctx context.Context) (Stats, error)
}

// PromptStore loads the per-stage prompt configuration.
type PromptStore interface {
	// ActivePrompts returns the single active template for every stage.
	ActivePrompts(ctx context.Context) (map[Stage]PromptTemplate, error)
}

// TurnLocker serializes turns per client across process instances. Acquire
// blocks until the lock is held or ctx is done; the returned func releases it.
type TurnLocker interface {
	Acquire(ctx context.Context, clientID string) (release func(), err error)
}
