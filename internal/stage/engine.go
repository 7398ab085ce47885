package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/darkking4096/odonto/pkg/logging"
)

// Turn is one inbound message to process.
type Turn struct {
	ClientID   string
	MessageID  string
	Text       string
	ReceivedAt time.Time
}

// Observer receives per-turn measurements. A nil observer disables them.
type Observer interface {
	TurnHandled(stage Stage, seconds float64)
	TransitionRecorded(from, to Stage)
	FallbackUsed()
}

// Engine runs the full turn pipeline: extract, validate, merge, route,
// persist, compose. Turns for the same client are serialized; turns for
// different clients run concurrently.
type Engine struct {
	extractor *Extractor
	validator *Validator
	router    *Router
	store     Store
	composer  *Composer
	locker    TurnLocker
	local     *keyedMutex
	observer  Observer
	logger    *logging.Logger
}

// NewEngine wires the pipeline. locker may be NoopLocker when a single
// process owns all clients; observer may be nil.
func NewEngine(store Store, composer *Composer, validator *Validator, locker TurnLocker, observer Observer, logger *logging.Logger) *Engine {
	if locker == nil {
		locker = NoopLocker{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		extractor: NewExtractor(),
		validator: validator,
		router:    NewRouter(),
		store:     store,
		composer:  composer,
		locker:    locker,
		local:     newKeyedMutex(),
		observer:  observer,
		logger:    logger,
	}
}

// HandleMessage processes one turn and returns the reply text. The state
// write commits before the reply is produced; a persistence failure aborts
// the turn with no reply and no state change.
func (e *Engine) HandleMessage(ctx context.Context, t Turn) (string, error) {
	started := time.Now()

	e.local.lock(t.ClientID)
	defer e.local.unlock(t.ClientID)

	release, err := e.locker.Acquire(ctx, t.ClientID)
	if err != nil {
		return "", fmt.Errorf("stage: acquiring turn lock for %s: %w", t.ClientID, err)
	}
	defer release()

	p, err := e.store.GetProfile(ctx, t.ClientID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		p = NewProfile(t.ClientID, t.ReceivedAt)
	case err != nil:
		return "", fmt.Errorf("stage: loading profile for %s: %w", t.ClientID, err)
	}

	var (
		cands Candidates
		v     Validation
		d     Decision
	)
	if p.CurrentStage == Closing {
		// Terminal stage: no extraction, the turn is recorded as a
		// self-loop and answered with the closing reply.
		d = Decision{From: Closing, To: Closing}
	} else {
		cands = e.extractor.Extract(t.Text, t.ReceivedAt)
		if p.CurrentStage == SlotProposal && cands.Time == "" {
			// "1", "2", "3" picks from the offered grid.
			if choice := resolveSlotChoice(t.Text, p.ProposedSlots); choice != "" {
				cands.Time = choice
			}
		}
		v = e.validator.Validate(cands, t.ReceivedAt)
		prevWindow := p.TimeWindow
		p.merge(v.Accepted)
		d = e.router.Route(p, v, cands, t.Text)
		if p.CurrentStage == SlotProposal && (len(p.ProposedSlots) == 0 || p.TimeWindow != prevWindow) {
			// A period answered during the proposal refreshes the offer;
			// the numbered choice must resolve against what was listed.
			p.ProposedSlots = proposeSlots(p.TimeWindow, e.validator)
		}
	}
	p.UpdatedAt = t.ReceivedAt.UTC()

	rec := HistoryRecord{
		ClientID:   t.ClientID,
		FromStage:  d.From,
		ToStage:    d.To,
		Candidates: cands,
		CreatedAt:  t.ReceivedAt.UTC(),
	}
	in := InboundMessage{
		MessageID: t.MessageID,
		Content:   t.Text,
		CreatedAt: t.ReceivedAt.UTC(),
	}
	replayed := false
	if err := e.store.SaveTurn(ctx, p, rec, in); err != nil {
		if !errors.Is(err, ErrDuplicateTurn) {
			return "", fmt.Errorf("stage: persisting turn for %s: %w", t.ClientID, err)
		}
		// The message already committed a turn. Discard this run's merge
		// and answer from the stored state: no field changes, self-loop.
		fresh, ferr := e.store.GetProfile(ctx, t.ClientID)
		if ferr != nil {
			return "", fmt.Errorf("stage: reloading profile for %s: %w", t.ClientID, ferr)
		}
		p = fresh
		v = Validation{}
		d = Decision{From: p.CurrentStage, To: p.CurrentStage}
		replayed = true
	}

	reply, usedFallback := e.composer.Compose(ctx, p, v, t.Text)
	if usedFallback && e.observer != nil {
		e.observer.FallbackUsed()
	}

	if !replayed {
		if err := e.store.RecordOutbound(ctx, t.ClientID, reply, time.Now()); err != nil {
			// The turn is already committed; losing the outbound transcript
			// row must not lose the reply.
			e.logger.Warn("failed to record outbound message",
				"client_id", t.ClientID,
				"error", err.Error(),
			)
		}
	}

	if e.observer != nil {
		e.observer.TurnHandled(p.CurrentStage, time.Since(started).Seconds())
		if !d.SelfLoop() {
			e.observer.TransitionRecorded(d.From, d.To)
		}
	}
	e.logger.Info("turn handled",
		"client_id", t.ClientID,
		"from_stage", string(d.From),
		"to_stage", string(d.To),
		"fallback", usedFallback,
		"replayed", replayed,
	)
	return reply, nil
}

// GetStats exposes the aggregate counters.
func (e *Engine) GetStats(ctx context.Context) (Stats, error) {
	return e.store.Stats(ctx)
}
