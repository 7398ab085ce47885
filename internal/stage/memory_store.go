package stage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps profiles, history and transcripts in process memory. It
// backs tests and local development without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	history  []HistoryRecord
	messages []memoryMessage
	convos   map[string]struct{}
	seenIDs  map[string]struct{}
}

type memoryMessage struct {
	clientID  string
	direction string
	content   string
	createdAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
		convos:   make(map[string]struct{}),
		seenIDs:  make(map[string]struct{}),
	}
}

// GetProfile returns a copy of the stored profile.
func (s *MemoryStore) GetProfile(_ context.Context, clientID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[clientID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	if p.DesiredDay != nil {
		d := *p.DesiredDay
		cp.DesiredDay = &d
	}
	cp.ProposedSlots = append([]string(nil), p.ProposedSlots...)
	return &cp, nil
}

// SaveTurn stores the profile, history record and inbound message together.
func (s *MemoryStore) SaveTurn(_ context.Context, p *Profile, rec HistoryRecord, in InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.MessageID != "" {
		if _, ok := s.seenIDs[in.MessageID]; ok {
			return ErrDuplicateTurn
		}
		s.seenIDs[in.MessageID] = struct{}{}
	}

	cp := *p
	if p.DesiredDay != nil {
		d := *p.DesiredDay
		cp.DesiredDay = &d
	}
	cp.ProposedSlots = append([]string(nil), p.ProposedSlots...)
	s.profiles[p.ClientID] = &cp
	s.history = append(s.history, rec)
	s.convos[p.ClientID] = struct{}{}
	s.messages = append(s.messages, memoryMessage{
		clientID:  p.ClientID,
		direction: DirectionIn,
		content:   in.Content,
		createdAt: in.CreatedAt,
	})
	return nil
}

// RecordOutbound appends the reply to the transcript.
func (s *MemoryStore) RecordOutbound(_ context.Context, clientID, content string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, memoryMessage{
		clientID:  clientID,
		direction: DirectionOut,
		content:   content,
		createdAt: at,
	})
	return nil
}

// Stats aggregates the counters the /stats endpoint serves.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalClients:  len(s.profiles),
		TotalConvos:   len(s.convos),
		TotalMessages: len(s.messages),
		Stages:        make(map[string]int),
	}
	for _, rec := range s.history {
		if rec.FromStage != rec.ToStage {
			stats.TotalTransitions++
		}
	}
	for _, p := range s.profiles {
		stats.Stages[string(p.CurrentStage)]++
	}
	return stats, nil
}

// History returns a copy of the appended records, ordered as written.
func (s *MemoryStore) History(clientID string) []HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []HistoryRecord
	for _, rec := range s.history {
		if rec.ClientID == clientID {
			out = append(out, rec)
		}
	}
	return out
}

// MemoryPromptStore serves a fixed template set, defaulting to the seeded
// Portuguese prompts.
type MemoryPromptStore struct {
	templates map[Stage]PromptTemplate
}

// NewMemoryPromptStore returns a prompt store with the default seed.
func NewMemoryPromptStore() *MemoryPromptStore {
	return &MemoryPromptStore{templates: DefaultPromptTemplates()}
}

// ActivePrompts returns the template map.
func (s *MemoryPromptStore) ActivePrompts(_ context.Context) (map[Stage]PromptTemplate, error) {
	out := make(map[Stage]PromptTemplate, len(s.templates))
	for k, v := range s.templates {
		out[k] = v
	}
	return out, nil
}
