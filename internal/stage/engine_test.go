package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/darkking4096/odonto/internal/llm"
)

// fakeLLM returns a canned reply, or an error, and records invocations.
type fakeLLM struct {
	reply string
	err   error
	delay time.Duration
	calls int
}

func (f *fakeLLM) Complete(ctx context.Context, _ llm.Request) (llm.Response, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.reply}, nil
}

func newTestEngine(t *testing.T, st Store, client llm.Client) *Engine {
	t.Helper()
	v := newTestValidator(t)
	composer, err := NewComposer(context.Background(), NewMemoryPromptStore(), client, v, ComposerConfig{
		Timeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	return NewEngine(st, composer, v, NoopLocker{}, nil, nil)
}

func turnAt(clientID, text string, at time.Time) Turn {
	return Turn{ClientID: clientID, MessageID: "m-" + at.Format("150405.000"), Text: text, ReceivedAt: at}
}

func TestEngineFullConversation(t *testing.T) {
	st := NewMemoryStore()
	e := newTestEngine(t, st, &fakeLLM{reply: "certo!"})
	ctx := context.Background()
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	steps := []struct {
		text      string
		wantStage Stage
	}{
		{"oi, bom dia", Greeting},
		{"quero marcar uma limpeza", Intent},
		{"meu nome é João Silva", DataCollection},
		{"pode ser amanhã de manhã", SlotProposal},
		{"1", Confirmation},
		{"sim, confirmado", Closing},
	}
	for i, step := range steps {
		at = at.Add(time.Minute)
		reply, err := e.HandleMessage(ctx, turnAt("5511999990000", step.text, at))
		if err != nil {
			t.Fatalf("turn %d (%q): %v", i, step.text, err)
		}
		if reply == "" {
			t.Fatalf("turn %d: empty reply", i)
		}
		p, err := st.GetProfile(ctx, "5511999990000")
		if err != nil {
			t.Fatalf("turn %d: GetProfile: %v", i, err)
		}
		if p.CurrentStage != step.wantStage {
			t.Fatalf("turn %d (%q): stage = %s, want %s", i, step.text, p.CurrentStage, step.wantStage)
		}
	}

	p, _ := st.GetProfile(ctx, "5511999990000")
	if p.FullName != "João Silva" || p.Procedure != "limpeza" {
		t.Errorf("profile incomplete: %+v", p)
	}
	if p.DesiredTime != "09:00" {
		t.Errorf("DesiredTime = %q, want 09:00 (slot 1 of the morning grid)", p.DesiredTime)
	}

	// One history record per turn, self-loops included.
	history := st.History("5511999990000")
	if len(history) != len(steps) {
		t.Fatalf("history = %d records, want %d", len(history), len(steps))
	}
	if history[0].FromStage != Greeting || history[0].ToStage != Greeting {
		t.Errorf("first turn should be a recorded self-loop, got %+v", history[0])
	}
}

func TestEngineSlotProposalStoresOfferedSlots(t *testing.T) {
	st := NewMemoryStore()
	e := newTestEngine(t, st, &fakeLLM{reply: "certo!"})
	ctx := context.Background()
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	for _, text := range []string{"quero limpeza", "sou o Pedro Alves", "amanhã de manhã"} {
		at = at.Add(time.Minute)
		if _, err := e.HandleMessage(ctx, turnAt("c1", text, at)); err != nil {
			t.Fatalf("%q: %v", text, err)
		}
	}

	p, _ := st.GetProfile(ctx, "c1")
	if p.CurrentStage != SlotProposal {
		t.Fatalf("stage = %s, want slot_proposal", p.CurrentStage)
	}
	// Morning hint narrows the grid to the two morning slots.
	want := []string{"09:00", "10:30"}
	if len(p.ProposedSlots) != len(want) {
		t.Fatalf("ProposedSlots = %v, want %v", p.ProposedSlots, want)
	}
	for i := range want {
		if p.ProposedSlots[i] != want[i] {
			t.Fatalf("ProposedSlots = %v, want %v", p.ProposedSlots, want)
		}
	}

	// "2" picks the second offered slot.
	if _, err := e.HandleMessage(ctx, turnAt("c1", "2", at.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	p, _ = st.GetProfile(ctx, "c1")
	if p.DesiredTime != "10:30" || p.CurrentStage != Confirmation {
		t.Errorf("after choice: time=%q stage=%s", p.DesiredTime, p.CurrentStage)
	}
}

func TestEngineClosingRepliesWithoutRouting(t *testing.T) {
	st := NewMemoryStore()
	e := newTestEngine(t, st, &fakeLLM{reply: "até breve!"})
	ctx := context.Background()
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	p := confirmationProfile(at)
	p.CurrentStage = Closing
	if err := st.SaveTurn(ctx, p, HistoryRecord{ClientID: "c1", FromStage: Confirmation, ToStage: Closing, CreatedAt: at}, InboundMessage{Content: "sim", CreatedAt: at}); err != nil {
		t.Fatal(err)
	}

	reply, err := e.HandleMessage(ctx, turnAt("c1", "obrigado! quero marcar outra limpeza segunda", at.Add(time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if reply == "" {
		t.Fatal("empty reply")
	}

	got, _ := st.GetProfile(ctx, "c1")
	if got.CurrentStage != Closing {
		t.Errorf("stage = %s, want closing", got.CurrentStage)
	}
	history := st.History("c1")
	last := history[len(history)-1]
	if last.FromStage != Closing || last.ToStage != Closing || !last.Candidates.Empty() {
		t.Errorf("closing turn should be an empty self-loop record, got %+v", last)
	}
}

// failingStore aborts every SaveTurn.
type failingStore struct {
	*MemoryStore
}

func (s *failingStore) SaveTurn(context.Context, *Profile, HistoryRecord, InboundMessage) error {
	return errors.New("disk full")
}

func TestEnginePersistenceFailureAbortsTurn(t *testing.T) {
	st := &failingStore{NewMemoryStore()}
	client := &fakeLLM{reply: "certo!"}
	e := newTestEngine(t, st, client)

	reply, err := e.HandleMessage(context.Background(), turnAt("c1", "quero limpeza", time.Now()))
	if err == nil {
		t.Fatal("expected error")
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty on aborted turn", reply)
	}
	if client.calls != 0 {
		t.Errorf("composer ran %d times before persistence, want 0", client.calls)
	}
	if _, err := st.MemoryStore.GetProfile(context.Background(), "c1"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("aborted turn left a profile behind")
	}
}

// outboundFailStore commits turns but loses outbound transcript rows.
type outboundFailStore struct {
	*MemoryStore
}

func (s *outboundFailStore) RecordOutbound(context.Context, string, string, time.Time) error {
	return errors.New("transcript write failed")
}

func TestEngineOutboundFailureKeepsReply(t *testing.T) {
	st := &outboundFailStore{NewMemoryStore()}
	e := newTestEngine(t, st, &fakeLLM{reply: "certo!"})

	reply, err := e.HandleMessage(context.Background(), turnAt("c1", "quero limpeza", time.Now()))
	if err != nil {
		t.Fatalf("outbound failure must not fail the turn: %v", err)
	}
	if reply == "" {
		t.Error("empty reply")
	}
}

func TestEngineConcurrentTurnsSerialized(t *testing.T) {
	st := NewMemoryStore()
	e := newTestEngine(t, st, &fakeLLM{reply: "certo!"})
	ctx := context.Background()
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			_, err := e.HandleMessage(ctx, Turn{
				ClientID:   "c1",
				MessageID:  string(rune('a' + i)),
				Text:       "quero marcar limpeza",
				ReceivedAt: at,
			})
			done <- err
		}(i)
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}

	// Both turns ran; contents are identical so the profile is stable and
	// history holds exactly two records.
	if got := len(st.History("c1")); got != 2 {
		t.Errorf("history = %d records, want 2", got)
	}
	p, _ := st.GetProfile(ctx, "c1")
	if p.Procedure != "limpeza" {
		t.Errorf("profile = %+v", p)
	}
}

func TestEngineReplayedMessageIsSelfLoop(t *testing.T) {
	st := NewMemoryStore()
	e := newTestEngine(t, st, &fakeLLM{reply: "certo!"})
	ctx := context.Background()
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	turn := turnAt("c1", "sou o João Silva e quero limpeza", at)
	if _, err := e.HandleMessage(ctx, turn); err != nil {
		t.Fatal(err)
	}
	p, _ := st.GetProfile(ctx, "c1")
	if p.CurrentStage != Intent {
		t.Fatalf("stage after first delivery = %s, want intent", p.CurrentStage)
	}

	// The provider redelivers the same message id. The stored state must
	// stand: no further advance, no field changes, no extra history row.
	reply, err := e.HandleMessage(ctx, turn)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if reply == "" {
		t.Error("replay produced no reply")
	}
	p, _ = st.GetProfile(ctx, "c1")
	if p.CurrentStage != Intent {
		t.Errorf("stage after replay = %s, want intent", p.CurrentStage)
	}
	if p.FullName != "João Silva" || p.Procedure != "limpeza" {
		t.Errorf("replay changed the profile: %+v", p)
	}
	if got := len(st.History("c1")); got != 1 {
		t.Errorf("history = %d records, want 1 (replay adds none)", got)
	}
}

func TestEngineWindowAnswerRefreshesSlots(t *testing.T) {
	st := NewMemoryStore()
	e := newTestEngine(t, st, &fakeLLM{reply: "certo!"})
	ctx := context.Background()
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	for _, text := range []string{"quero limpeza", "sou o Pedro Alves", "pode ser amanhã"} {
		at = at.Add(time.Minute)
		if _, err := e.HandleMessage(ctx, turnAt("c1", text, at)); err != nil {
			t.Fatalf("%q: %v", text, err)
		}
	}
	p, _ := st.GetProfile(ctx, "c1")
	if p.CurrentStage != SlotProposal {
		t.Fatalf("stage = %s, want slot_proposal", p.CurrentStage)
	}
	if len(p.ProposedSlots) != 4 {
		t.Fatalf("slots without a window = %v, want the full grid", p.ProposedSlots)
	}

	// Answering the period question during the proposal narrows the offer,
	// and the numbered choice resolves against the narrowed list.
	at = at.Add(time.Minute)
	if _, err := e.HandleMessage(ctx, turnAt("c1", "de manhã", at)); err != nil {
		t.Fatal(err)
	}
	p, _ = st.GetProfile(ctx, "c1")
	if p.CurrentStage != SlotProposal {
		t.Fatalf("stage = %s, want slot_proposal", p.CurrentStage)
	}
	if len(p.ProposedSlots) != 2 || p.ProposedSlots[0] != "09:00" || p.ProposedSlots[1] != "10:30" {
		t.Fatalf("slots after morning answer = %v, want [09:00 10:30]", p.ProposedSlots)
	}

	at = at.Add(time.Minute)
	if _, err := e.HandleMessage(ctx, turnAt("c1", "2", at)); err != nil {
		t.Fatal(err)
	}
	p, _ = st.GetProfile(ctx, "c1")
	if p.DesiredTime != "10:30" {
		t.Errorf("DesiredTime = %q, want 10:30 (slot 2 of the morning grid)", p.DesiredTime)
	}
	if p.CurrentStage != Confirmation {
		t.Errorf("stage = %s, want confirmation", p.CurrentStage)
	}
}
