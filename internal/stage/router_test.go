package stage

import (
	"testing"
	"time"
)

var routeRef = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

// routeTurn runs extract+validate+merge+route the way the engine does, so
// these tests exercise full turns against a profile.
func routeTurn(t *testing.T, p *Profile, text string) Decision {
	t.Helper()
	e := NewExtractor()
	v := newTestValidator(t)
	cands := e.Extract(text, routeRef)
	validation := v.Validate(cands, routeRef)
	p.merge(validation.Accepted)
	return NewRouter().Route(p, validation, cands, text)
}

func TestRouteGreetingToIntent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Stage
	}{
		{"booking keyword", "quero agendar uma consulta", Intent},
		{"procedure name", "preciso de uma limpeza", Intent},
		{"procedure mention advances", "quero consultar sobre implante", Intent},
		{"small talk stays", "bom dia, tudo bem?", Greeting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProfile("c1", routeRef)
			d := routeTurn(t, p, tt.text)
			if d.To != tt.want {
				t.Errorf("To = %s, want %s", d.To, tt.want)
			}
			if d.From != Greeting {
				t.Errorf("From = %s, want greeting", d.From)
			}
		})
	}
}

func TestRouteIntentNeedsNameAndProcedure(t *testing.T) {
	p := NewProfile("c1", routeRef)
	p.CurrentStage = Intent

	if d := routeTurn(t, p, "quero uma limpeza"); !d.SelfLoop() {
		t.Fatalf("missing name should self-loop, went to %s", d.To)
	}
	if d := routeTurn(t, p, "meu nome é João Silva"); d.To != DataCollection {
		t.Fatalf("To = %s, want data_collection", d.To)
	}
}

func TestRouteAtMostOneAdvancePerTurn(t *testing.T) {
	// Everything at once from intent still stops at data_collection.
	p := NewProfile("c1", routeRef)
	p.CurrentStage = Intent

	d := routeTurn(t, p, "Meu nome é Ana Paula, quero limpeza amanhã às 14h")
	if d.To != DataCollection {
		t.Fatalf("To = %s, want data_collection", d.To)
	}
	// The extra fields were kept; the next turns advance without re-asking.
	if p.DesiredDay == nil || p.DesiredTime != "14:00" {
		t.Fatalf("profile dropped extra fields: %+v", p)
	}
	if d := routeTurn(t, p, "isso"); d.To != SlotProposal {
		t.Fatalf("To = %s, want slot_proposal", d.To)
	}
}

func TestRouteDataCollectionToSlotProposal(t *testing.T) {
	p := NewProfile("c1", routeRef)
	p.CurrentStage = DataCollection
	p.FullName = "João Silva"
	p.Procedure = "limpeza"

	if d := routeTurn(t, p, "pode ser qualquer dia"); !d.SelfLoop() {
		t.Fatalf("no day should self-loop, went to %s", d.To)
	}
	if d := routeTurn(t, p, "amanhã de manhã"); d.To != SlotProposal {
		t.Fatalf("To = %s, want slot_proposal", d.To)
	}
	if p.TimeWindow != "manhã" {
		t.Errorf("TimeWindow = %q, want manhã", p.TimeWindow)
	}
}

func TestRouteSlotProposalToConfirmation(t *testing.T) {
	p := NewProfile("c1", routeRef)
	p.CurrentStage = SlotProposal
	p.FullName = "João Silva"
	p.Procedure = "limpeza"
	d := routeRef.AddDate(0, 0, 1)
	p.DesiredDay = &d

	if dec := routeTurn(t, p, "nenhum desses serve"); !dec.SelfLoop() {
		t.Fatalf("no time should self-loop, went to %s", dec.To)
	}
	if dec := routeTurn(t, p, "pode ser às 10h30"); dec.To != Confirmation {
		t.Fatalf("To = %s, want confirmation", dec.To)
	}
	if p.DesiredTime != "10:30" {
		t.Errorf("DesiredTime = %q, want 10:30", p.DesiredTime)
	}
}

func confirmationProfile(ref time.Time) *Profile {
	d := ref.AddDate(0, 0, 1)
	return &Profile{
		ClientID:      "c1",
		FullName:      "João Silva",
		Procedure:     "limpeza",
		DesiredDay:    &d,
		DesiredTime:   "10:30",
		ProposedSlots: []string{"09:00", "10:30"},
		CurrentStage:  Confirmation,
		UpdatedAt:     ref,
	}
}

func TestRouteConfirmationAffirmative(t *testing.T) {
	for _, text := range []string{"sim", "pode confirmar", "isso, perfeito", "ok"} {
		t.Run(text, func(t *testing.T) {
			p := confirmationProfile(routeRef)
			if d := routeTurn(t, p, text); d.To != Closing {
				t.Errorf("To = %s, want closing", d.To)
			}
		})
	}
}

func TestRouteConfirmationNewDayClearsTime(t *testing.T) {
	p := confirmationProfile(routeRef)
	d := routeTurn(t, p, "na verdade prefiro sexta-feira")

	if d.To != SlotProposal {
		t.Fatalf("To = %s, want slot_proposal", d.To)
	}
	if p.DesiredTime != "" || p.ProposedSlots != nil {
		t.Errorf("dependent fields not cleared: time=%q slots=%v", p.DesiredTime, p.ProposedSlots)
	}
	if p.DesiredDay == nil || p.DesiredDay.Weekday() != time.Friday {
		t.Errorf("DesiredDay = %v, want next Friday", p.DesiredDay)
	}
	// Independent fields survive the correction.
	if p.FullName != "João Silva" || p.Procedure != "limpeza" {
		t.Errorf("independent fields lost: %+v", p)
	}
}

func TestRouteConfirmationReschedule(t *testing.T) {
	for _, text := range []string{"quero remarcar", "preciso mudar", "pode ser outro dia?"} {
		t.Run(text, func(t *testing.T) {
			p := confirmationProfile(routeRef)
			d := routeTurn(t, p, text)

			if d.To != DataCollection {
				t.Fatalf("To = %s, want data_collection", d.To)
			}
			if p.DesiredDay != nil || p.DesiredTime != "" {
				t.Errorf("day/time not cleared: %+v", p)
			}
			if p.FullName == "" || p.Procedure == "" {
				t.Errorf("name/procedure lost: %+v", p)
			}
		})
	}
}

func TestRouteConfirmationAmbiguousStays(t *testing.T) {
	p := confirmationProfile(routeRef)
	if d := routeTurn(t, p, "hmm deixa eu ver"); !d.SelfLoop() {
		t.Errorf("ambiguous reply should self-loop, went to %s", d.To)
	}
}

func TestRouteClosingIsTerminal(t *testing.T) {
	p := confirmationProfile(routeRef)
	p.CurrentStage = Closing
	if d := routeTurn(t, p, "quero agendar outra limpeza amanhã"); !d.SelfLoop() {
		t.Errorf("closing must not route away, went to %s", d.To)
	}
}

func TestRouteConfirmationCancel(t *testing.T) {
	for _, text := range []string{"quero cancelar", "cancela por favor", "pode desmarcar"} {
		t.Run(text, func(t *testing.T) {
			p := confirmationProfile(routeRef)
			d := routeTurn(t, p, text)
			if d.To != Closing {
				t.Errorf("To = %s, want closing", d.To)
			}
			if p.DesiredTime != "" || p.ProposedSlots != nil {
				t.Errorf("cancel kept the pending slot: time=%q slots=%v", p.DesiredTime, p.ProposedSlots)
			}
		})
	}
}

func TestRouteConfirmationCancelBeatsAffirmative(t *testing.T) {
	// "pode" alone confirms; "pode cancelar" must not book the slot.
	p := confirmationProfile(routeRef)
	d := routeTurn(t, p, "pode cancelar")
	if d.To != Closing {
		t.Fatalf("To = %s, want closing", d.To)
	}
	if p.DesiredTime != "" {
		t.Errorf("DesiredTime = %q, want cleared", p.DesiredTime)
	}
}
