package stage

import "strings"

// Decision is the outcome of routing one turn: the recorded transition plus
// any fields the correction path cleared.
type Decision struct {
	From    Stage
	To      Stage
	Cleared []string
}

// SelfLoop reports whether the turn stayed in place.
func (d Decision) SelfLoop() bool { return d.From == d.To }

// Keyword sets the router checks against accent-folded text.
var (
	intentKeywords      = []string{"agendar", "marcar", "consulta", "horario", "agendamento"}
	affirmativeKeywords = []string{"sim", "ok", "pode", "confirma", "confirmo", "isso", "perfeito", "certo"}
	rescheduleKeywords  = []string{"remarcar", "reagendar", "mudar", "trocar", "outro dia", "outra data"}
	cancelKeywords      = []string{"cancelar", "cancela", "desmarcar"}
)

// Router computes the next stage from the current stage, the merged profile
// and this turn's extraction outcome. It moves at most one step forward per
// turn, however many fields the turn filled.
type Router struct{}

// NewRouter returns the stage state machine.
func NewRouter() *Router { return &Router{} }

// Route evaluates the current stage's exit condition against the profile as
// it stands after the merge. Corrections in confirmation are the only
// backward moves; clearing is applied to the profile before returning.
func (r *Router) Route(p *Profile, v Validation, c Candidates, text string) Decision {
	folded := foldText(text)
	d := Decision{From: p.CurrentStage, To: p.CurrentStage}

	switch p.CurrentStage {
	case Greeting:
		// Any procedure-relevant utterance opens the booking flow, whether
		// or not the procedure itself validated.
		if c.Procedure != "" || containsAny(folded, intentKeywords) {
			d.To = Intent
		}

	case Intent:
		if p.FullName != "" && p.Procedure != "" && !v.RejectedField("procedure") {
			d.To = DataCollection
		}

	case DataCollection:
		if p.DesiredDay != nil {
			d.To = SlotProposal
		}

	case SlotProposal:
		if p.DesiredTime != "" {
			d.To = Confirmation
		}

	case Confirmation:
		d = r.routeConfirmation(p, v, c, folded)

	case Closing:
		// Terminal; every further turn is a recorded self-loop.
	}

	p.CurrentStage = d.To
	return d
}

func (r *Router) routeConfirmation(p *Profile, v Validation, c Candidates, folded string) Decision {
	d := Decision{From: Confirmation, To: Confirmation}

	// "quero cancelar" ends the flow without booking: the pending slot is
	// dropped and the conversation closes with a goodbye, not a booking.
	if containsAny(folded, cancelKeywords) {
		p.DesiredTime = ""
		p.ProposedSlots = nil
		d.Cleared = append(d.Cleared, "desired_time")
		d.To = Closing
		return d
	}

	// A newly accepted day invalidates the slot that was built on the old
	// one: clear only the dependent time and re-propose.
	if v.Accepted.Day != nil {
		p.DesiredTime = ""
		p.ProposedSlots = nil
		d.Cleared = append(d.Cleared, "desired_time")
		d.To = SlotProposal
		return d
	}

	// "quero remarcar" without a concrete new day reopens day collection.
	if containsAny(folded, rescheduleKeywords) {
		p.DesiredDay = nil
		p.DesiredTime = ""
		p.ProposedSlots = nil
		d.Cleared = append(d.Cleared, "desired_day", "desired_time")
		d.To = DataCollection
		return d
	}

	// A new valid time alone replaces the slot in place; the restated
	// summary in the reply covers the change, so no backward move.
	if containsAny(folded, affirmativeKeywords) {
		d.To = Closing
	}
	return d
}

func containsAny(folded string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(folded, kw) {
				return true
			}
			continue
		}
		if containsWord(folded, kw) {
			return true
		}
	}
	return false
}
