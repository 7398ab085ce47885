package stage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/darkking4096/odonto/internal/llm"
	"github.com/darkking4096/odonto/pkg/logging"
)

// ComposerConfig tunes the completion call.
type ComposerConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int32
	// Timeout bounds the provider call; on expiry the fixed fallback
	// sentence is used so the conversation never stalls on a degraded
	// provider.
	Timeout time.Duration
}

// Composer builds the prompt for the resolved stage and relays the provider's
// text, falling back to fixed Portuguese sentences when the provider fails.
type Composer struct {
	templates map[Stage]PromptTemplate
	client    llm.Client
	validator *Validator
	cfg       ComposerConfig
	logger    *logging.Logger
}

// NewComposer loads the active template set and verifies a template exists
// for every stage. A missing template is a configuration error and fails
// startup, not individual turns.
func NewComposer(ctx context.Context, prompts PromptStore, client llm.Client, validator *Validator, cfg ComposerConfig, logger *logging.Logger) (*Composer, error) {
	templates, err := prompts.ActivePrompts(ctx)
	if err != nil {
		return nil, fmt.Errorf("stage: loading prompt templates: %w", err)
	}
	for _, st := range All() {
		if _, ok := templates[st]; !ok {
			return nil, fmt.Errorf("stage: no active prompt template for stage %q", st)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Composer{
		templates: templates,
		client:    client,
		validator: validator,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Compose produces the outbound text for the stage the turn resolved to.
// The second return reports whether the fixed fallback path was used.
func (c *Composer) Compose(ctx context.Context, p *Profile, v Validation, text string) (string, bool) {
	tmpl := c.templates[p.CurrentStage]
	userPrompt := fillTemplate(tmpl.UserTemplate, c.promptContext(p, v, text))

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.Complete(callCtx, llm.Request{
		Model:       c.cfg.Model,
		System:      []string{tmpl.SystemPrompt},
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: userPrompt}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		if err != nil {
			c.logger.Warn("completion provider failed, using fixed reply",
				"stage", string(p.CurrentStage),
				"error", err.Error(),
			)
		}
		return c.fallbackReply(p, v), true
	}
	return resp.Text, false
}

// promptContext assembles the placeholder values the seeded templates use.
func (c *Composer) promptContext(p *Profile, v Validation, text string) map[string]string {
	ctx := map[string]string{
		"message":          text,
		"choice":           text,
		"stage":            string(p.CurrentStage),
		"context":          c.clientContext(p),
		"collected_data":   c.collectedData(p),
		"missing_data":     c.missingData(p),
		"preference":       c.timePreference(p),
		"procedure":        orDefault(p.Procedure, "consulta"),
		"slots":            strings.Join(p.ProposedSlots, ", "),
		"appointment_data": c.appointmentData(p),
		"summary":          c.appointmentData(p),
		"corrections":      c.corrections(v),
	}
	return ctx
}

var placeholderRE = regexp.MustCompile(`\{[^}]+\}`)

// fillTemplate substitutes known placeholders and strips any that remain.
func fillTemplate(template string, values map[string]string) string {
	for key, value := range values {
		template = strings.ReplaceAll(template, "{"+key+"}", value)
	}
	return strings.TrimSpace(placeholderRE.ReplaceAllString(template, ""))
}

func (c *Composer) clientContext(p *Profile) string {
	if p.FullName == "" {
		return "Cliente novo"
	}
	return "Nome: " + p.FullName
}

func (c *Composer) collectedData(p *Profile) string {
	var parts []string
	if p.FullName != "" {
		parts = append(parts, "Nome: "+p.FullName)
	}
	if p.Procedure != "" {
		parts = append(parts, "Procedimento: "+p.Procedure)
	}
	if p.DesiredDay != nil {
		parts = append(parts, "Dia: "+formatDateBR(*p.DesiredDay))
	}
	if p.DesiredTime != "" {
		parts = append(parts, "Horário: "+p.DesiredTime)
	}
	if p.TimeWindow != "" {
		parts = append(parts, "Período: "+p.TimeWindow)
	}
	if len(parts) == 0 {
		return "Nenhum dado coletado ainda"
	}
	return strings.Join(parts, ", ")
}

func (c *Composer) missingData(p *Profile) string {
	var missing []string
	if p.FullName == "" {
		missing = append(missing, "nome")
	}
	if p.Procedure == "" {
		missing = append(missing, "procedimento")
	}
	if p.DesiredDay == nil {
		missing = append(missing, "dia desejado")
	}
	if p.DesiredTime == "" && p.TimeWindow == "" {
		missing = append(missing, "horário desejado")
	}
	if len(missing) == 0 {
		return "Todos os dados coletados"
	}
	return strings.Join(missing, ", ")
}

func (c *Composer) timePreference(p *Profile) string {
	var parts []string
	if p.DesiredDay != nil {
		parts = append(parts, "Dia: "+formatDateBR(*p.DesiredDay))
	}
	if p.DesiredTime != "" {
		parts = append(parts, "Horário: "+p.DesiredTime)
	}
	if p.TimeWindow != "" {
		parts = append(parts, "Período: "+p.TimeWindow)
	}
	if len(parts) == 0 {
		return "Sem preferência específica"
	}
	return strings.Join(parts, ", ")
}

func (c *Composer) appointmentData(p *Profile) string {
	day := "a confirmar"
	if p.DesiredDay != nil {
		day = formatDateBR(*p.DesiredDay)
	}
	clock := p.DesiredTime
	if clock == "" {
		clock = orDefault(p.TimeWindow, "a confirmar")
	}
	return strings.Join([]string{
		"Nome: " + orDefault(p.FullName, "a confirmar"),
		"Procedimento: " + orDefault(p.Procedure, "consulta"),
		"Dia: " + day,
		"Horário: " + clock,
	}, ", ")
}

// corrections turns this turn's rejections into prompt guidance so the model
// produces an on-topic corrective reply.
func (c *Composer) corrections(v Validation) string {
	if len(v.Rejected) == 0 {
		return ""
	}
	var notes []string
	for _, r := range v.Rejected {
		switch r.Reason {
		case RejectUnsupportedProcedure:
			notes = append(notes, "O procedimento pedido não é oferecido. Liste as opções: "+
				strings.Join(c.validator.AllowedProcedures(), ", ")+".")
		case RejectDateInPast:
			notes = append(notes, "A data pedida já passou; peça uma nova data.")
		case RejectDateTooFar:
			notes = append(notes, "A data pedida está distante demais; peça uma data mais próxima.")
		case RejectOutsideBusinessHours:
			notes = append(notes, "O horário pedido fica fora do funcionamento; pergunte se o cliente prefere manhã ou tarde.")
		case RejectInvalidName:
			notes = append(notes, "O nome informado não parece válido; peça o nome completo.")
		}
	}
	return "Atenção: " + strings.Join(notes, " ")
}

// fallbackReply returns the fixed sentence for the current situation.
// Rejections take priority so the corrective questions survive provider
// outages.
func (c *Composer) fallbackReply(p *Profile, v Validation) string {
	for _, r := range v.Rejected {
		switch r.Reason {
		case RejectUnsupportedProcedure:
			return "No momento oferecemos: " + strings.Join(c.validator.AllowedProcedures(), ", ") +
				". Qual procedimento você prefere?"
		case RejectOutsideBusinessHours:
			return "Esse horário fica fora do nosso funcionamento. Você prefere de manhã ou à tarde?"
		case RejectDateInPast:
			return "Essa data já passou. Qual outro dia fica bom para você?"
		case RejectDateTooFar:
			return "Essa data está um pouco distante. Consegue um dia mais próximo?"
		case RejectInvalidName:
			return "Não consegui anotar seu nome. Pode me dizer seu nome completo?"
		}
	}

	switch p.CurrentStage {
	case Greeting:
		return "Olá! Sou o assistente da clínica. Como posso ajudar com seu agendamento?"
	case Intent:
		if p.FullName == "" {
			return "Para começar, qual é o seu nome completo?"
		}
		return "Qual procedimento você precisa? Temos " + strings.Join(c.validator.AllowedProcedures(), ", ") + "."
	case DataCollection:
		return "Para qual dia você gostaria de agendar?"
	case SlotProposal:
		return "Tenho estes horários disponíveis: " + numberedSlots(p.ProposedSlots) + ". Qual prefere?"
	case Confirmation:
		return "Confirmando: " + c.appointmentData(p) + ". Está correto?"
	default:
		if p.DesiredTime == "" {
			// Closed via cancellation: no booking to confirm.
			return "Sem problemas, seu pedido de agendamento foi cancelado. Posso ajudar com algo mais?"
		}
		return "Agendamento confirmado! Qualquer dúvida, estamos à disposição. Até breve!"
	}
}

func numberedSlots(slots []string) string {
	if len(slots) == 0 {
		return "a combinar"
	}
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = fmt.Sprintf("%d. %s", i+1, s)
	}
	return strings.Join(parts, "  ")
}

var weekdaysBR = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

func formatDateBR(t time.Time) string {
	return fmt.Sprintf("%s, %02d/%02d/%d", weekdaysBR[t.Weekday()], t.Day(), int(t.Month()), t.Year())
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
