package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/darkking4096/odonto/internal/messaging"
	"github.com/darkking4096/odonto/internal/stage"
	"github.com/darkking4096/odonto/pkg/logging"
)

// ConversationEngine is what the webhook needs from the turn pipeline.
type ConversationEngine interface {
	HandleMessage(ctx context.Context, t stage.Turn) (string, error)
	GetStats(ctx context.Context) (stage.Stats, error)
}

// ReplySender delivers the composed reply to the client's channel.
type ReplySender interface {
	SendText(ctx context.Context, number, text string) error
}

// WebhookHandler receives Evolution API events, runs the turn and delivers
// the reply.
type WebhookHandler struct {
	engine ConversationEngine
	sender ReplySender
	dedup  *messaging.DedupCache
	logger *logging.Logger
}

func NewWebhookHandler(engine ConversationEngine, sender ReplySender, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		engine: engine,
		sender: sender,
		dedup:  messaging.NewDedupCache(2048),
		logger: logger,
	}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	in, err := messaging.ParseWebhook(body)
	if errors.Is(err, messaging.ErrNotAMessage) {
		// Status updates, own echoes, media without text: acknowledged so
		// the provider stops retrying.
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		h.logger.Warn("rejected webhook payload", "error", err.Error())
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if h.dedup.Contains(in.MessageID) {
		h.logger.Info("duplicate message skipped", "message_id", in.MessageID, "client_id", in.ClientID)
		w.WriteHeader(http.StatusOK)
		return
	}

	reply, err := h.engine.HandleMessage(r.Context(), stage.Turn{
		ClientID:   in.ClientID,
		MessageID:  in.MessageID,
		Text:       in.Text,
		ReceivedAt: in.ReceivedAt,
	})
	if err != nil {
		// The turn did not commit and the ID was not recorded; a 500 makes
		// the provider redeliver so the message is not lost.
		h.logger.Error("turn failed", "client_id", in.ClientID, "error", err.Error())
		http.Error(w, "turn failed", http.StatusInternalServerError)
		return
	}
	h.dedup.Record(in.MessageID)

	if err := h.sender.SendText(r.Context(), in.ClientID, reply); err != nil {
		// State is committed; the reply loss is logged, not retried via
		// webhook redelivery, which would replay the whole turn.
		h.logger.Error("reply delivery failed", "client_id", in.ClientID, "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "processed"})
}

// StatsHandler serves the aggregate conversation counters.
type StatsHandler struct {
	engine ConversationEngine
	logger *logging.Logger
}

func NewStatsHandler(engine ConversationEngine, logger *logging.Logger) *StatsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{engine: engine, logger: logger}
}

func (h *StatsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetStats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err.Error())
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
