package messaging

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Evolution API webhook envelope for WhatsApp events. Only messages.upsert
// carries conversation turns; everything else is acknowledged and dropped.
type WebhookEvent struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     WebhookData `json:"data"`
}

type WebhookData struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName"`
	Message          *MessageContent `json:"message"`
	MessageTimestamp int64           `json:"messageTimestamp"`
}

type MessageKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type MessageContent struct {
	Conversation        string         `json:"conversation"`
	ExtendedTextMessage *ExtendedText  `json:"extendedTextMessage"`
	ImageMessage        *MediaMessage  `json:"imageMessage"`
	VideoMessage        *MediaMessage  `json:"videoMessage"`
	DocumentMessage     *MediaMessage  `json:"documentMessage"`
}

type ExtendedText struct {
	Text string `json:"text"`
}

type MediaMessage struct {
	Caption string `json:"caption"`
}

// Inbound is one client message extracted from a webhook event.
type Inbound struct {
	ClientID   string
	MessageID  string
	PushName   string
	Text       string
	ReceivedAt time.Time
}

// ErrNotAMessage marks events that carry no processable client turn: other
// event types, our own outbound echoes, and media without text.
var ErrNotAMessage = errors.New("messaging: event carries no inbound text")

// ParseWebhook decodes an Evolution API webhook body into an inbound turn.
func ParseWebhook(body []byte) (Inbound, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return Inbound{}, fmt.Errorf("messaging: decode webhook: %w", err)
	}
	if event.Event != "messages.upsert" {
		return Inbound{}, ErrNotAMessage
	}
	if event.Data.Key.FromMe {
		// Echo of our own reply; processing it would loop the bot.
		return Inbound{}, ErrNotAMessage
	}
	text := extractText(event.Data.Message)
	if text == "" {
		return Inbound{}, ErrNotAMessage
	}

	receivedAt := time.Now().UTC()
	if event.Data.MessageTimestamp > 0 {
		receivedAt = time.Unix(event.Data.MessageTimestamp, 0).UTC()
	}
	return Inbound{
		ClientID:   normalizeJid(event.Data.Key.RemoteJid),
		MessageID:  event.Data.Key.ID,
		PushName:   event.Data.PushName,
		Text:       text,
		ReceivedAt: receivedAt,
	}, nil
}

// extractText pulls the text from whichever field the message type uses;
// media messages contribute their caption.
func extractText(m *MessageContent) string {
	if m == nil {
		return ""
	}
	if m.Conversation != "" {
		return m.Conversation
	}
	if m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "" {
		return m.ExtendedTextMessage.Text
	}
	for _, media := range []*MediaMessage{m.ImageMessage, m.VideoMessage, m.DocumentMessage} {
		if media != nil && media.Caption != "" {
			return media.Caption
		}
	}
	return ""
}

// normalizeJid strips the WhatsApp JID suffix, leaving the bare phone number.
func normalizeJid(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}

// DedupCache remembers recently seen message IDs so webhook redeliveries do
// not replay turns. Bounded FIFO; oldest entries are evicted first.
type DedupCache struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order *list.List
	limit int
}

func NewDedupCache(limit int) *DedupCache {
	if limit <= 0 {
		limit = 1024
	}
	return &DedupCache{
		seen:  make(map[string]struct{}, limit),
		order: list.New(),
		limit: limit,
	}
}

// Contains reports whether the ID was recorded. It never records: a failed
// turn must leave the ID unknown so the provider's redelivery gets through.
func (c *DedupCache) Contains(id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

// Record remembers the ID, evicting the oldest entries past the limit.
// Callers record only after the turn committed.
func (c *DedupCache) Record(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[id]; ok {
		return
	}
	c.seen[id] = struct{}{}
	c.order.PushBack(id)
	for c.order.Len() > c.limit {
		front := c.order.Front()
		c.order.Remove(front)
		delete(c.seen, front.Value.(string))
	}
}
