package messaging

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func upsertBody(jid, id, text string, fromMe bool) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "messages.upsert",
		"instance": "clinic",
		"data": {
			"key": {"remoteJid": %q, "fromMe": %v, "id": %q},
			"pushName": "Cliente",
			"message": {"conversation": %q},
			"messageTimestamp": 1788264000
		}
	}`, jid, fromMe, id, text))
}

func TestParseWebhook(t *testing.T) {
	in, err := ParseWebhook(upsertBody("5511999990000@s.whatsapp.net", "MSG1", "quero agendar", false))
	if err != nil {
		t.Fatal(err)
	}
	if in.ClientID != "5511999990000" {
		t.Errorf("ClientID = %q", in.ClientID)
	}
	if in.MessageID != "MSG1" || in.Text != "quero agendar" {
		t.Errorf("in = %+v", in)
	}
	if in.ReceivedAt != time.Unix(1788264000, 0).UTC() {
		t.Errorf("ReceivedAt = %v", in.ReceivedAt)
	}
}

func TestParseWebhookExtendedText(t *testing.T) {
	body := []byte(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "551188887777@s.whatsapp.net", "fromMe": false, "id": "MSG2"},
			"message": {"extendedTextMessage": {"text": "pode ser amanhã"}}
		}
	}`)
	in, err := ParseWebhook(body)
	if err != nil {
		t.Fatal(err)
	}
	if in.Text != "pode ser amanhã" {
		t.Errorf("Text = %q", in.Text)
	}
}

func TestParseWebhookImageCaption(t *testing.T) {
	body := []byte(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "551188887777@s.whatsapp.net", "fromMe": false, "id": "MSG3"},
			"message": {"imageMessage": {"caption": "meu dente está assim"}}
		}
	}`)
	in, err := ParseWebhook(body)
	if err != nil {
		t.Fatal(err)
	}
	if in.Text != "meu dente está assim" {
		t.Errorf("Text = %q", in.Text)
	}
}

func TestParseWebhookSkips(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"own echo", upsertBody("5511999990000@s.whatsapp.net", "MSG4", "resposta do bot", true)},
		{"other event", []byte(`{"event": "connection.update", "data": {}}`)},
		{"media without caption", []byte(`{
			"event": "messages.upsert",
			"data": {"key": {"remoteJid": "x@s.whatsapp.net", "id": "MSG5"}, "message": {"imageMessage": {}}}
		}`)},
		{"no message", []byte(`{"event": "messages.upsert", "data": {"key": {"remoteJid": "x@s.whatsapp.net", "id": "MSG6"}}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWebhook(tt.body); !errors.Is(err, ErrNotAMessage) {
				t.Errorf("err = %v, want ErrNotAMessage", err)
			}
		})
	}
}

func TestParseWebhookMalformed(t *testing.T) {
	if _, err := ParseWebhook([]byte("{not json")); err == nil || errors.Is(err, ErrNotAMessage) {
		t.Errorf("err = %v, want decode error", err)
	}
}

func TestDedupCache(t *testing.T) {
	c := NewDedupCache(2)

	if c.Contains("a") {
		t.Error("unrecorded id reported as duplicate")
	}
	c.Record("a")
	if !c.Contains("a") {
		t.Error("recorded id not reported")
	}
	// Contains never records, so an unrecorded id stays unknown.
	if c.Contains("x") || c.Contains("x") {
		t.Error("checking must not record")
	}
	c.Record("b")
	c.Record("c") // evicts "a"
	if c.Contains("a") {
		t.Error("evicted id still remembered")
	}
	if !c.Contains("c") {
		t.Error("recent id forgotten")
	}
	// Empty ids are never deduplicated.
	c.Record("")
	if c.Contains("") {
		t.Error("empty id must not dedup")
	}
}
