package service_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
	"github.com/unclebandit/smsleopard-webhooks/internal/queue"
)

// statusPayload builds a delivery body with one status per (id, status) pair.
func statusPayload(accountID, channelID string, ts int64, pairs ...string) string {
	var statuses []string
	for i := 0; i+1 < len(pairs); i += 2 {
		statuses = append(statuses, fmt.Sprintf(`{"id":%q,"status":%q,"timestamp":"%d","recipient_id":"254700000001"}`, pairs[i], pairs[i+1], ts))
	}
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":%q,"changes":[{"field":"messages","value":{"messaging_product":"whatsapp","metadata":{"display_phone_number":"254711000000","phone_number_id":%q},"statuses":[%s]}}]}]}`,
		accountID, channelID, strings.Join(statuses, ","))
}

// messagePayload wraps raw message objects in a delivery body.
func messagePayload(accountID, channelID string, messages ...string) string {
	return fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":%q,"changes":[{"field":"messages","value":{"messaging_product":"whatsapp","metadata":{"display_phone_number":"254711000000","phone_number_id":%q},"contacts":[{"profile":{"name":"Jane"},"wa_id":"254700000001"}],"messages":[%s]}}]}]}`,
		accountID, channelID, strings.Join(messages, ","))
}

func textMessage(id, body string) string {
	return fmt.Sprintf(`{"from":"254700000001","id":%q,"timestamp":"1700000000","type":"text","text":{"body":%q}}`, id, body)
}

// envelopeItem wraps a raw payload into a queue item the way the receiver does.
func envelopeItem(t *testing.T, id, payload string) queue.Item {
	t.Helper()
	var p model.WebhookPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		t.Fatalf("bad payload fixture: %v", err)
	}
	env := model.WebhookEnvelope{
		Payload:    json.RawMessage(payload),
		Metadata:   model.ExtractMetadata(&p),
		ReceivedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return queue.Item{ID: id, Body: body}
}
