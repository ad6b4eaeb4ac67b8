package service

import (
	"encoding/json"
	"time"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

// Event is one atomic unit of work taken from a change: a single status, a
// single message, or a change this service does not reconcile.
type Event struct {
	Category          string
	ProviderMessageID string
	Status            string
	Timestamp         time.Time

	StatusEvent  *model.Status
	MessageEvent *model.Message

	// Value is the change reduced to this event only. It is what the audit
	// log stores, so a single event can be replayed on its own.
	Value model.ChangeValue
}

// RawPayload encodes the reduced change for the audit log.
func (e *Event) RawPayload() json.RawMessage {
	raw, err := json.Marshal(e.Value)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// Classify splits a change into events. Statuses come before messages; a
// change with neither yields a single unsupported event.
func Classify(change model.Change) []Event {
	v := change.Value
	events := make([]Event, 0, len(v.Statuses)+len(v.Messages))

	for i := range v.Statuses {
		st := v.Statuses[i]
		events = append(events, Event{
			Category:          model.CategoryStatus,
			ProviderMessageID: st.ID,
			Status:            st.Status,
			Timestamp:         model.ParseProviderTimestamp(st.Timestamp),
			StatusEvent:       &st,
			Value: model.ChangeValue{
				MessagingProduct: v.MessagingProduct,
				Metadata:         v.Metadata,
				Statuses:         []model.Status{st},
			},
		})
	}

	for i := range v.Messages {
		msg := v.Messages[i]
		events = append(events, Event{
			Category:          model.CategoryMessage,
			ProviderMessageID: msg.ID,
			Status:            msg.Type,
			Timestamp:         model.ParseProviderTimestamp(msg.Timestamp),
			MessageEvent:      &msg,
			Value: model.ChangeValue{
				MessagingProduct: v.MessagingProduct,
				Metadata:         v.Metadata,
				Contacts:         contactsFor(v.Contacts, msg.From),
				Messages:         []model.Message{msg},
			},
		})
	}

	if len(events) == 0 {
		events = append(events, Event{
			Category: model.CategoryUnsupported,
			Status:   change.Field,
			Value:    v,
		})
	}
	return events
}

// contactsFor keeps the sender's contact entry, or all entries when none
// matches by wa_id.
func contactsFor(contacts []model.Contact, from string) []model.Contact {
	for _, c := range contacts {
		if c.WaID == from {
			return []model.Contact{c}
		}
	}
	return contacts
}
