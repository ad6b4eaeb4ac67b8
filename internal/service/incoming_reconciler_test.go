package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
	"github.com/unclebandit/smsleopard-webhooks/internal/service"
)

func incomingValue() model.ChangeValue {
	return model.ChangeValue{
		MessagingProduct: "whatsapp",
		Metadata:         model.ChangeMetadata{DisplayPhoneNumber: "254711000000", PhoneNumberID: "phone-acme"},
		Contacts:         []model.Contact{{Profile: model.ContactProfile{Name: "Jane"}, WaID: "254700000001"}},
	}
}

func newIncomingReconciler() (*service.IncomingReconciler, *MockIncomingRepo) {
	campaignID := 12
	ledger := NewMockMessageRepo(&model.MessageLedgerEntry{
		ProviderMessageID: "wamid.out.1", Direction: model.DirectionOutbound, CampaignID: &campaignID, Status: model.StatusRead,
	})
	audience := NewMockAudienceRepo(&model.CampaignAudienceEntry{
		CampaignID: 34, ProviderMessageID: "wamid.out.2", Status: model.StatusDelivered,
	})
	incoming := NewMockIncomingRepo()
	return &service.IncomingReconciler{Incoming: incoming, Messages: ledger, Audience: audience}, incoming
}

func TestIncomingStoresMessage(t *testing.T) {
	rec, repo := newIncomingReconciler()
	msg := decodeMessage(t, textMessage("wamid.in.1", "Hi"))

	outcome, stored, err := rec.Reconcile(context.Background(), acmeTenant(), incomingValue(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != service.OutcomeCreated {
		t.Fatalf("expected created, got %s", outcome)
	}
	if stored.Content != "Hi" || stored.FromNumber != "254700000001" || stored.ToNumber != "254711000000" {
		t.Errorf("unexpected record %+v", stored)
	}
	if stored.ContactName != "Jane" {
		t.Errorf("expected contact name Jane, got %q", stored.ContactName)
	}
	if stored.SentAt == nil || stored.SentAt.Unix() != 1700000000 {
		t.Errorf("expected sent_at from message timestamp, got %v", stored.SentAt)
	}
	if !repo.Get("wamid.in.1").Processed {
		t.Error("expected record to be marked processed")
	}
}

func TestIncomingIsIdempotent(t *testing.T) {
	rec, repo := newIncomingReconciler()
	msg := decodeMessage(t, textMessage("wamid.in.1", "Hi"))

	for i := 0; i < 3; i++ {
		outcome, _, err := rec.Reconcile(context.Background(), acmeTenant(), incomingValue(), msg)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if i > 0 && outcome != service.OutcomeDuplicate {
			t.Errorf("attempt %d: expected duplicate, got %s", i, outcome)
		}
	}
	if repo.Count() != 1 {
		t.Errorf("expected exactly one record, got %d", repo.Count())
	}
}

func TestIncomingRedeliveryFinishesUnprocessedRow(t *testing.T) {
	rec, repo := newIncomingReconciler()
	msg := decodeMessage(t, textMessage("wamid.in.1", "Hi"))

	repo.markErr = errors.New("connection reset")
	if _, _, err := rec.Reconcile(context.Background(), acmeTenant(), incomingValue(), msg); err == nil {
		t.Fatal("expected the failed mark to surface")
	}
	if repo.Get("wamid.in.1").Processed {
		t.Fatal("row should still be unprocessed after the failed mark")
	}

	repo.markErr = nil
	outcome, _, err := rec.Reconcile(context.Background(), acmeTenant(), incomingValue(), msg)
	if err != nil || outcome != service.OutcomeDuplicate {
		t.Fatalf("expected duplicate without error, got %s, %v", outcome, err)
	}
	if !repo.Get("wamid.in.1").Processed {
		t.Error("redelivery should mark the stored row processed")
	}
}

func TestIncomingConcurrentInsertIsDuplicate(t *testing.T) {
	rec, repo := newIncomingReconciler()
	msg := decodeMessage(t, textMessage("wamid.in.1", "Hi"))
	if _, _, err := rec.Reconcile(context.Background(), acmeTenant(), incomingValue(), msg); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// The pre-check misses, the unique constraint catches it.
	repo.hideExisting = true
	outcome, _, err := rec.Reconcile(context.Background(), acmeTenant(), incomingValue(), msg)
	if err != nil || outcome != service.OutcomeDuplicate {
		t.Fatalf("expected duplicate without error, got %s, %v", outcome, err)
	}
}

func TestIncomingReplyLinkage(t *testing.T) {
	tests := []struct {
		name      string
		contextID string
		want      *int
	}{
		{"known ledger message", "wamid.out.1", intPtr(12)},
		{"audience only message", "wamid.out.2", intPtr(34)},
		{"unknown message", "wamid.nope", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := newIncomingReconciler()
			msg := decodeMessage(t, textMessage("wamid.in."+tt.name, "Reply"))
			msg.Context = &model.MessageContext{From: "254711000000", ID: tt.contextID}

			_, stored, err := rec.Reconcile(context.Background(), acmeTenant(), incomingValue(), msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stored.ContextMessageID != tt.contextID {
				t.Errorf("expected context id %s, got %s", tt.contextID, stored.ContextMessageID)
			}
			switch {
			case tt.want == nil && stored.ContextCampaignID != nil:
				t.Errorf("expected nil campaign, got %d", *stored.ContextCampaignID)
			case tt.want != nil && (stored.ContextCampaignID == nil || *stored.ContextCampaignID != *tt.want):
				t.Errorf("expected campaign %d, got %v", *tt.want, stored.ContextCampaignID)
			}
		})
	}
}

func intPtr(i int) *int { return &i }
