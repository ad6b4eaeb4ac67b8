package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
	"github.com/unclebandit/smsleopard-webhooks/internal/queue"
	"github.com/unclebandit/smsleopard-webhooks/internal/service"
)

type batchFixture struct {
	audit    *MockAuditRepo
	ledger   *MockMessageRepo
	incoming *MockIncomingRepo
	proc     *service.BatchProcessor
}

func newBatchFixture(concurrency int) *batchFixture {
	tenant := acmeTenant()
	campaignID := 12
	var ledgerRows []*model.MessageLedgerEntry
	var audienceRows []*model.CampaignAudienceEntry
	for _, id := range []string{"wamid.1", "wamid.2", "wamid.4", "wamid.5"} {
		ledgerRows = append(ledgerRows, &model.MessageLedgerEntry{TenantID: tenant.ID, ProviderMessageID: id, Direction: model.DirectionOutbound, CampaignID: &campaignID, Status: model.StatusSent})
		audienceRows = append(audienceRows, &model.CampaignAudienceEntry{CampaignID: campaignID, ProviderMessageID: id, Status: model.StatusSent})
	}
	ledger := NewMockMessageRepo(ledgerRows...)
	audience := NewMockAudienceRepo(audienceRows...)
	incoming := NewMockIncomingRepo()
	audit := NewMockAuditRepo()

	return &batchFixture{
		audit:    audit,
		ledger:   ledger,
		incoming: incoming,
		proc: &service.BatchProcessor{
			Resolver:    &service.TenantResolver{Tenants: &MockTenantRepo{tenants: []*model.Tenant{tenant}}},
			Audit:       audit,
			Statuses:    &service.StatusReconciler{Messages: ledger, Audience: audience, Campaigns: NewMockCampaignRepo(audience, campaignID)},
			Incoming:    &service.IncomingReconciler{Incoming: incoming, Messages: ledger, Audience: audience},
			ItemTimeout: time.Second,
			Concurrency: concurrency,
		},
	}
}

func TestBatchIsolatesMalformedItem(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		f := newBatchFixture(concurrency)
		items := []queue.Item{
			envelopeItem(t, "item-1", statusPayload("waba-acme", "phone-acme", 1700000100, "wamid.1", "delivered")),
			envelopeItem(t, "item-2", statusPayload("waba-acme", "phone-acme", 1700000100, "wamid.2", "read")),
			{ID: "item-3", Body: []byte(`{"payload": not-json`)},
			envelopeItem(t, "item-4", statusPayload("waba-acme", "phone-acme", 1700000100, "wamid.4", "delivered")),
			envelopeItem(t, "item-5", messagePayload("waba-acme", "phone-acme", textMessage("wamid.in.5", "hello"))),
		}

		result := f.proc.ProcessBatch(context.Background(), items)

		if len(result.FailedItemIDs) != 1 || result.FailedItemIDs[0] != "item-3" {
			t.Fatalf("concurrency %d: expected only item-3 to fail, got %v", concurrency, result.FailedItemIDs)
		}
		if got := f.ledger.rows["wamid.1"].Status; got != model.StatusDelivered {
			t.Errorf("item-1 not applied, status %s", got)
		}
		if got := f.ledger.rows["wamid.2"].Status; got != model.StatusRead {
			t.Errorf("item-2 not applied, status %s", got)
		}
		if got := f.ledger.rows["wamid.4"].Status; got != model.StatusDelivered {
			t.Errorf("item-4 not applied, status %s", got)
		}
		if f.incoming.Get("wamid.in.5") == nil {
			t.Error("item-5 message not stored")
		}
		if n := len(f.audit.All()); n != 4 {
			t.Errorf("expected 4 audit records, got %d", n)
		}
	}
}

func TestBatchUnknownTenantFailsItem(t *testing.T) {
	f := newBatchFixture(1)
	items := []queue.Item{
		envelopeItem(t, "ok", statusPayload("waba-acme", "phone-acme", 1700000100, "wamid.1", "delivered")),
		envelopeItem(t, "stranger", statusPayload("waba-other", "phone-other", 1700000100, "wamid.2", "delivered")),
	}
	result := f.proc.ProcessBatch(context.Background(), items)
	if len(result.FailedItemIDs) != 1 || result.FailedItemIDs[0] != "stranger" {
		t.Fatalf("expected only the unknown tenant to fail, got %v", result.FailedItemIDs)
	}
	if f.ledger.rows["wamid.2"].Status != model.StatusSent {
		t.Error("unresolved tenant must not touch the ledger")
	}
}

func TestBatchClosesAuditWithErrorText(t *testing.T) {
	f := newBatchFixture(1)
	f.ledger.err = errors.New("deadlock detected")

	items := []queue.Item{envelopeItem(t, "item-1", statusPayload("waba-acme", "phone-acme", 1700000100, "wamid.1", "delivered"))}
	result := f.proc.ProcessBatch(context.Background(), items)
	if len(result.FailedItemIDs) != 1 {
		t.Fatalf("expected store error to fail the item, got %v", result.FailedItemIDs)
	}

	records := f.audit.All()
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}
	rec := records[0]
	if rec.Error == nil || !rec.Processed || rec.ProcessedAt == nil {
		t.Fatalf("expected audit record closed with error text, got %+v", rec)
	}
	if rec.Category != model.CategoryStatus || rec.ProviderMessageID != "wamid.1" {
		t.Errorf("unexpected audit record %+v", rec)
	}
}

func TestBatchDuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newBatchFixture(1)
	payload := messagePayload("waba-acme", "phone-acme", textMessage("wamid.in.1", "hello"))
	items := []queue.Item{envelopeItem(t, "a", payload), envelopeItem(t, "b", payload), envelopeItem(t, "c", payload)}

	result := f.proc.ProcessBatch(context.Background(), items)
	if len(result.FailedItemIDs) != 0 {
		t.Fatalf("expected duplicates to succeed, got %v", result.FailedItemIDs)
	}
	if f.incoming.Count() != 1 {
		t.Errorf("expected exactly one incoming record, got %d", f.incoming.Count())
	}
}

func TestBatchAuditCreateFailureFailsItem(t *testing.T) {
	f := newBatchFixture(1)
	f.audit.createErr = errors.New("webhook_events unavailable")

	items := []queue.Item{envelopeItem(t, "item-1", statusPayload("waba-acme", "phone-acme", 1700000100, "wamid.1", "delivered"))}
	result := f.proc.ProcessBatch(context.Background(), items)
	if len(result.FailedItemIDs) != 1 {
		t.Fatalf("expected item to fail, got %v", result.FailedItemIDs)
	}
	if f.ledger.rows["wamid.1"].Status != model.StatusSent {
		t.Error("nothing may be reconciled without an audit record")
	}
}

func TestBatchUnsupportedChangeIsAudited(t *testing.T) {
	f := newBatchFixture(1)
	payload := `{"object":"whatsapp_business_account","entry":[{"id":"waba-acme","changes":[{"field":"account_update","value":{"metadata":{"phone_number_id":"phone-acme"}}}]}]}`
	result := f.proc.ProcessBatch(context.Background(), []queue.Item{envelopeItem(t, "item-1", payload)})
	if len(result.FailedItemIDs) != 0 {
		t.Fatalf("unexpected failures %v", result.FailedItemIDs)
	}
	records := f.audit.All()
	if len(records) != 1 || records[0].Category != model.CategoryUnsupported || !records[0].Processed {
		t.Errorf("expected one processed unsupported record, got %+v", records)
	}
}
