package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/smsleopard-webhooks/internal/errors"
	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

func newIncoming() *model.IncomingMessageRecord {
	return &model.IncomingMessageRecord{
		TenantID:          uuid.New(),
		ProviderMessageID: "wamid.in.1",
		FromNumber:        "254700000001",
		MessageType:       "text",
		Content:           "hello",
		RawPayload:        []byte(`{"id":"wamid.in.1"}`),
	}
}

func TestIncomingCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO incoming_messages")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(41, now))

	rec := newIncoming()
	repo := &IncomingMessageRepository{DB: db}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != 41 {
		t.Errorf("expected id 41, got %d", rec.ID)
	}
}

func TestIncomingCreateConflictIsDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// ON CONFLICT DO NOTHING yields no row.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO incoming_messages")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO incoming_messages")).
		WillReturnError(&pq.Error{Code: "23505"})

	repo := &IncomingMessageRepository{DB: db}
	for i := 0; i < 2; i++ {
		err := repo.Create(context.Background(), newIncoming())
		if !errors.Is(err, appErrors.ErrDuplicateEvent) {
			t.Errorf("attempt %d: expected ErrDuplicateEvent, got %v", i, err)
		}
	}
}

func TestIncomingExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("wamid.in.1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := &IncomingMessageRepository{DB: db}
	ok, err := repo.Exists(context.Background(), "wamid.in.1")
	if err != nil || !ok {
		t.Fatalf("expected exists, got %v %v", ok, err)
	}
}

func TestIncomingMarkProcessedByProviderIDOnlyTouchesUnprocessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE incoming_messages SET processed = TRUE WHERE provider_message_id = $1 AND processed = FALSE")).
		WithArgs("wamid.in.1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &IncomingMessageRepository{DB: db}
	if err := repo.MarkProcessedByProviderID(context.Background(), "wamid.in.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
