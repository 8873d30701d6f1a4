package contacts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now()
	contact := &Contact{
		Channel:     ChannelWhatsApp,
		ExternalID:  "573001234567@s.whatsapp.net",
		DisplayName: "Carlos",
		Phone:       "+57 300 123 4567",
		Country:     "Colombia",
	}

	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(pgxmock.AnyArg(), ChannelWhatsApp, "573001234567@s.whatsapp.net", "Carlos", "+57 300 123 4567", "Colombia", false).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	if err := repo.Create(context.Background(), contact); err != nil {
		t.Fatalf("create: %v", err)
	}
	if contact.ID == uuid.Nil {
		t.Error("expected id to be minted")
	}
	if !contact.CreatedAt.Equal(now) {
		t.Errorf("created_at not populated from insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepositoryCreateDuplicatePhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(pgxmock.AnyArg(), ChannelWhatsApp, "x@s.whatsapp.net", "", "+57 300 123 4567", "", false).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "contacts_channel_phone_key"})

	err = repo.Create(context.Background(), &Contact{
		Channel:    ChannelWhatsApp,
		ExternalID: "x@s.whatsapp.net",
		Phone:      "+57 300 123 4567",
	})
	if !errors.Is(err, ErrDuplicatePhone) {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestPostgresRepositoryGetByExternalID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM contacts WHERE channel = \\$1 AND external_id = \\$2").
		WithArgs(ChannelTelegram, "987654321").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "channel", "external_id", "display_name", "phone", "country", "needs_review", "created_at", "updated_at",
		}).AddRow(id, ChannelTelegram, "987654321", "Ana", "+57 311 000 1122", "Colombia", false, now, now))

	contact, err := repo.GetByExternalID(context.Background(), ChannelTelegram, "987654321")
	if err != nil {
		t.Fatalf("get by external id: %v", err)
	}
	if contact.ID != id || contact.Phone != "+57 311 000 1122" {
		t.Errorf("unexpected contact: %+v", contact)
	}

	mock.ExpectQuery("SELECT (.+) FROM contacts WHERE channel = \\$1 AND external_id = \\$2").
		WithArgs(ChannelTelegram, "missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByExternalID(context.Background(), ChannelTelegram, "missing"); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound, got %v", err)
	}
}

func TestPostgresRepositoryDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM contacts").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := repo.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mock.ExpectExec("DELETE FROM contacts").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := repo.Delete(context.Background(), id); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound, got %v", err)
	}
}
