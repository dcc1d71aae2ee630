package pgstore

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/tappbx/tappbx/internal/database/models"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool() error: %v", err)
	}
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func TestUpsertReportsCreation(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO firewall_addresses`).
		WithArgs("203.0.113.7", "ipv4", models.ListSIPCustomer, now).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(true))

	created, err := s.Upsert(context.Background(), "203.0.113.7", "ipv4", models.ListSIPCustomer, now)
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if !created {
		t.Error("first insert must report created")
	}

	mock.ExpectQuery(`INSERT INTO firewall_addresses`).
		WithArgs("203.0.113.7", "ipv4", models.ListSIPCustomer, now).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(false))

	created, err = s.Upsert(context.Background(), "203.0.113.7", "ipv4", models.ListSIPCustomer, now)
	if err != nil {
		t.Fatalf("second Upsert() error: %v", err)
	}
	if created {
		t.Error("refresh must not report created")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetAbsentReturnsNil(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, address, family, list_name`).
		WithArgs("198.51.100.1", models.ListBlock).
		WillReturnRows(pgxmock.NewRows([]string{"id", "address", "family", "list_name", "first_seen", "last_seen", "status"}))

	got, err := s.Get(context.Background(), "198.51.100.1", models.ListBlock)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil", got)
	}
}

func TestListActive(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, address, family, list_name`).
		WithArgs(models.ListSIPCustomer).
		WillReturnRows(pgxmock.NewRows([]string{"id", "address", "family", "list_name", "first_seen", "last_seen", "status"}).
			AddRow(int64(1), "203.0.113.7", "ipv4", models.ListSIPCustomer, now, now, "active").
			AddRow(int64(2), "2001:db8::1", "ipv6", models.ListSIPCustomer, now, now, "active"))

	rows, err := s.ListActive(context.Background(), models.ListSIPCustomer)
	if err != nil {
		t.Fatalf("ListActive() error: %v", err)
	}
	if len(rows) != 2 || rows[0].Address != "203.0.113.7" || rows[1].Family != "ipv6" {
		t.Errorf("ListActive() = %+v", rows)
	}
}

func TestMarkObsolete(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec(`UPDATE firewall_addresses SET status = 'obsolete'`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := s.MarkObsolete(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("MarkObsolete() error: %v", err)
	}
	if n != 3 {
		t.Errorf("MarkObsolete() = %d, want 3", n)
	}
}

func TestDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM firewall_addresses`).
		WithArgs("203.0.113.7", models.ListWebBlock).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := s.Delete(context.Background(), "203.0.113.7", models.ListWebBlock); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
