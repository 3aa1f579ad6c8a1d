package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	appoutbox "rentme-reservations/internal/app/outbox"
	domainavailability "rentme-reservations/internal/domain/availability"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/payments"
	"rentme-reservations/internal/domain/reservation"
	domainrange "rentme-reservations/internal/domain/shared/daterange"
)

var (
	testNow  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resCols  = []string{"id", "listing_id", "host_id", "renter_id", "start_date", "end_date", "status", "payment_status", "billing_unit", "units", "unit_price", "total_amount", "expires_at", "paid_at", "cancelled_at", "checkout_session_id", "payment_intent_id", "created_at", "updated_at", "version"}
	stayDays = domainrange.DateRange{
		Start: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC),
	}
)

func setupMock(t *testing.T) (sqlmock.Sqlmock, *ReservationRepository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return mock, NewReservationRepository(db)
}

func reservationRow(id, status string, payment, expiresAt any) []driver.Value {
	return []driver.Value{id, "listing-1", "host-1", "renter-1", stayDays.Start, stayDays.End, status, payment,
		"night", 2, int64(1000), int64(2000), expiresAt, nil, nil, nil, "", testNow.Add(-time.Hour), testNow.Add(-time.Hour), int64(1)}
}

func admitRequest(built *bool) reservation.AdmitRequest {
	return reservation.AdmitRequest{
		ListingID: "listing-1",
		Range:     stayDays,
		Now:       testNow,
		Build: func() (*reservation.Reservation, error) {
			*built = true
			expires := testNow.Add(15 * time.Minute)
			return &reservation.Reservation{
				ID: "res-new", ListingID: "listing-1", HostID: "host-1", RenterID: "renter-2",
				Range: stayDays, Status: reservation.StatusPending, PaymentStatus: reservation.PaymentUnpaid,
				BillingUnit: domainlistings.BillNight, Units: 2, UnitPrice: 1000, TotalAmount: 2000,
				ExpiresAt: &expires, CreatedAt: testNow, UpdatedAt: testNow,
			}, nil
		},
	}
}

func TestAdmitInsertsUnderListingLock(t *testing.T) {
	mock, repo := setupMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("listing-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("start_date < ").WithArgs("listing-1", stayDays.Start, stayDays.End).
		WillReturnRows(sqlmock.NewRows(resCols))
	mock.ExpectExec("INSERT INTO reservations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	built := false
	created, err := repo.Admit(context.Background(), admitRequest(&built))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !built || created.ID != "res-new" {
		t.Errorf("Expected built reservation, got %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("There were unfulfilled expectations: %s", err)
	}
}

func TestAdmitRejectsConfirmedOverlapWithoutBuilding(t *testing.T) {
	mock, repo := setupMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("start_date < ").
		WillReturnRows(sqlmock.NewRows(resCols).AddRow(reservationRow("res-old", "confirmed", "paid", nil)...))
	mock.ExpectRollback()

	built := false
	_, err := repo.Admit(context.Background(), admitRequest(&built))
	var conflict *domainavailability.ConflictError
	if !errors.As(err, &conflict) || conflict.Reason != domainavailability.ReasonAlreadyBooked {
		t.Fatalf("Expected ALREADY_BOOKED conflict, got %v", err)
	}
	if built {
		t.Error("Expected Build not to run on conflict")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("There were unfulfilled expectations: %s", err)
	}
}

func TestMarkConfirmedAppliesConditionalUpdate(t *testing.T) {
	mock, repo := setupMock(t)
	live := testNow.Add(5 * time.Minute)
	mock.ExpectQuery("WHERE id = ").WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows(resCols).AddRow(reservationRow("res-1", "pending", "unpaid", live)...))
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("listing-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FOR UPDATE").WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows(resCols).AddRow(reservationRow("res-1", "pending", "unpaid", live)...))
	mock.ExpectExec("UPDATE reservations").WithArgs("res-1", testNow, "pi_1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.MarkConfirmed(context.Background(), "res-1", "pi_1", testNow)
	if err != nil || !applied {
		t.Fatalf("Expected applied confirmation, got %v %v", applied, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("There were unfulfilled expectations: %s", err)
	}
}

func TestMarkConfirmedRefusesLapsedHoldOnRebookedDates(t *testing.T) {
	mock, repo := setupMock(t)
	lapsed := testNow.Add(-time.Minute)
	mock.ExpectQuery("WHERE id = ").
		WillReturnRows(sqlmock.NewRows(resCols).AddRow(reservationRow("res-1", "pending", "unpaid", lapsed)...))
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(resCols).AddRow(reservationRow("res-1", "pending", "unpaid", lapsed)...))
	mock.ExpectQuery("start_date < ").
		WillReturnRows(sqlmock.NewRows(resCols).
			AddRow(reservationRow("res-1", "pending", "unpaid", lapsed)...).
			AddRow(reservationRow("res-2", "confirmed", "paid", nil)...))
	mock.ExpectCommit()

	applied, err := repo.MarkConfirmed(context.Background(), "res-1", "", testNow)
	if err != nil || applied {
		t.Fatalf("Expected refused confirmation, got %v %v", applied, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("There were unfulfilled expectations: %s", err)
	}
}

func TestExpireStaleSkipsRowsTakenConcurrently(t *testing.T) {
	mock, repo := setupMock(t)
	lapsed := testNow.Add(-time.Minute)
	mock.ExpectQuery("ORDER BY expires_at LIMIT").WithArgs(testNow, 10).
		WillReturnRows(sqlmock.NewRows(resCols).
			AddRow(reservationRow("res-1", "pending", "unpaid", lapsed)...).
			AddRow(reservationRow("res-2", "pending", nil, lapsed)...))
	mock.ExpectExec("UPDATE reservations").WithArgs(testNow, "res-1", "cancelled", "expired", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE reservations").WithArgs(testNow, "res-2", "cancelled", "expired", testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	expired, err := repo.ExpireStale(context.Background(), testNow, 10)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "res-1" || expired[0].Status != reservation.StatusCancelled {
		t.Fatalf("Expected only res-1 expired, got %+v", expired)
	}
	if evs := expired[0].Drain(); len(evs) != 1 {
		t.Errorf("Expected one expiry event, got %d", len(evs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("There were unfulfilled expectations: %s", err)
	}
}

func TestLedgerDedupesByEventID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()
	ledger := NewLedger(db)

	mock.ExpectExec("INSERT INTO payment_inbox").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payment_inbox").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE payment_inbox").WillReturnResult(sqlmock.NewResult(0, 0))

	entry := payments.LedgerEntry{EventID: "evt_1", Type: payments.EventCheckoutCompleted, CreatedAt: testNow}
	if ok, err := ledger.Begin(context.Background(), entry); err != nil || !ok {
		t.Fatalf("Expected first Begin to insert, got %v %v", ok, err)
	}
	if ok, err := ledger.Begin(context.Background(), entry); err != nil || ok {
		t.Fatalf("Expected duplicate Begin to report false, got %v %v", ok, err)
	}
	if err := ledger.Finish(context.Background(), "evt_missing", payments.LedgerProcessed, "", "", testNow); !errors.Is(err, payments.ErrEntryNotFound) {
		t.Errorf("Expected ErrEntryNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("There were unfulfilled expectations: %s", err)
	}
}

func TestOutboxClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()
	box := NewOutbox(db)
	cols := []string{"id", "name", "payload", "occurred_at", "aggregate", "headers", "attempts"}

	mock.ExpectQuery("SKIP LOCKED").WithArgs("worker-1", testNow, testNow.Add(-outboxClaimTimeout)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("ev-1", "reservation.confirmed", []byte(`{}`), testNow, "res-1", []byte(`{"traceparent":"00-abc"}`), 2))
	mock.ExpectQuery("SKIP LOCKED").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectExec("UPDATE outbox SET state = 'SENT'").WillReturnResult(sqlmock.NewResult(0, 0))

	p, err := box.Claim(context.Background(), "worker-1", testNow)
	if err != nil || p == nil {
		t.Fatalf("Expected a claimed record, got %v %v", p, err)
	}
	if p.Headers["traceparent"] != "00-abc" || p.Attempts != 2 {
		t.Errorf("unexpected claim: %+v", p)
	}
	if p, err := box.Claim(context.Background(), "worker-1", testNow); err != nil || p != nil {
		t.Errorf("Expected empty claim, got %v %v", p, err)
	}
	if err := box.MarkSent(context.Background(), "ev-missing", testNow); !errors.Is(err, appoutbox.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("There were unfulfilled expectations: %s", err)
	}
}
