package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/store/memory"
)

const tenant = "tenant-a"

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewService(st, nil, "outlet-1"), st
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func createReq(staff string, start time.Time, minutes int) domain.BookingCreateRequest {
	return domain.BookingCreateRequest{
		ClientID:        "client-1",
		ServiceID:       "svc-cut",
		StaffID:         staff,
		AppointmentDate: start,
		Duration:        minutes,
		Price:           15000,
	}
}

func TestCreateRejectsOverlapAndAcceptsAdjacentSlot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, tenant, createReq("staff-s", at(10, 0), 45))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, tenant, first.ID, domain.BookingConfirmed)
	require.NoError(t, err)

	_, err = svc.Create(ctx, tenant, createReq("staff-s", at(10, 30), 30))
	require.ErrorIs(t, err, domain.ErrSchedulingConflict)
	assert.Equal(t, "this staff member is already booked for this time", err.Error())

	adjacent, err := svc.Create(ctx, tenant, createReq("staff-s", at(10, 45), 30))
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, adjacent.Status)
	assert.Equal(t, "outlet-1", adjacent.OutletID)
}

func TestCreateIgnoresCancelledAndOtherStaff(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, tenant, createReq("staff-s", at(9, 0), 60))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, tenant, b.ID, domain.BookingCancelled)
	require.NoError(t, err)

	_, err = svc.Create(ctx, tenant, createReq("staff-s", at(9, 15), 30))
	require.NoError(t, err)

	_, err = svc.Create(ctx, tenant, createReq("staff-t", at(9, 15), 30))
	require.NoError(t, err)

	_, err = svc.Create(ctx, "tenant-b", createReq("staff-s", at(9, 15), 30))
	require.NoError(t, err)
}

func TestCreateValidatesRequest(t *testing.T) {
	svc, _ := newTestService(t)

	req := createReq("staff-s", at(9, 0), 0)
	_, err := svc.Create(context.Background(), tenant, req)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	req = createReq("", at(9, 0), 30)
	_, err = svc.Create(context.Background(), tenant, req)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestConcurrentCreatesForSameSlotOnlyOneWins(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, tenant, createReq("staff-s", at(14, 0), 60))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrSchedulingConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestUpdateStatusTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, tenant, createReq("staff-s", at(11, 0), 30))
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, tenant, b.ID, domain.BookingConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, updated.Status)

	same, err := svc.UpdateStatus(ctx, tenant, b.ID, domain.BookingConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, same.Status)

	_, err = svc.UpdateStatus(ctx, tenant, b.ID, domain.BookingCompleted)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, tenant, b.ID, domain.BookingPending)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	stored, err := svc.Get(ctx, tenant, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, stored.Status)
}

func TestUpdateStatusUnknownBookingOrTenant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, tenant, createReq("staff-s", at(12, 0), 30))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, "tenant-b", b.ID, domain.BookingConfirmed)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.UpdateStatus(ctx, tenant, "missing", domain.BookingConfirmed)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckConflictRequiresTransaction(t *testing.T) {
	_, err := ConflictResolver{}.CheckConflict(context.Background(), nil, tenant, "staff-s", "outlet-1", at(9, 0), 30)
	require.ErrorIs(t, err, domain.ErrNoActiveTransaction)
}

func TestCheckConflictBoundaries(t *testing.T) {
	st := memory.New()
	st.SeedBooking(domain.Booking{
		ID: "bkg-1", TenantID: tenant, OutletID: "outlet-1", StaffID: "staff-s",
		StartTime: at(10, 0), DurationMinutes: 45, Status: domain.BookingConfirmed,
	})

	cases := []struct {
		name     string
		start    time.Time
		minutes  int
		conflict bool
	}{
		{"ends exactly at start", at(9, 30), 30, false},
		{"starts exactly at end", at(10, 45), 30, false},
		{"overlaps tail", at(10, 30), 30, true},
		{"overlaps head", at(9, 45), 30, true},
		{"contained", at(10, 10), 10, true},
		{"contains", at(9, 0), 180, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got bool
			err := st.WithinTx(context.Background(), func(tx store.Tx) error {
				var err error
				got, err = ConflictResolver{}.CheckConflict(context.Background(), tx, tenant, "staff-s", "outlet-1", tc.start, tc.minutes)
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, tc.conflict, got)
		})
	}
}
