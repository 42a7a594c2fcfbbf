package booking

import (
	"context"
	"time"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
)

// ConflictResolver decides whether a candidate appointment would double-book
// a staff member. It must run inside the same unit of work as the insert it
// guards, after the staff schedule has been locked.
type ConflictResolver struct{}

// CheckConflict reports whether [start, start+duration) intersects any pending
// or confirmed booking of the staff member. Bookings are checked across every
// outlet of the tenant since one person cannot be in two places at once.
func (ConflictResolver) CheckConflict(ctx context.Context, tx store.Tx, tenantID string, staffID string, outletID string, start time.Time, durationMinutes int) (bool, error) {
	if tx == nil {
		return false, domain.ErrNoActiveTransaction
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	existing, err := tx.ListActiveBookings(ctx, tenantID, staffID, start, end)
	if err != nil {
		return false, err
	}
	for _, b := range existing {
		if b.Status.Active() && b.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}
