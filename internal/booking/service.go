package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/validation"
	"salonpos/backend/internal/xid"
)

type Service struct {
	store           store.Store
	resolver        ConflictResolver
	logger          *zap.Logger
	defaultOutletID string
	now             func() time.Time
}

func NewService(st store.Store, logger *zap.Logger, defaultOutletID string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:           st,
		logger:          logger.Named("booking"),
		defaultOutletID: defaultOutletID,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Create books an appointment. The staff schedule lock, the overlap check and
// the insert share one unit of work, so two requests for the same slot can
// never both succeed.
func (s *Service) Create(ctx context.Context, tenantID string, req domain.BookingCreateRequest) (*domain.Booking, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant required", domain.ErrInvalidRequest)
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.AppointmentDate.IsZero() {
		return nil, fmt.Errorf("%w: appointmentDate required", domain.ErrInvalidRequest)
	}

	outletID := strings.TrimSpace(req.OutletID)
	if outletID == "" {
		outletID = s.defaultOutletID
	}
	status := domain.BookingPending
	if req.Status != "" {
		status = domain.BookingStatus(req.Status)
	}

	now := s.now()
	booking := domain.Booking{
		ID:              xid.New("bkg"),
		TenantID:        tenantID,
		OutletID:        outletID,
		ClientID:        strings.TrimSpace(req.ClientID),
		StaffID:         strings.TrimSpace(req.StaffID),
		ServiceID:       strings.TrimSpace(req.ServiceID),
		StartTime:       req.AppointmentDate.UTC(),
		DurationMinutes: req.Duration,
		Status:          status,
		PriceCents:      req.Price,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.LockStaffSchedule(ctx, tenantID, booking.StaffID); err != nil {
			return err
		}
		conflict, err := s.resolver.CheckConflict(ctx, tx, tenantID, booking.StaffID, booking.OutletID, booking.StartTime, booking.DurationMinutes)
		if err != nil {
			return err
		}
		if conflict {
			return domain.ErrSchedulingConflict
		}
		return tx.InsertBooking(ctx, booking)
	})
	if err != nil {
		if errors.Is(err, domain.ErrSchedulingConflict) {
			s.logger.Info("booking rejected",
				zap.String("tenant_id", tenantID),
				zap.String("staff_id", booking.StaffID),
				zap.Time("start", booking.StartTime),
				zap.Int("duration", booking.DurationMinutes))
		}
		return nil, err
	}

	s.logger.Info("booking created",
		zap.String("tenant_id", tenantID),
		zap.String("booking_id", booking.ID),
		zap.String("staff_id", booking.StaffID))
	return &booking, nil
}

// UpdateStatus moves a booking along its lifecycle. Setting the current
// status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, tenantID string, bookingID string, status domain.BookingStatus) (*domain.Booking, error) {
	if err := validation.Struct(domain.BookingStatusRequest{Status: status}); err != nil {
		return nil, err
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, domain.ErrNotFound
	}

	var updated domain.Booking
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetBookingForUpdate(ctx, tenantID, bookingID)
		if err != nil {
			return err
		}
		if current.Status == status {
			updated = *current
			return nil
		}
		if !current.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: cannot move booking from %s to %s", domain.ErrInvalidRequest, current.Status, status)
		}
		at := s.now()
		if err := tx.UpdateBookingStatus(ctx, tenantID, bookingID, status, at); err != nil {
			return err
		}
		updated = *current
		updated.Status = status
		updated.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, bookingID string) (*domain.Booking, error) {
	return s.store.GetBooking(ctx, tenantID, strings.TrimSpace(bookingID))
}
