package period

import (
	"context"
	"errors"
	"fmt"

	userstore "github.com/dalemusser/mapstash/internal/app/store/users"
	"github.com/dalemusser/mapstash/internal/app/system/metrics"
	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/mapstash/internal/domain/failures"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"go.uber.org/zap"
)

// maxAttempts bounds the compare-and-swap retries for one update.
const maxAttempts = 5

// ErrConflict means every attempt lost a race with a concurrent update.
var ErrConflict = errors.New("period update conflicted too many times")

// Store is the persistence the conversation needs.
type Store interface {
	GetPeriod(ctx context.Context, userID string) (models.StoredPeriod, bool, error)
	SetPeriodBound(ctx context.Context, userID string, b userstore.Bound, value string, observedOther *string) (bool, error)
}

// Conversation applies date-picker postbacks to a user's period.
type Conversation struct {
	store   Store
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewConversation builds a Conversation. m may be nil.
func NewConversation(store Store, m *metrics.Metrics, logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conversation{store: store, metrics: m, log: logger}
}

// SetStart sets the start bound. Returns the resulting period, or an error
// matching failures.ErrValidation when the new start is after the end.
func (c *Conversation) SetStart(ctx context.Context, userID string, d Date) (Period, error) {
	return c.set(ctx, userID, userstore.StartBound, d)
}

// SetEnd sets the end bound. See SetStart.
func (c *Conversation) SetEnd(ctx context.Context, userID string, d Date) (Period, error) {
	return c.set(ctx, userID, userstore.EndBound, d)
}

func (c *Conversation) set(ctx context.Context, userID string, b userstore.Bound, d Date) (Period, error) {
	if userID == "" {
		return Period{}, errors.New("set period: empty user id")
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sp, _, err := c.store.GetPeriod(ctx, userID)
		if err != nil {
			c.metrics.PeriodUpdate(string(b), "error")
			return Period{}, failures.Store("load period", err)
		}
		current, err := FromStored(userID, sp)
		if err != nil {
			// A corrupt stored bound is overwritten rather than blocking the user.
			c.log.Warn("stored period unreadable", zap.String("user_id", userID), zap.Error(err))
			current = Period{UserID: userID}
		}

		next := current
		observed := sp.EndDate
		if b == userstore.StartBound {
			next.Start = &d
		} else {
			next.End = &d
			observed = sp.StartDate
		}

		if !next.Valid() {
			c.metrics.PeriodUpdate(string(b), "invalid")
			return current, fmt.Errorf("%w: start %s is after end %s", failures.ErrValidation, next.Start, next.End)
		}

		applied, err := c.store.SetPeriodBound(ctx, userID, b, d.String(), observed)
		if err != nil {
			c.metrics.PeriodUpdate(string(b), "error")
			return Period{}, failures.Store("update period", err)
		}
		if applied {
			c.metrics.PeriodUpdate(string(b), "applied")
			return next, nil
		}

		c.metrics.PeriodUpdate(string(b), "conflict")
		c.log.Debug("period update raced, retrying",
			zap.String("user_id", userID),
			zap.String("bound", string(b)),
			zap.Int("attempt", attempt))
	}
	return Period{}, ErrConflict
}
