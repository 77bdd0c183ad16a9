package enrollment

import (
	"context"

	"github.com/FBMASIH/student-grades-backend/models"
)

// HasRoom reports whether group can take requested more students while
// active students already hold a seat.
func HasRoom(group *models.CourseGroup, active int64, requested int) bool {
	if group.Unlimited() {
		return true
	}
	return active+int64(requested) <= int64(*group.Capacity)
}

// seats tracks the remaining room of one locked group for the lifetime of
// a transaction. active starts from the real row count, not the cached
// counter, and grows as the transaction places students.
type seats struct {
	group  *models.CourseGroup
	active int64
}

func countSeats(ctx context.Context, tx Tx, group *models.CourseGroup) (*seats, error) {
	n, err := tx.CountActive(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	return &seats{group: group, active: n}, nil
}

func (s *seats) check() error {
	if HasRoom(s.group, s.active, 1) {
		return nil
	}
	return ErrCapacityExceeded("group %d is full (capacity %d)", s.group.ID, *s.group.Capacity)
}

// resync rewrites the cached counter from the authoritative count.
func resync(ctx context.Context, tx Tx, group *models.CourseGroup) (int, error) {
	n, err := tx.CountActive(ctx, group.ID)
	if err != nil {
		return 0, err
	}
	count := int(n)
	if count < 0 {
		count = 0
	}
	if err := tx.SetCurrentEnrollment(ctx, group.ID, count); err != nil {
		return 0, err
	}
	group.CurrentEnrollment = count
	return count, nil
}
