package enrollment

import (
	"context"

	"github.com/FBMASIH/student-grades-backend/models"
)

// Action is the reconciler's verdict for one (student, group) pair.
type Action int

const (
	ActionCreate Action = iota
	ActionUpgrade
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpgrade:
		return "upgrade"
	case ActionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Plan describes how a student gets a seat in a group. Existing is set for
// upgrades and conflicts.
type Plan struct {
	Action   Action
	Existing *models.Enrollment
	Reason   string
}

// Err returns the rejection for a conflicting plan and nil otherwise.
func (p Plan) Err() error {
	if p.Action != ActionConflict {
		return nil
	}
	return ErrConflict("%s", p.Reason)
}

// Reconcile decides whether studentID needs a new enrollment in group, can
// reuse a legacy course-only one, or already holds a seat.
//
// The checks run in a fixed order: exact group, legacy row of the same
// course, another group of the same course. Checking other groups before
// legacy rows would let a student keep a legacy row while being placed in
// a second section.
func Reconcile(ctx context.Context, tx Tx, studentID uint, group *models.CourseGroup) (Plan, error) {
	same, err := tx.FindActiveInGroup(ctx, studentID, group.ID)
	if err != nil {
		return Plan{}, err
	}
	if same != nil {
		return Plan{
			Action:   ActionConflict,
			Existing: same,
			Reason:   "student is already enrolled in this group",
		}, nil
	}

	legacy, err := tx.FindActiveLegacy(ctx, studentID, group.CourseID)
	if err != nil {
		return Plan{}, err
	}
	if legacy != nil {
		return Plan{Action: ActionUpgrade, Existing: legacy}, nil
	}

	other, err := tx.FindActiveInOtherGroup(ctx, studentID, group.CourseID, group.ID)
	if err != nil {
		return Plan{}, err
	}
	if other != nil {
		return Plan{
			Action:   ActionConflict,
			Existing: other,
			Reason:   "student is already enrolled in another group of this course",
		}, nil
	}

	return Plan{Action: ActionCreate}, nil
}

// apply performs an upgrade or create plan and returns the resulting row.
func apply(ctx context.Context, tx Tx, plan Plan, studentID uint, group *models.CourseGroup, actorID uint) (*models.Enrollment, error) {
	groupID := group.ID

	switch plan.Action {
	case ActionUpgrade:
		row := plan.Existing
		row.GroupID = &groupID
		if err := tx.SaveEnrollment(ctx, row); err != nil {
			return nil, err
		}
		return row, nil
	case ActionCreate:
		row := &models.Enrollment{
			StudentID:   studentID,
			CourseID:    group.CourseID,
			GroupID:     &groupID,
			IsActive:    true,
			CreatedByID: actorID,
		}
		if err := tx.CreateEnrollment(ctx, row); err != nil {
			return nil, err
		}
		return row, nil
	default:
		return nil, plan.Err()
	}
}
