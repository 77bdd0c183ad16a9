package enrollment

import (
	"context"
	"time"

	"github.com/FBMASIH/student-grades-backend/models"
)

// Store opens transactions against the entity store.
type Store interface {
	// InTx runs fn in a single transaction bounded by ctx. fn receives the
	// context its statements must run under. A non-nil return from fn, a
	// cancelled ctx or a failed commit rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of persistence operations the engine needs, all scoped to
// one open transaction. Lookups for a single row by id return a
// *NotFoundError when the row does not exist; the Find* helpers used for
// reconciliation return (nil, nil) instead.
//
// Row locks are taken in a fixed order: the group or course row first,
// then student rows in ascending id order, then enrollment rows.
type Tx interface {
	// Nested runs fn behind a savepoint. An error from fn rolls back only
	// the work done inside it.
	Nested(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// LockGroup reads the group row with an exclusive row lock held until
	// the enclosing transaction ends.
	LockGroup(ctx context.Context, groupID uint) (*models.CourseGroup, error)
	FindGroup(ctx context.Context, groupID uint) (*models.CourseGroup, error)
	ListGroupIDs(ctx context.Context) ([]uint, error)
	ListCourseGroupIDs(ctx context.Context, courseID uint) ([]uint, error)
	SetCurrentEnrollment(ctx context.Context, groupID uint, n int) error
	DeleteGroup(ctx context.Context, groupID uint) error

	FindCourse(ctx context.Context, id uint) (*models.Course, error)
	LockCourse(ctx context.Context, id uint) (*models.Course, error)
	FindUser(ctx context.Context, id uint) (*models.User, error)
	// LockUser serializes every placement of one student, whatever group
	// or course it targets.
	LockUser(ctx context.Context, id uint) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)

	FindEnrollment(ctx context.Context, id uint) (*models.Enrollment, error)
	LockEnrollment(ctx context.Context, id uint) (*models.Enrollment, error)
	FindActiveInGroup(ctx context.Context, studentID, groupID uint) (*models.Enrollment, error)
	FindActiveLegacy(ctx context.Context, studentID, courseID uint) (*models.Enrollment, error)
	FindActiveInOtherGroup(ctx context.Context, studentID, courseID, excludeGroupID uint) (*models.Enrollment, error)
	FindActiveInCourse(ctx context.Context, studentID, courseID uint) (*models.Enrollment, error)
	CountActive(ctx context.Context, groupID uint) (int64, error)
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	SaveEnrollment(ctx context.Context, e *models.Enrollment) error
	DeactivateGroupEnrollments(ctx context.Context, groupID uint) (int64, error)
}

// Reader serves the read-only query surface. It never takes locks.
type Reader interface {
	StudentEnrollments(ctx context.Context, studentID uint) ([]StudentEnrollment, error)
	GroupInfo(ctx context.Context, groupID uint) (*GroupInfo, error)
	GroupMembers(ctx context.Context, groupID uint) ([]RosterEntry, error)
	LegacyCandidates(ctx context.Context, courseID uint) ([]RosterEntry, error)
	CourseGroups(ctx context.Context, courseID uint) ([]GroupInfo, error)
	CourseEnrollments(ctx context.Context, courseID uint) ([]EnrollmentListItem, error)
	CountEnrollments(ctx context.Context, search string) (int64, error)
	ListEnrollments(ctx context.Context, search string, limit, offset int) ([]EnrollmentListItem, error)
}

// Cache stores JSON snapshots of read results. Implementations must treat
// a missing backend as a permanent miss.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
