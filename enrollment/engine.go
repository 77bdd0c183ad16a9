// Package enrollment places students into course groups under capacity and
// uniqueness constraints and keeps each group's cached enrollment counter
// equal to its real number of active enrollments.
//
// Every mutating operation runs in one transaction that locks the affected
// course group (or course) row first, so concurrent calls against the same
// group are serialized while calls against different groups run in
// parallel. The student rows involved are locked next, in ascending id
// order, which serializes placements of one student across groups.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/FBMASIH/student-grades-backend/models"
)

// Engine is the enrollment transaction engine.
type Engine struct {
	store     Store
	cache     Cache
	logger    *slog.Logger
	txTimeout time.Duration
}

// NewEngine creates an Engine. cache may be nil; txTimeout <= 0 leaves the
// transaction bounded only by the caller's context.
func NewEngine(store Store, cache Cache, logger *slog.Logger, txTimeout time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		cache:     cache,
		logger:    logger,
		txTimeout: txTimeout,
	}
}

// inTx runs fn in one transaction. The ctx handed to fn carries the
// transaction timeout and must be used for every statement.
func (e *Engine) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	if e.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.txTimeout)
		defer cancel()
	}
	return unexpected(op, e.store.InTx(ctx, fn))
}

// invalidate drops cached rosters after a commit. A cache failure never
// fails the already committed operation.
func (e *Engine) invalidate(ctx context.Context, groupIDs ...uint) {
	if e.cache == nil || len(groupIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(groupIDs))
	for _, id := range groupIDs {
		keys = append(keys, rosterKey(id))
	}
	if err := e.cache.Delete(ctx, keys...); err != nil {
		e.logger.Warn("roster cache invalidation failed", "group_ids", groupIDs, "error", err)
	}
}

// courseRosters returns every group of a course. Legacy candidates show up
// on all of them, so any change to a student's standing in the course
// touches every roster.
func courseRosters(ctx context.Context, tx Tx, courseID uint) ([]uint, error) {
	return tx.ListCourseGroupIDs(ctx, courseID)
}

// lockOpenGroup locks the group and checks it can take enrollments.
func lockOpenGroup(ctx context.Context, tx Tx, groupID uint) (*models.CourseGroup, error) {
	group, err := tx.LockGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsActive {
		return nil, ErrNotFound("course group %d not found", groupID)
	}
	course, err := tx.FindCourse(ctx, group.CourseID)
	if err != nil {
		return nil, err
	}
	if !course.IsActive {
		return nil, ErrNotFound("course %d not found", group.CourseID)
	}
	return group, nil
}

// loadStudent locks the student row and checks the student may enroll.
func loadStudent(ctx context.Context, tx Tx, studentID uint) (*models.User, error) {
	student, err := tx.LockUser(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.IsActiveStudent() {
		return nil, ErrNotFound("active student %d not found", studentID)
	}
	return student, nil
}

func loadActor(ctx context.Context, tx Tx, actorID uint) (*models.User, error) {
	actor, err := tx.FindUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsActive {
		return nil, ErrNotFound("acting user %d not found", actorID)
	}
	return actor, nil
}

// lockStudents takes the student locks of a batch in ascending id order.
// Unknown ids are skipped; their items report NotFound later.
func lockStudents(ctx context.Context, tx Tx, ids []uint) error {
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		if _, err := tx.LockUser(ctx, id); err != nil && Kind(err) != KindNotFound {
			return err
		}
	}
	return nil
}

// place reconciles and, when allowed, seats one student. The capacity
// check runs after conflict detection so a repeated request reports the
// conflict rather than a full group. The caller holds the student lock.
func place(ctx context.Context, tx Tx, room *seats, studentID, actorID uint) (*models.Enrollment, Action, error) {
	plan, err := Reconcile(ctx, tx, studentID, room.group)
	if err != nil {
		return nil, plan.Action, err
	}
	if err := plan.Err(); err != nil {
		return nil, plan.Action, err
	}
	if err := room.check(); err != nil {
		return nil, plan.Action, err
	}
	row, err := apply(ctx, tx, plan, studentID, room.group, actorID)
	return row, plan.Action, err
}

// EnrollOne places a single student into a group on behalf of actorID.
func (e *Engine) EnrollOne(ctx context.Context, studentID, groupID, actorID uint) (*models.Enrollment, error) {
	start := time.Now()
	var (
		row     *models.Enrollment
		action  Action
		count   int
		touched []uint
	)

	err := e.inTx(ctx, "enroll student", func(ctx context.Context, tx Tx) error {
		group, err := lockOpenGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if _, err := loadStudent(ctx, tx, studentID); err != nil {
			return err
		}
		if _, err := loadActor(ctx, tx, actorID); err != nil {
			return err
		}
		room, err := countSeats(ctx, tx, group)
		if err != nil {
			return err
		}
		row, action, err = place(ctx, tx, room, studentID, actorID)
		if err != nil {
			return err
		}
		if count, err = resync(ctx, tx, group); err != nil {
			return err
		}
		touched, err = courseRosters(ctx, tx, group.CourseID)
		return err
	})
	if err != nil {
		e.logger.Info("enroll rejected",
			"group_id", groupID, "student_id", studentID, "kind", Kind(err), "error", err)
		return nil, err
	}

	e.invalidate(ctx, touched...)
	e.logger.Info("student enrolled",
		"group_id", groupID,
		"student_id", studentID,
		"enrollment_id", row.ID,
		"action", action.String(),
		"current_enrollment", count,
		"duration", time.Since(start))
	return row, nil
}

// identifier is one batch entry and the way to resolve it to a user.
type identifier struct {
	label   string
	resolve func(ctx context.Context, tx Tx) (*models.User, error)
}

func idIdentifiers(studentIDs []uint) []identifier {
	idents := make([]identifier, 0, len(studentIDs))
	for _, id := range studentIDs {
		id := id
		idents = append(idents, identifier{
			label: strconv.FormatUint(uint64(id), 10),
			resolve: func(ctx context.Context, tx Tx) (*models.User, error) {
				return tx.FindUser(ctx, id)
			},
		})
	}
	return idents
}

func usernameIdentifiers(usernames []string) ([]identifier, error) {
	if len(usernames) == 0 {
		return nil, ErrValidation("username list must not be empty")
	}
	clean := SanitizeUsernames(usernames)
	if len(clean) == 0 {
		return nil, ErrValidation("no valid username provided")
	}
	idents := make([]identifier, 0, len(clean))
	for _, name := range clean {
		name := name
		idents = append(idents, identifier{
			label: name,
			resolve: func(ctx context.Context, tx Tx) (*models.User, error) {
				return tx.FindUserByUsername(ctx, name)
			},
		})
	}
	return idents, nil
}

// EnrollMany places students identified by id into a group.
func (e *Engine) EnrollMany(ctx context.Context, groupID uint, studentIDs []uint, actorID uint) (*BatchResult, error) {
	if len(studentIDs) == 0 {
		return nil, ErrValidation("student id list must not be empty")
	}
	return e.enrollBatch(ctx, "enroll students", groupID, actorID, idIdentifiers(studentIDs))
}

// EnrollManyByUsername places students identified by username into a group.
func (e *Engine) EnrollManyByUsername(ctx context.Context, groupID uint, usernames []string, actorID uint) (*BatchResult, error) {
	idents, err := usernameIdentifiers(usernames)
	if err != nil {
		return nil, err
	}
	return e.enrollBatch(ctx, "enroll students by username", groupID, actorID, idents)
}

// runItems resolves and locks the students of a batch, then runs fn for
// each active student behind its own savepoint. Rejections and unexpected
// item failures are collected into result; a cancelled ctx aborts.
func (e *Engine) runItems(ctx context.Context, tx Tx, op string, idents []identifier, result *BatchResult,
	fn func(ctx context.Context, tx Tx, student *models.User) error) error {
	ids := make([]uint, 0, len(idents))
	for _, ident := range idents {
		var id uint
		err := tx.Nested(ctx, func(ctx context.Context, tx Tx) error {
			u, err := ident.resolve(ctx, tx)
			if err != nil {
				return err
			}
			id = u.ID
			return nil
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			ids = append(ids, id)
		}
	}
	if err := lockStudents(ctx, tx, ids); err != nil {
		return err
	}

	for _, ident := range idents {
		var ref StudentRef
		err := tx.Nested(ctx, func(ctx context.Context, tx Tx) error {
			student, err := ident.resolve(ctx, tx)
			if err != nil {
				return err
			}
			if !student.IsActiveStudent() {
				return ErrNotFound("student %s not found or inactive", ident.label)
			}
			if err := fn(ctx, tx, student); err != nil {
				return err
			}
			ref = StudentRef{ID: student.ID, Username: student.Username}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !IsRejection(err) {
				e.logger.Warn("batch item failed", "op", op, "identifier", ident.label, "error", err)
			} else {
				e.logger.Debug("batch item rejected", "op", op, "identifier", ident.label, "error", err)
			}
			result.fail(ident.label, err)
			continue
		}
		result.Successful = append(result.Successful, ref)
	}
	return nil
}

func (e *Engine) enrollBatch(ctx context.Context, op string, groupID, actorID uint, idents []identifier) (*BatchResult, error) {
	start := time.Now()
	var (
		result  *BatchResult
		touched []uint
	)

	err := e.inTx(ctx, op, func(ctx context.Context, tx Tx) error {
		result = newBatchResult(groupID)

		group, err := lockOpenGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if _, err := loadActor(ctx, tx, actorID); err != nil {
			return err
		}
		room, err := countSeats(ctx, tx, group)
		if err != nil {
			return err
		}

		err = e.runItems(ctx, tx, op, idents, result, func(ctx context.Context, tx Tx, student *models.User) error {
			if _, _, err := place(ctx, tx, room, student.ID, actorID); err != nil {
				return err
			}
			room.active++
			return nil
		})
		if err != nil {
			return err
		}

		if result.CurrentEnrollment, err = resync(ctx, tx, group); err != nil {
			return err
		}
		touched, err = courseRosters(ctx, tx, group.CourseID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx, touched...)
	e.logger.Info("batch enrollment finished",
		"op", op,
		"group_id", groupID,
		"requested", len(idents),
		"successful", len(result.Successful),
		"failed", len(result.Errors),
		"current_enrollment", result.CurrentEnrollment,
		"duration", time.Since(start))
	return result, nil
}

// errGroupMoved restarts UnenrollOne when the row changed group between
// the unlocked read and the student lock.
var errGroupMoved = errors.New("enrollment moved to another group")

const unenrollAttempts = 3

// UnenrollOne deactivates a single enrollment and resyncs its group.
func (e *Engine) UnenrollOne(ctx context.Context, enrollmentID uint) error {
	var (
		groupID *uint
		touched []uint
		err     error
	)
	for attempt := 1; ; attempt++ {
		groupID, touched, err = e.unenrollOnce(ctx, enrollmentID)
		if !errors.Is(err, errGroupMoved) || attempt == unenrollAttempts {
			break
		}
		e.logger.Debug("enrollment moved, retrying unenroll", "enrollment_id", enrollmentID, "attempt", attempt)
	}
	if err != nil {
		return err
	}

	e.invalidate(ctx, touched...)
	e.logger.Info("enrollment deactivated", "enrollment_id", enrollmentID, "group_id", groupID)
	return nil
}

func (e *Engine) unenrollOnce(ctx context.Context, enrollmentID uint) (*uint, []uint, error) {
	var (
		groupID *uint
		touched []uint
	)
	err := e.inTx(ctx, "unenroll", func(ctx context.Context, tx Tx) error {
		row, err := tx.FindEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if !row.IsActive {
			return ErrNotFound("enrollment %d not found", enrollmentID)
		}

		var group *models.CourseGroup
		if row.GroupID != nil {
			if group, err = tx.LockGroup(ctx, *row.GroupID); err != nil {
				return err
			}
		}
		if _, err := tx.LockUser(ctx, row.StudentID); err != nil {
			return err
		}

		seen := row.GroupID
		row, err = tx.LockEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if !row.IsActive {
			return ErrNotFound("enrollment %d not found", enrollmentID)
		}
		// Taking the new group's lock now would invert the lock order.
		if !sameGroup(seen, row.GroupID) {
			return errGroupMoved
		}

		row.IsActive = false
		if err := tx.SaveEnrollment(ctx, row); err != nil {
			return err
		}
		if group != nil {
			groupID = &group.ID
			if _, err := resync(ctx, tx, group); err != nil {
				return err
			}
		}
		touched, err = courseRosters(ctx, tx, row.CourseID)
		return err
	})
	return groupID, touched, err
}

func sameGroup(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// UnenrollMany deactivates the enrollments of the given students in a
// group. A student without a seat in the group falls back to a legacy
// enrollment in the group's course.
func (e *Engine) UnenrollMany(ctx context.Context, groupID uint, studentIDs []uint) (*BatchResult, error) {
	if len(studentIDs) == 0 {
		return nil, ErrValidation("student id list must not be empty")
	}
	var (
		result  *BatchResult
		touched []uint
	)

	err := e.inTx(ctx, "unenroll students", func(ctx context.Context, tx Tx) error {
		result = newBatchResult(groupID)

		group, err := tx.LockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if err := lockStudents(ctx, tx, studentIDs); err != nil {
			return err
		}

		for _, studentID := range studentIDs {
			label := strconv.FormatUint(uint64(studentID), 10)
			err := tx.Nested(ctx, func(ctx context.Context, tx Tx) error {
				row, err := tx.FindActiveInGroup(ctx, studentID, groupID)
				if err != nil {
					return err
				}
				if row == nil {
					if row, err = tx.FindActiveLegacy(ctx, studentID, group.CourseID); err != nil {
						return err
					}
				}
				if row == nil {
					return ErrNotFound("not found")
				}
				row.IsActive = false
				return tx.SaveEnrollment(ctx, row)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				result.fail(label, err)
				continue
			}
			result.Successful = append(result.Successful, StudentRef{ID: studentID})
		}

		if result.CurrentEnrollment, err = resync(ctx, tx, group); err != nil {
			return err
		}
		touched, err = courseRosters(ctx, tx, group.CourseID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx, touched...)
	e.logger.Info("batch unenrollment finished",
		"group_id", groupID,
		"successful", len(result.Successful),
		"failed", len(result.Errors),
		"current_enrollment", result.CurrentEnrollment)
	return result, nil
}

// RemoveGroup deactivates every active enrollment of a group and deletes
// the group, all in one transaction. It returns the number of enrollments
// that were deactivated.
func (e *Engine) RemoveGroup(ctx context.Context, groupID uint) (int64, error) {
	var deactivated int64

	err := e.inTx(ctx, "remove group", func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockGroup(ctx, groupID); err != nil {
			return err
		}
		n, err := tx.DeactivateGroupEnrollments(ctx, groupID)
		if err != nil {
			return err
		}
		deactivated = n
		return tx.DeleteGroup(ctx, groupID)
	})
	if err != nil {
		return 0, err
	}

	e.invalidate(ctx, groupID)
	e.logger.Info("course group removed", "group_id", groupID, "deactivated", deactivated)
	return deactivated, nil
}

// CountActive returns the authoritative number of active enrollments of a
// group.
func (e *Engine) CountActive(ctx context.Context, groupID uint) (int64, error) {
	var n int64
	err := e.inTx(ctx, "count active enrollments", func(ctx context.Context, tx Tx) error {
		if _, err := tx.FindGroup(ctx, groupID); err != nil {
			return err
		}
		var err error
		n, err = tx.CountActive(ctx, groupID)
		return err
	})
	return n, err
}

// HasRoom reports whether the group can accept requested more students
// right now. The answer is advisory; enrollment re-checks under the lock.
func (e *Engine) HasRoom(ctx context.Context, groupID uint, requested int) (bool, error) {
	if requested < 0 {
		return false, ErrValidation("requested seats must not be negative")
	}
	var ok bool
	err := e.inTx(ctx, "check capacity", func(ctx context.Context, tx Tx) error {
		group, err := tx.FindGroup(ctx, groupID)
		if err != nil {
			return err
		}
		n, err := tx.CountActive(ctx, groupID)
		if err != nil {
			return err
		}
		ok = HasRoom(group, n, requested)
		return nil
	})
	return ok, err
}

// ResyncReport describes one counter repair.
type ResyncReport struct {
	GroupID uint `json:"group_id"`
	Before  int  `json:"before"`
	After   int  `json:"after"`
}

// ResyncGroup rewrites a group's cached counter from its real count.
func (e *Engine) ResyncGroup(ctx context.Context, groupID uint) (ResyncReport, error) {
	report := ResyncReport{GroupID: groupID}
	err := e.inTx(ctx, "resync group", func(ctx context.Context, tx Tx) error {
		group, err := tx.LockGroup(ctx, groupID)
		if err != nil {
			return err
		}
		report.Before = group.CurrentEnrollment
		report.After, err = resync(ctx, tx, group)
		return err
	})
	if err != nil {
		return report, err
	}
	if report.Before != report.After {
		e.invalidate(ctx, groupID)
		e.logger.Warn("enrollment counter drift repaired",
			"group_id", groupID, "before", report.Before, "after", report.After)
	}
	return report, nil
}

// ResyncAll repairs every group's counter. Each group is locked in its own
// transaction so no two group locks are ever held together. Only groups
// whose counter changed are reported.
func (e *Engine) ResyncAll(ctx context.Context) ([]ResyncReport, error) {
	var ids []uint
	err := e.inTx(ctx, "list groups", func(ctx context.Context, tx Tx) error {
		var err error
		ids, err = tx.ListGroupIDs(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var repaired []ResyncReport
	for _, id := range ids {
		report, err := e.ResyncGroup(ctx, id)
		if err != nil {
			if Kind(err) == KindNotFound {
				continue // deleted since listing
			}
			return repaired, fmt.Errorf("resync group %d: %w", id, err)
		}
		if report.Before != report.After {
			repaired = append(repaired, report)
		}
	}
	return repaired, nil
}
