// Package store implements enrollment persistence: the transactional write
// side on gorm and the read side on sqlx.
package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FBMASIH/student-grades-backend/enrollment"
	"github.com/FBMASIH/student-grades-backend/models"
)

// GormStore opens enrollment transactions on a gorm connection.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// InTx implements enrollment.Store. fn gets the same ctx the transaction
// was opened with, so a deadline on ctx also cancels a statement waiting
// on a row lock.
func (s *GormStore) InTx(ctx context.Context, fn func(ctx context.Context, tx enrollment.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

// Nested relies on gorm turning a transaction inside a transaction into a
// savepoint.
func (t *gormTx) Nested(ctx context.Context, fn func(ctx context.Context, tx enrollment.Tx) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormTx{db: tx})
	})
}

func (t *gormTx) with(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *gormTx) LockGroup(ctx context.Context, groupID uint) (*models.CourseGroup, error) {
	var group models.CourseGroup
	err := t.with(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&group, groupID).Error
	if err != nil {
		return nil, mapErr(err, "course group %d not found", groupID)
	}
	return &group, nil
}

func (t *gormTx) FindGroup(ctx context.Context, groupID uint) (*models.CourseGroup, error) {
	var group models.CourseGroup
	if err := t.with(ctx).First(&group, groupID).Error; err != nil {
		return nil, mapErr(err, "course group %d not found", groupID)
	}
	return &group, nil
}

func (t *gormTx) ListGroupIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := t.with(ctx).Model(&models.CourseGroup{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (t *gormTx) ListCourseGroupIDs(ctx context.Context, courseID uint) ([]uint, error) {
	var ids []uint
	err := t.with(ctx).Model(&models.CourseGroup{}).
		Where("course_id = ?", courseID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

func (t *gormTx) SetCurrentEnrollment(ctx context.Context, groupID uint, n int) error {
	return t.with(ctx).Model(&models.CourseGroup{}).
		Where("id = ?", groupID).
		Update("current_enrollment", n).Error
}

// DeleteGroup removes the group row. The FK clears group_id on its
// enrollments, so the id is copied to removed_group_id first.
func (t *gormTx) DeleteGroup(ctx context.Context, groupID uint) error {
	err := t.with(ctx).Model(&models.Enrollment{}).
		Where("group_id = ?", groupID).
		Update("removed_group_id", groupID).Error
	if err != nil {
		return err
	}

	res := t.with(ctx).Delete(&models.CourseGroup{}, groupID)
	if res.Error != nil {
		return mapErr(res.Error, "course group %d not found", groupID)
	}
	if res.RowsAffected == 0 {
		return enrollment.ErrNotFound("course group %d not found", groupID)
	}
	return nil
}

func (t *gormTx) FindCourse(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	if err := t.with(ctx).First(&course, id).Error; err != nil {
		return nil, mapErr(err, "course %d not found", id)
	}
	return &course, nil
}

func (t *gormTx) LockCourse(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	err := t.with(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&course, id).Error
	if err != nil {
		return nil, mapErr(err, "course %d not found", id)
	}
	return &course, nil
}

func (t *gormTx) FindUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := t.with(ctx).First(&user, id).Error; err != nil {
		return nil, mapErr(err, "user %d not found", id)
	}
	return &user, nil
}

func (t *gormTx) LockUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := t.with(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, id).Error
	if err != nil {
		return nil, mapErr(err, "user %d not found", id)
	}
	return &user, nil
}

func (t *gormTx) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := t.with(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, mapErr(err, "user %q not found", username)
	}
	return &user, nil
}

func (t *gormTx) FindEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	var row models.Enrollment
	if err := t.with(ctx).First(&row, id).Error; err != nil {
		return nil, mapErr(err, "enrollment %d not found", id)
	}
	return &row, nil
}

func (t *gormTx) LockEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	var row models.Enrollment
	err := t.with(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, id).Error
	if err != nil {
		return nil, mapErr(err, "enrollment %d not found", id)
	}
	return &row, nil
}

// findOne returns (nil, nil) when nothing matches.
func findOne(query *gorm.DB) (*models.Enrollment, error) {
	var rows []models.Enrollment
	if err := query.Order("id").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (t *gormTx) active(ctx context.Context) *gorm.DB {
	return t.with(ctx).Model(&models.Enrollment{}).Where("is_active = ?", true)
}

func (t *gormTx) FindActiveInGroup(ctx context.Context, studentID, groupID uint) (*models.Enrollment, error) {
	return findOne(t.active(ctx).
		Where("student_id = ? AND group_id = ?", studentID, groupID))
}

func (t *gormTx) FindActiveLegacy(ctx context.Context, studentID, courseID uint) (*models.Enrollment, error) {
	return findOne(t.active(ctx).
		Where("student_id = ? AND course_id = ? AND group_id IS NULL", studentID, courseID))
}

func (t *gormTx) FindActiveInOtherGroup(ctx context.Context, studentID, courseID, excludeGroupID uint) (*models.Enrollment, error) {
	return findOne(t.active(ctx).
		Where("student_id = ? AND course_id = ? AND group_id IS NOT NULL AND group_id <> ?",
			studentID, courseID, excludeGroupID))
}

func (t *gormTx) FindActiveInCourse(ctx context.Context, studentID, courseID uint) (*models.Enrollment, error) {
	return findOne(t.active(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID))
}

func (t *gormTx) CountActive(ctx context.Context, groupID uint) (int64, error) {
	var n int64
	err := t.active(ctx).Where("group_id = ?", groupID).Count(&n).Error
	return n, err
}

func (t *gormTx) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	if err := t.with(ctx).Omit(clause.Associations).Create(e).Error; err != nil {
		return mapErr(err, "enrollment already exists")
	}
	return nil
}

func (t *gormTx) SaveEnrollment(ctx context.Context, e *models.Enrollment) error {
	if err := t.with(ctx).Omit(clause.Associations).Save(e).Error; err != nil {
		return mapErr(err, "enrollment %d not found", e.ID)
	}
	return nil
}

func (t *gormTx) DeactivateGroupEnrollments(ctx context.Context, groupID uint) (int64, error) {
	res := t.with(ctx).Model(&models.Enrollment{}).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// mapErr turns driver errors into the enrollment taxonomy. notFound is
// used as the message when the row is missing.
func mapErr(err error, notFound string, args ...interface{}) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return enrollment.ErrNotFound(notFound, args...)
	case isUniqueViolation(err):
		return enrollment.ErrConflict("student is already enrolled")
	default:
		return err
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value")
}
