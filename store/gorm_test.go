package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/FBMASIH/student-grades-backend/database"
	"github.com/FBMASIH/student-grades-backend/enrollment"
	"github.com/FBMASIH/student-grades-backend/models"
)

type seed struct {
	db      *gorm.DB
	store   *GormStore
	admin   models.User
	student models.User
	course  models.Course
	group   models.CourseGroup
}

func setupStore(t *testing.T) *seed {
	t.Helper()
	db, _ := database.OpenTestDB(t)

	s := &seed{db: db, store: NewGormStore(db)}
	s.admin = models.User{Username: "admin", Password: "x", Role: models.RoleAdmin, IsActive: true}
	s.student = models.User{Username: "stud", Password: "x", Role: models.RoleStudent, IsActive: true}
	require.NoError(t, db.Create(&s.admin).Error)
	require.NoError(t, db.Create(&s.student).Error)
	s.course = models.Course{Name: "Math", Code: "M-1", IsActive: true}
	require.NoError(t, db.Create(&s.course).Error)
	s.group = models.CourseGroup{GroupNumber: 1, CourseID: s.course.ID, IsActive: true}
	require.NoError(t, db.Create(&s.group).Error)
	return s
}

func (s *seed) row(groupID *uint) *models.Enrollment {
	return &models.Enrollment{
		StudentID:   s.student.ID,
		CourseID:    s.course.ID,
		GroupID:     groupID,
		IsActive:    true,
		CreatedByID: s.admin.ID,
	}
}

func TestGormTx_NotFoundLookups(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	err := s.store.InTx(ctx, func(ctx context.Context, tx enrollment.Tx) error {
		_, err := tx.LockGroup(ctx, 999)
		assert.Equal(t, enrollment.KindNotFound, enrollment.Kind(err))
		_, err = tx.FindUser(ctx, 999)
		assert.Equal(t, enrollment.KindNotFound, enrollment.Kind(err))
		_, err = tx.FindUserByUsername(ctx, "ghost")
		assert.Equal(t, enrollment.KindNotFound, enrollment.Kind(err))
		_, err = tx.FindEnrollment(ctx, 999)
		assert.Equal(t, enrollment.KindNotFound, enrollment.Kind(err))
		_, err = tx.FindCourse(ctx, 999)
		assert.Equal(t, enrollment.KindNotFound, enrollment.Kind(err))
		_, err = tx.LockCourse(ctx, 999)
		assert.Equal(t, enrollment.KindNotFound, enrollment.Kind(err))
		_, err = tx.LockUser(ctx, 999)
		assert.Equal(t, enrollment.KindNotFound, enrollment.Kind(err))

		u, err := tx.LockUser(ctx, s.student.ID)
		require.NoError(t, err)
		assert.Equal(t, "stud", u.Username)
		c, err := tx.LockCourse(ctx, s.course.ID)
		require.NoError(t, err)
		assert.Equal(t, "M-1", c.Code)

		row, err := tx.FindActiveInGroup(ctx, s.student.ID, s.group.ID)
		assert.NoError(t, err)
		assert.Nil(t, row)
		return nil
	})
	require.NoError(t, err)
}

func TestGormTx_ReconcileLookups(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	other := models.CourseGroup{GroupNumber: 2, CourseID: s.course.ID, IsActive: true}
	require.NoError(t, s.db.Create(&other).Error)

	err := s.store.InTx(ctx, func(ctx context.Context, tx enrollment.Tx) error {
		require.NoError(t, tx.CreateEnrollment(ctx, s.row(nil)))

		legacy, err := tx.FindActiveLegacy(ctx, s.student.ID, s.course.ID)
		require.NoError(t, err)
		require.NotNil(t, legacy)

		legacy.GroupID = &other.ID
		require.NoError(t, tx.SaveEnrollment(ctx, legacy))

		found, err := tx.FindActiveInOtherGroup(ctx, s.student.ID, s.course.ID, s.group.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, legacy.ID, found.ID)

		none, err := tx.FindActiveInOtherGroup(ctx, s.student.ID, s.course.ID, other.ID)
		require.NoError(t, err)
		assert.Nil(t, none)

		n, err := tx.CountActive(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)
}

func TestGormTx_DuplicateActiveRowIsConflict(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	err := s.store.InTx(ctx, func(ctx context.Context, tx enrollment.Tx) error {
		require.NoError(t, tx.CreateEnrollment(ctx, s.row(&s.group.ID)))
		return tx.CreateEnrollment(ctx, s.row(&s.group.ID))
	})
	assert.Equal(t, enrollment.KindConflict, enrollment.Kind(err))

	var n int64
	require.NoError(t, s.db.Model(&models.Enrollment{}).Count(&n).Error)
	assert.Zero(t, n, "transaction must roll back")
}

func TestGormTx_NestedRollsBackOnlyInner(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	err := s.store.InTx(ctx, func(ctx context.Context, tx enrollment.Tx) error {
		require.NoError(t, tx.SetCurrentEnrollment(ctx, s.group.ID, 5))
		inner := tx.Nested(ctx, func(ctx context.Context, tx enrollment.Tx) error {
			require.NoError(t, tx.CreateEnrollment(ctx, s.row(&s.group.ID)))
			return errors.New("item failed")
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)

	var g models.CourseGroup
	require.NoError(t, s.db.First(&g, s.group.ID).Error)
	assert.Equal(t, 5, g.CurrentEnrollment)

	var n int64
	require.NoError(t, s.db.Model(&models.Enrollment{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGormTx_DeactivateAndDeleteGroup(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	row := s.row(&s.group.ID)
	require.NoError(t, s.db.Create(row).Error)

	err := s.store.InTx(ctx, func(ctx context.Context, tx enrollment.Tx) error {
		n, err := tx.DeactivateGroupEnrollments(ctx, s.group.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return tx.DeleteGroup(ctx, s.group.ID)
	})
	require.NoError(t, err)

	var got models.Enrollment
	require.NoError(t, s.db.First(&got, row.ID).Error)
	assert.False(t, got.IsActive)
	assert.Nil(t, got.GroupID)
	require.NotNil(t, got.RemovedGroupID)
	assert.Equal(t, s.group.ID, *got.RemovedGroupID)

	err = s.store.InTx(ctx, func(ctx context.Context, tx enrollment.Tx) error {
		return tx.DeleteGroup(ctx, s.group.ID)
	})
	assert.Equal(t, enrollment.KindNotFound, enrollment.Kind(err))
}

func TestGormTx_ListGroupIDs(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	g2 := models.CourseGroup{GroupNumber: 2, CourseID: s.course.ID, IsActive: true}
	require.NoError(t, s.db.Create(&g2).Error)

	err := s.store.InTx(ctx, func(ctx context.Context, tx enrollment.Tx) error {
		ids, err := tx.ListGroupIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []uint{s.group.ID, g2.ID}, ids)
		return nil
	})
	require.NoError(t, err)
}

func TestGormTx_CourseLookups(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	g2 := models.CourseGroup{GroupNumber: 2, CourseID: s.course.ID, IsActive: true}
	require.NoError(t, s.db.Create(&g2).Error)
	other := models.Course{Name: "Physics", Code: "P-1", IsActive: true}
	require.NoError(t, s.db.Create(&other).Error)
	foreign := models.CourseGroup{GroupNumber: 1, CourseID: other.ID, IsActive: true}
	require.NoError(t, s.db.Create(&foreign).Error)

	err := s.store.InTx(ctx, func(ctx context.Context, tx enrollment.Tx) error {
		ids, err := tx.ListCourseGroupIDs(ctx, s.course.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{s.group.ID, g2.ID}, ids)

		none, err := tx.FindActiveInCourse(ctx, s.student.ID, s.course.ID)
		require.NoError(t, err)
		assert.Nil(t, none)

		require.NoError(t, tx.CreateEnrollment(ctx, s.row(&g2.ID)))
		found, err := tx.FindActiveInCourse(ctx, s.student.ID, s.course.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		require.NotNil(t, found.GroupID)
		assert.Equal(t, g2.ID, *found.GroupID)

		elsewhere, err := tx.FindActiveInCourse(ctx, s.student.ID, other.ID)
		require.NoError(t, err)
		assert.Nil(t, elsewhere)
		return nil
	})
	require.NoError(t, err)
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil, "x"))
	assert.Equal(t, enrollment.KindNotFound, enrollment.Kind(mapErr(gorm.ErrRecordNotFound, "group %d", 1)))
	assert.Equal(t, enrollment.KindConflict, enrollment.Kind(mapErr(gorm.ErrDuplicatedKey, "x")))
	assert.Equal(t, enrollment.KindConflict, enrollment.Kind(mapErr(
		fmt.Errorf(`ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)`), "x")))

	other := errors.New("connection refused")
	assert.Same(t, other, mapErr(other, "x"))
}
