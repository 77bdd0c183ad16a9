package enrollment_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/FBMASIH/student-grades-backend/database"
	"github.com/FBMASIH/student-grades-backend/enrollment"
	"github.com/FBMASIH/student-grades-backend/models"
	"github.com/FBMASIH/student-grades-backend/store"
)

type fixture struct {
	db     *gorm.DB
	read   *sqlx.DB
	store  enrollment.Store
	engine *enrollment.Engine
	query  *enrollment.Query
	admin  models.User
	course models.Course
	seq    int
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	db, read := database.OpenTestDB(t)
	logger := slog.New(slog.DiscardHandler)

	f := &fixture{
		db:    db,
		read:  read,
		store: store.NewGormStore(db),
	}
	f.engine = enrollment.NewEngine(f.store, nil, logger, 10*time.Second)
	f.query = enrollment.NewQuery(store.NewReader(read), f.engine, nil, time.Minute, logger)

	f.admin = f.user(t, "admin", models.RoleAdmin, true)
	f.course = f.newCourse(t, "Algorithms", "CS-201")
	return f
}

func (f *fixture) user(t *testing.T, username, role string, active bool) models.User {
	t.Helper()
	u := models.User{
		Username:  username,
		Password:  "x",
		FirstName: "First " + username,
		LastName:  "Last " + username,
		Role:      role,
		IsActive:  active,
	}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) student(t *testing.T, username string) models.User {
	t.Helper()
	return f.user(t, username, models.RoleStudent, true)
}

func (f *fixture) students(t *testing.T, n int) []models.User {
	t.Helper()
	out := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		f.seq++
		out = append(out, f.student(t, fmt.Sprintf("student%03d", f.seq)))
	}
	return out
}

func (f *fixture) newCourse(t *testing.T, name, code string) models.Course {
	t.Helper()
	c := models.Course{Name: name, Code: code, IsActive: true}
	require.NoError(t, f.db.Create(&c).Error)
	return c
}

func (f *fixture) groupIn(t *testing.T, course models.Course, number int, capacity *int) models.CourseGroup {
	t.Helper()
	g := models.CourseGroup{
		GroupNumber: number,
		CourseID:    course.ID,
		Capacity:    capacity,
		IsActive:    true,
	}
	require.NoError(t, f.db.Create(&g).Error)
	return g
}

func (f *fixture) group(t *testing.T, number int, capacity *int) models.CourseGroup {
	t.Helper()
	return f.groupIn(t, f.course, number, capacity)
}

func (f *fixture) legacy(t *testing.T, studentID, courseID uint) models.Enrollment {
	t.Helper()
	e := models.Enrollment{
		StudentID:   studentID,
		CourseID:    courseID,
		IsActive:    true,
		CreatedByID: f.admin.ID,
	}
	require.NoError(t, f.db.Create(&e).Error)
	return e
}

func (f *fixture) enroll(t *testing.T, studentID, groupID uint) *models.Enrollment {
	t.Helper()
	row, err := f.engine.EnrollOne(context.Background(), studentID, groupID, f.admin.ID)
	require.NoError(t, err)
	return row
}

func (f *fixture) reloadGroup(t *testing.T, groupID uint) models.CourseGroup {
	t.Helper()
	var g models.CourseGroup
	require.NoError(t, f.db.First(&g, groupID).Error)
	return g
}

func (f *fixture) reloadEnrollment(t *testing.T, id uint) models.Enrollment {
	t.Helper()
	var e models.Enrollment
	require.NoError(t, f.db.First(&e, id).Error)
	return e
}

func (f *fixture) activeCount(t *testing.T, groupID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Enrollment{}).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Count(&n).Error)
	return n
}

func (f *fixture) setCounter(t *testing.T, groupID uint, n int) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.CourseGroup{}).
		Where("id = ?", groupID).
		Update("current_enrollment", n).Error)
}

// requireConsistent checks the cached counter against the real rows and
// the capacity bound.
func (f *fixture) requireConsistent(t *testing.T, groupID uint) {
	t.Helper()
	g := f.reloadGroup(t, groupID)
	n := f.activeCount(t, groupID)
	assert.Equal(t, n, int64(g.CurrentEnrollment), "counter of group %d", groupID)
	if !g.Unlimited() {
		assert.LessOrEqual(t, g.CurrentEnrollment, *g.Capacity, "capacity of group %d", groupID)
	}
}

func intPtr(n int) *int { return &n }

func kindOf(t *testing.T, err error) enrollment.ErrorKind {
	t.Helper()
	require.Error(t, err)
	return enrollment.Kind(err)
}
