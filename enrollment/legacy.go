package enrollment

import (
	"context"
	"time"

	"github.com/FBMASIH/student-grades-backend/models"
)

// lockOpenCourse locks the course row for course-only enrollment.
func lockOpenCourse(ctx context.Context, tx Tx, courseID uint) (*models.Course, error) {
	course, err := tx.LockCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsActive {
		return nil, ErrNotFound("course %d not found", courseID)
	}
	return course, nil
}

// enrollInCourse creates a course-only row. Any active enrollment in the
// course, legacy or in a section, blocks it. The caller holds the student
// lock.
func enrollInCourse(ctx context.Context, tx Tx, studentID, courseID, actorID uint) (*models.Enrollment, error) {
	existing, err := tx.FindActiveInCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Legacy() {
			return nil, ErrConflict("student is already enrolled in this course")
		}
		return nil, ErrConflict("student is already enrolled in a group of this course")
	}

	row := &models.Enrollment{
		StudentID:   studentID,
		CourseID:    courseID,
		IsActive:    true,
		CreatedByID: actorID,
	}
	if err := tx.CreateEnrollment(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// EnrollCourse creates a legacy course-only enrollment. The student can be
// placed into one of the course's groups later, which upgrades this row.
func (e *Engine) EnrollCourse(ctx context.Context, studentID, courseID, actorID uint) (*models.Enrollment, error) {
	var (
		row     *models.Enrollment
		touched []uint
	)

	err := e.inTx(ctx, "enroll student in course", func(ctx context.Context, tx Tx) error {
		if _, err := lockOpenCourse(ctx, tx, courseID); err != nil {
			return err
		}
		if _, err := loadStudent(ctx, tx, studentID); err != nil {
			return err
		}
		if _, err := loadActor(ctx, tx, actorID); err != nil {
			return err
		}
		var err error
		if row, err = enrollInCourse(ctx, tx, studentID, courseID, actorID); err != nil {
			return err
		}
		touched, err = courseRosters(ctx, tx, courseID)
		return err
	})
	if err != nil {
		e.logger.Info("course enroll rejected",
			"course_id", courseID, "student_id", studentID, "kind", Kind(err), "error", err)
		return nil, err
	}

	e.invalidate(ctx, touched...)
	e.logger.Info("student enrolled in course",
		"course_id", courseID, "student_id", studentID, "enrollment_id", row.ID)
	return row, nil
}

// EnrollCourseMany creates course-only enrollments for students identified
// by username.
func (e *Engine) EnrollCourseMany(ctx context.Context, courseID uint, usernames []string, actorID uint) (*BatchResult, error) {
	idents, err := usernameIdentifiers(usernames)
	if err != nil {
		return nil, err
	}

	const op = "enroll students in course"
	start := time.Now()
	var (
		result  *BatchResult
		touched []uint
	)

	err = e.inTx(ctx, op, func(ctx context.Context, tx Tx) error {
		result = &BatchResult{CourseID: courseID, Successful: []StudentRef{}, Errors: []ItemError{}}

		if _, err := lockOpenCourse(ctx, tx, courseID); err != nil {
			return err
		}
		if _, err := loadActor(ctx, tx, actorID); err != nil {
			return err
		}

		err := e.runItems(ctx, tx, op, idents, result, func(ctx context.Context, tx Tx, student *models.User) error {
			_, err := enrollInCourse(ctx, tx, student.ID, courseID, actorID)
			return err
		})
		if err != nil {
			return err
		}
		touched, err = courseRosters(ctx, tx, courseID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx, touched...)
	e.logger.Info("course batch enrollment finished",
		"course_id", courseID,
		"requested", len(idents),
		"successful", len(result.Successful),
		"failed", len(result.Errors),
		"duration", time.Since(start))
	return result, nil
}
