package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/FBMASIH/student-grades-backend/enrollment"
)

// Reader serves enrollment read paths with plain SQL over sqlx. Queries are
// written with ? placeholders and rebound for the connected driver.
type Reader struct {
	db *sqlx.DB
}

func NewReader(db *sqlx.DB) *Reader {
	return &Reader{db: db}
}

const groupInfoSelect = `
	SELECT g.id, g.group_number, g.course_id, c.name AS course_name,
	       COALESCE(p.first_name || ' ' || p.last_name, '') AS professor_name,
	       g.capacity, g.is_active, g.current_enrollment,
	       (SELECT COUNT(*) FROM enrollments e
	         WHERE e.group_id = g.id AND e.is_active = ?) AS active_count
	  FROM course_groups g
	  JOIN courses c ON c.id = g.course_id
	  LEFT JOIN users p ON p.id = g.professor_id`

func (r *Reader) StudentEnrollments(ctx context.Context, studentID uint) ([]enrollment.StudentEnrollment, error) {
	query := r.db.Rebind(`
		SELECT e.id, e.course_id, c.name AS course_name, c.code AS course_code,
		       e.group_id, g.group_number, e.score, e.created_at
		  FROM enrollments e
		  JOIN courses c ON c.id = e.course_id
		  LEFT JOIN course_groups g ON g.id = e.group_id
		 WHERE e.student_id = ? AND e.is_active = ?
		 ORDER BY c.name, e.id`)

	var rows []enrollment.StudentEnrollment
	if err := r.db.SelectContext(ctx, &rows, query, studentID, true); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Reader) GroupInfo(ctx context.Context, groupID uint) (*enrollment.GroupInfo, error) {
	query := r.db.Rebind(groupInfoSelect + ` WHERE g.id = ?`)

	var info enrollment.GroupInfo
	if err := r.db.GetContext(ctx, &info, query, true, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, enrollment.ErrNotFound("course group %d not found", groupID)
		}
		return nil, err
	}
	return &info, nil
}

func (r *Reader) GroupMembers(ctx context.Context, groupID uint) ([]enrollment.RosterEntry, error) {
	query := r.db.Rebind(`
		SELECT u.id, u.username, u.first_name, u.last_name, e.id AS enrollment_id, e.score
		  FROM enrollments e
		  JOIN users u ON u.id = e.student_id
		 WHERE e.group_id = ? AND e.is_active = ?
		 ORDER BY u.username`)

	var rows []enrollment.RosterEntry
	if err := r.db.SelectContext(ctx, &rows, query, groupID, true); err != nil {
		return nil, err
	}
	return rows, nil
}

// LegacyCandidates lists active students holding a course-only enrollment.
func (r *Reader) LegacyCandidates(ctx context.Context, courseID uint) ([]enrollment.RosterEntry, error) {
	query := r.db.Rebind(`
		SELECT u.id, u.username, u.first_name, u.last_name, e.id AS enrollment_id, e.score
		  FROM enrollments e
		  JOIN users u ON u.id = e.student_id
		 WHERE e.course_id = ? AND e.group_id IS NULL
		   AND e.is_active = ? AND u.is_active = ?
		 ORDER BY u.username`)

	var rows []enrollment.RosterEntry
	if err := r.db.SelectContext(ctx, &rows, query, courseID, true, true); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Reader) CourseGroups(ctx context.Context, courseID uint) ([]enrollment.GroupInfo, error) {
	query := r.db.Rebind(groupInfoSelect + `
		 WHERE g.course_id = ? AND g.is_active = ?
		 ORDER BY g.group_number`)

	var rows []enrollment.GroupInfo
	if err := r.db.SelectContext(ctx, &rows, query, true, courseID, true); err != nil {
		return nil, err
	}
	return rows, nil
}

const listingColumns = `
		SELECT e.id, e.student_id, u.username, u.first_name, u.last_name,
		       e.course_id, c.name AS course_name, e.group_id, g.group_number,
		       e.score, e.created_at`

const listingFrom = `
	  FROM enrollments e
	  JOIN users u ON u.id = e.student_id
	  JOIN courses c ON c.id = e.course_id
	  LEFT JOIN course_groups g ON g.id = e.group_id
	 WHERE e.is_active = ?`

// searchFilter matches names case-insensitively.
func searchFilter(search string) (string, []interface{}) {
	if search == "" {
		return "", nil
	}
	pattern := "%" + strings.ToLower(search) + "%"
	return ` AND (LOWER(u.first_name) LIKE ? OR LOWER(u.last_name) LIKE ?
	          OR LOWER(u.username) LIKE ? OR LOWER(c.name) LIKE ?)`,
		[]interface{}{pattern, pattern, pattern, pattern}
}

func (r *Reader) CountEnrollments(ctx context.Context, search string) (int64, error) {
	filter, args := searchFilter(search)
	query := r.db.Rebind(`SELECT COUNT(*)` + listingFrom + filter)

	var n int64
	if err := r.db.GetContext(ctx, &n, query, append([]interface{}{true}, args...)...); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Reader) ListEnrollments(ctx context.Context, search string, limit, offset int) ([]enrollment.EnrollmentListItem, error) {
	filter, args := searchFilter(search)
	query := r.db.Rebind(listingColumns + listingFrom + filter + `
		 ORDER BY e.created_at DESC, e.id DESC
		 LIMIT ? OFFSET ?`)

	params := append([]interface{}{true}, args...)
	params = append(params, limit, offset)

	var rows []enrollment.EnrollmentListItem
	if err := r.db.SelectContext(ctx, &rows, query, params...); err != nil {
		return nil, err
	}
	return rows, nil
}

// CourseEnrollments lists the active enrollments of a course, legacy rows
// included.
func (r *Reader) CourseEnrollments(ctx context.Context, courseID uint) ([]enrollment.EnrollmentListItem, error) {
	query := r.db.Rebind(listingColumns + listingFrom + `
		   AND e.course_id = ?
		 ORDER BY u.username, e.id`)

	var rows []enrollment.EnrollmentListItem
	if err := r.db.SelectContext(ctx, &rows, query, true, courseID); err != nil {
		return nil, err
	}
	return rows, nil
}
