package enrollment

import (
	"strings"
	"time"
)

// StudentRef identifies a student that was processed successfully.
type StudentRef struct {
	ID       uint   `json:"id"`
	Username string `json:"username,omitempty"`
}

// ItemError is one rejected entry of a batch operation.
type ItemError struct {
	Identifier string    `json:"identifier"`
	Kind       ErrorKind `json:"kind"`
	Reason     string    `json:"reason"`
}

// BatchResult is returned by every bulk operation. One bad entry never
// aborts the rest of the batch.
type BatchResult struct {
	GroupID           uint         `json:"group_id,omitempty"`
	CourseID          uint         `json:"course_id,omitempty"`
	Successful        []StudentRef `json:"successful"`
	Errors            []ItemError  `json:"errors"`
	CurrentEnrollment int          `json:"current_enrollment"`
}

func newBatchResult(groupID uint) *BatchResult {
	return &BatchResult{
		GroupID:    groupID,
		Successful: []StudentRef{},
		Errors:     []ItemError{},
	}
}

const genericItemFailure = "enrollment failed"

func (r *BatchResult) fail(identifier string, err error) {
	kind := Kind(err)
	reason := err.Error()
	if kind == KindUnexpected {
		reason = genericItemFailure
	}
	r.Errors = append(r.Errors, ItemError{Identifier: identifier, Kind: kind, Reason: reason})
}

// StudentEnrollment is an active enrollment seen from the student's side.
type StudentEnrollment struct {
	ID          uint      `json:"id" db:"id"`
	CourseID    uint      `json:"course_id" db:"course_id"`
	CourseName  string    `json:"course_name" db:"course_name"`
	CourseCode  string    `json:"course_code" db:"course_code"`
	GroupID     *uint     `json:"group_id" db:"group_id"`
	GroupNumber *int      `json:"group_number" db:"group_number"`
	Score       *float64  `json:"score" db:"score"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// GroupInfo summarizes a group. ActiveCount is computed from rows, not
// taken from the cached counter; StoredCount is the counter as persisted.
type GroupInfo struct {
	ID             uint   `json:"id" db:"id"`
	GroupNumber    int    `json:"group_number" db:"group_number"`
	CourseID       uint   `json:"course_id" db:"course_id"`
	CourseName     string `json:"course_name" db:"course_name"`
	ProfessorName  string `json:"professor_name" db:"professor_name"`
	Capacity       *int   `json:"capacity" db:"capacity"`
	IsActive       bool   `json:"is_active" db:"is_active"`
	ActiveCount    int    `json:"current_enrollment" db:"active_count"`
	StoredCount    int    `json:"-" db:"current_enrollment"`
	RemainingSeats *int   `json:"remaining_seats" db:"-"`
}

func (g *GroupInfo) fillRemaining() {
	if g.Capacity == nil || *g.Capacity <= 0 {
		g.RemainingSeats = nil
		return
	}
	left := *g.Capacity - g.ActiveCount
	if left < 0 {
		left = 0
	}
	g.RemainingSeats = &left
}

// RosterEntry is one student on a group roster.
type RosterEntry struct {
	ID           uint     `json:"id" db:"id"`
	Username     string   `json:"username" db:"username"`
	FirstName    string   `json:"first_name" db:"first_name"`
	LastName     string   `json:"last_name" db:"last_name"`
	EnrollmentID uint     `json:"enrollment_id" db:"enrollment_id"`
	Score        *float64 `json:"score" db:"score"`
	IsEnrolled   bool     `json:"is_enrolled" db:"-"`
	CanEnroll    bool     `json:"can_enroll" db:"-"`
}

// GroupRoster lists the enrolled students of a group followed by the
// students holding a legacy enrollment in the same course, who can be
// upgraded into the group.
type GroupRoster struct {
	Group    GroupInfo     `json:"group"`
	Students []RosterEntry `json:"students"`
}

// EnrollmentListItem is one row of the global listing.
type EnrollmentListItem struct {
	ID          uint      `json:"id" db:"id"`
	StudentID   uint      `json:"student_id" db:"student_id"`
	Username    string    `json:"username" db:"username"`
	FirstName   string    `json:"first_name" db:"first_name"`
	LastName    string    `json:"last_name" db:"last_name"`
	CourseID    uint      `json:"course_id" db:"course_id"`
	CourseName  string    `json:"course_name" db:"course_name"`
	GroupID     *uint     `json:"group_id" db:"group_id"`
	GroupNumber *int      `json:"group_number" db:"group_number"`
	Score       *float64  `json:"score" db:"score"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// PageRequest holds pagination and search parameters for listings.
type PageRequest struct {
	Page   int
	Limit  int
	Search string
}

func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

func (p PageRequest) offset() int {
	return (p.Page - 1) * p.Limit
}

// SanitizeUsernames trims entries, drops blanks and removes duplicates
// while keeping the first-seen order.
func SanitizeUsernames(usernames []string) []string {
	seen := make(map[string]struct{}, len(usernames))
	out := make([]string, 0, len(usernames))
	for _, u := range usernames {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
