package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/FBMASIH/student-grades-backend/models"
)

func rosterKey(groupID uint) string {
	return fmt.Sprintf("roster:group:%d", groupID)
}

// CounterRepairer rewrites a group's cached counter under the group lock.
// *Engine implements it.
type CounterRepairer interface {
	ResyncGroup(ctx context.Context, groupID uint) (ResyncReport, error)
}

// Query is the read side of enrollment. It never locks; counts it reports
// come from live rows. A roster read that finds the stored counter out of
// step hands the group to the repairer.
type Query struct {
	reader Reader
	repair CounterRepairer
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewQuery creates a Query. repair and cache may be nil.
func NewQuery(reader Reader, repair CounterRepairer, cache Cache, ttl time.Duration, logger *slog.Logger) *Query {
	if logger == nil {
		logger = slog.Default()
	}
	return &Query{reader: reader, repair: repair, cache: cache, ttl: ttl, logger: logger}
}

// StudentEnrollments lists the active enrollments of a student with their
// course and group context.
func (q *Query) StudentEnrollments(ctx context.Context, studentID uint) ([]StudentEnrollment, error) {
	rows, err := q.reader.StudentEnrollments(ctx, studentID)
	if err != nil {
		return nil, unexpected("list student enrollments", err)
	}
	if rows == nil {
		rows = []StudentEnrollment{}
	}
	return rows, nil
}

// GroupRoster returns the enrolled students of a group followed by the
// legacy candidates of the same course.
func (q *Query) GroupRoster(ctx context.Context, groupID uint) (*GroupRoster, error) {
	key := rosterKey(groupID)
	if q.cache != nil {
		var cached GroupRoster
		hit, err := q.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			q.logger.Warn("roster cache read failed", "group_id", groupID, "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	roster, err := q.loadRoster(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if q.cache != nil {
		if err := q.cache.SetJSON(ctx, key, roster, q.ttl); err != nil {
			q.logger.Warn("roster cache write failed", "group_id", groupID, "error", err)
		}
	}
	return roster, nil
}

func (q *Query) loadRoster(ctx context.Context, groupID uint) (*GroupRoster, error) {
	info, err := q.reader.GroupInfo(ctx, groupID)
	if err != nil {
		return nil, unexpected("load group", err)
	}
	info.fillRemaining()
	q.repairCounter(ctx, info)

	members, err := q.reader.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, unexpected("load group members", err)
	}
	candidates, err := q.reader.LegacyCandidates(ctx, info.CourseID)
	if err != nil {
		return nil, unexpected("load legacy candidates", err)
	}

	room := info.RemainingSeats == nil || *info.RemainingSeats > 0
	students := make([]RosterEntry, 0, len(members)+len(candidates))
	for _, m := range members {
		m.IsEnrolled = true
		students = append(students, m)
	}
	for _, c := range candidates {
		c.CanEnroll = room
		students = append(students, c)
	}
	sort.SliceStable(students, func(i, j int) bool {
		if students[i].IsEnrolled != students[j].IsEnrolled {
			return students[i].IsEnrolled
		}
		return students[i].Username < students[j].Username
	})

	return &GroupRoster{Group: *info, Students: students}, nil
}

// repairCounter resyncs a drifted counter. The roster itself is already
// built from live rows, so a failed repair is only logged.
func (q *Query) repairCounter(ctx context.Context, info *GroupInfo) {
	if q.repair == nil || info.StoredCount == info.ActiveCount {
		return
	}
	if _, err := q.repair.ResyncGroup(ctx, info.ID); err != nil {
		q.logger.Warn("enrollment counter repair failed", "group_id", info.ID, "error", err)
		return
	}
	info.StoredCount = info.ActiveCount
}

// CourseGroups lists the active groups of a course with their remaining
// seats.
func (q *Query) CourseGroups(ctx context.Context, courseID uint) ([]GroupInfo, error) {
	groups, err := q.reader.CourseGroups(ctx, courseID)
	if err != nil {
		return nil, unexpected("list course groups", err)
	}
	if groups == nil {
		groups = []GroupInfo{}
	}
	for i := range groups {
		groups[i].fillRemaining()
	}
	return groups, nil
}

// CourseEnrollments lists the active enrollments of a course, both those
// placed in a group and legacy course-only ones.
func (q *Query) CourseEnrollments(ctx context.Context, courseID uint) ([]EnrollmentListItem, error) {
	rows, err := q.reader.CourseEnrollments(ctx, courseID)
	if err != nil {
		return nil, unexpected("list course enrollments", err)
	}
	if rows == nil {
		rows = []EnrollmentListItem{}
	}
	return rows, nil
}

// ListEnrollments returns one page of active enrollments, optionally
// filtered by student or course name.
func (q *Query) ListEnrollments(ctx context.Context, req PageRequest) (*models.PaginatedResponse[EnrollmentListItem], error) {
	req = req.normalize()

	total, err := q.reader.CountEnrollments(ctx, req.Search)
	if err != nil {
		return nil, unexpected("count enrollments", err)
	}
	meta := models.NewMeta(total, req.Page, req.Limit)
	if total > 0 && req.Page > meta.TotalPages {
		return nil, ErrNotFound("page %d not found", req.Page)
	}

	items := []EnrollmentListItem{}
	if total > 0 {
		items, err = q.reader.ListEnrollments(ctx, req.Search, req.Limit, req.offset())
		if err != nil {
			return nil, unexpected("list enrollments", err)
		}
	}

	return &models.PaginatedResponse[EnrollmentListItem]{Meta: meta, Items: items}, nil
}
