package handlers

import (
	"log/slog"
	"net/http"

	"github.com/FBMASIH/student-grades-backend/enrollment"
)

// CourseHandler serves course-only (legacy) enrollment.
type CourseHandler struct {
	engine *enrollment.Engine
	query  *enrollment.Query
	logger *slog.Logger
}

func NewCourseHandler(engine *enrollment.Engine, query *enrollment.Query, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{engine: engine, query: query, logger: logger}
}

// EnrollStudent handles POST /api/courses/{courseId}/students.
func (h *CourseHandler) EnrollStudent(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(r, "courseId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}
	actor, ok := actorID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req enrollStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StudentID == 0 {
		writeError(w, http.StatusBadRequest, "studentId is required")
		return
	}

	row, err := h.engine.EnrollCourse(r.Context(), req.StudentID, courseID, actor)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// EnrollByUsernames handles POST /api/courses/{courseId}/students/usernames.
func (h *CourseHandler) EnrollByUsernames(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(r, "courseId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}
	actor, ok := actorID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req usernamesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.engine.EnrollCourseMany(r.Context(), courseID, req.Usernames, actor)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetCourseEnrollments handles GET /api/courses/{courseId}/enrollments.
func (h *CourseHandler) GetCourseEnrollments(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(r, "courseId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	rows, err := h.query.CourseEnrollments(r.Context(), courseID)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
