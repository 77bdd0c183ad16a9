package handlers

import (
	"log/slog"
	"net/http"

	"github.com/FBMASIH/student-grades-backend/enrollment"
)

type GroupHandler struct {
	engine *enrollment.Engine
	query  *enrollment.Query
	logger *slog.Logger
}

func NewGroupHandler(engine *enrollment.Engine, query *enrollment.Query, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{engine: engine, query: query, logger: logger}
}

type enrollStudentRequest struct {
	StudentID uint `json:"studentId"`
}

type studentIDsRequest struct {
	StudentIDs []uint `json:"studentIds"`
}

type usernamesRequest struct {
	Usernames []string `json:"usernames"`
}

// EnrollStudent handles POST /api/groups/{groupId}/students.
func (h *GroupHandler) EnrollStudent(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "groupId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid group ID")
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

	row, err := h.engine.EnrollOne(r.Context(), req.StudentID, groupID, actor)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// EnrollStudents handles POST /api/groups/{groupId}/students/bulk.
func (h *GroupHandler) EnrollStudents(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "groupId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}
	actor, ok := actorID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req studentIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.engine.EnrollMany(r.Context(), groupID, req.StudentIDs, actor)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// EnrollByUsernames handles POST /api/groups/{groupId}/students/usernames.
func (h *GroupHandler) EnrollByUsernames(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "groupId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid group ID")
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

	result, err := h.engine.EnrollManyByUsername(r.Context(), groupID, req.Usernames, actor)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UnenrollStudents handles DELETE /api/groups/{groupId}/students.
func (h *GroupHandler) UnenrollStudents(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "groupId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}

	var req studentIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.engine.UnenrollMany(r.Context(), groupID, req.StudentIDs)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteGroup handles DELETE /api/groups/{groupId}.
func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "groupId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}

	deactivated, err := h.engine.RemoveGroup(r.Context(), groupID)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group_id":    groupID,
		"deactivated": deactivated,
	})
}

// GetGroupStudents handles GET /api/groups/{groupId}/students.
func (h *GroupHandler) GetGroupStudents(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "groupId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}

	roster, err := h.query.GroupRoster(r.Context(), groupID)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// GetCourseGroups handles GET /api/courses/{courseId}/groups.
func (h *GroupHandler) GetCourseGroups(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(r, "courseId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	groups, err := h.query.CourseGroups(r.Context(), courseID)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}
