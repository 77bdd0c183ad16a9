package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/FBMASIH/student-grades-backend/enrollment"
	"github.com/FBMASIH/student-grades-backend/middleware"
	"github.com/FBMASIH/student-grades-backend/models"
)

type StudentHandler struct {
	engine *enrollment.Engine
	query  *enrollment.Query
	logger *slog.Logger
}

func NewStudentHandler(engine *enrollment.Engine, query *enrollment.Query, logger *slog.Logger) *StudentHandler {
	return &StudentHandler{engine: engine, query: query, logger: logger}
}

// GetStudentEnrollments handles GET /api/students/{studentId}/enrollments.
// Students may only read their own enrollments.
func (h *StudentHandler) GetStudentEnrollments(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(r, "studentId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid student ID")
		return
	}

	claims := middleware.GetUserClaims(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if claims.Role == models.RoleStudent && claims.UserID != studentID {
		writeError(w, http.StatusForbidden, "Insufficient permissions")
		return
	}

	rows, err := h.query.StudentEnrollments(r.Context(), studentID)
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetEnrollments handles GET /api/enrollments?page=&limit=&search=.
func (h *StudentHandler) GetEnrollments(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	resp, err := h.query.ListEnrollments(r.Context(), enrollment.PageRequest{
		Page:   page,
		Limit:  limit,
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Unenroll handles DELETE /api/enrollments/{id}.
func (h *StudentHandler) Unenroll(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid enrollment ID")
		return
	}

	if err := h.engine.UnenrollOne(r.Context(), id); err != nil {
		writeEnrollmentError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
