package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/FBMASIH/student-grades-backend/enrollment"
	"github.com/FBMASIH/student-grades-backend/middleware"
	"github.com/FBMASIH/student-grades-backend/models"
)

// Deps are the services the HTTP layer needs.
type Deps struct {
	Engine *enrollment.Engine
	Query  *enrollment.Query
	Auth   *middleware.AuthMiddleware
	Logger *slog.Logger
}

// NewRouter builds the full HTTP routing table.
func NewRouter(d Deps) *mux.Router {
	groups := NewGroupHandler(d.Engine, d.Query, d.Logger)
	students := NewStudentHandler(d.Engine, d.Query, d.Logger)
	courses := NewCourseHandler(d.Engine, d.Query, d.Logger)

	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(d.Logger))
	r.Use(middleware.CORS)

	// Публичные маршруты
	r.HandleFunc("/", rootHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(d.Auth.AuthMiddleware)

	// Чтение доступно всем авторизованным
	api.HandleFunc("/groups/{groupId:[0-9]+}/students", groups.GetGroupStudents).Methods(http.MethodGet)
	api.HandleFunc("/courses/{courseId:[0-9]+}/groups", groups.GetCourseGroups).Methods(http.MethodGet)
	api.HandleFunc("/students/{studentId:[0-9]+}/enrollments", students.GetStudentEnrollments).Methods(http.MethodGet)

	staff := api.NewRoute().Subrouter()
	staff.Use(middleware.RequireRole(models.RoleAdmin, models.RoleTeacher))
	staff.HandleFunc("/groups/{groupId:[0-9]+}/students", groups.EnrollStudent).Methods(http.MethodPost)
	staff.HandleFunc("/groups/{groupId:[0-9]+}/students/bulk", groups.EnrollStudents).Methods(http.MethodPost)
	staff.HandleFunc("/groups/{groupId:[0-9]+}/students/usernames", groups.EnrollByUsernames).Methods(http.MethodPost)
	staff.HandleFunc("/groups/{groupId:[0-9]+}/students", groups.UnenrollStudents).Methods(http.MethodDelete)
	staff.HandleFunc("/courses/{courseId:[0-9]+}/students", courses.EnrollStudent).Methods(http.MethodPost)
	staff.HandleFunc("/courses/{courseId:[0-9]+}/students/usernames", courses.EnrollByUsernames).Methods(http.MethodPost)
	staff.HandleFunc("/courses/{courseId:[0-9]+}/enrollments", courses.GetCourseEnrollments).Methods(http.MethodGet)
	staff.HandleFunc("/enrollments", students.GetEnrollments).Methods(http.MethodGet)
	staff.HandleFunc("/enrollments/{id:[0-9]+}", students.Unenroll).Methods(http.MethodDelete)

	// Удаление группы - ТОЛЬКО для админа
	admin := api.NewRoute().Subrouter()
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/groups/{groupId:[0-9]+}", groups.DeleteGroup).Methods(http.MethodDelete)

	// CORS preflight
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "student-grades-backend",
		"endpoints": []string{
			"GET /api/groups/{groupId}/students",
			"POST /api/groups/{groupId}/students",
			"POST /api/groups/{groupId}/students/bulk",
			"POST /api/groups/{groupId}/students/usernames",
			"DELETE /api/groups/{groupId}/students",
			"DELETE /api/groups/{groupId}",
			"GET /api/courses/{courseId}/groups",
			"POST /api/courses/{courseId}/students",
			"POST /api/courses/{courseId}/students/usernames",
			"GET /api/courses/{courseId}/enrollments",
			"GET /api/students/{studentId}/enrollments",
			"GET /api/enrollments",
			"DELETE /api/enrollments/{id}",
		},
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "student-grades-backend",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
