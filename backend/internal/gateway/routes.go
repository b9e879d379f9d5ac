package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"

	"student_achievements/backend/internal/gateway/handlers"
	"student_achievements/backend/internal/gateway/util"
	"student_achievements/backend/internal/shared"
)

// requestTimeout bounds every route except the export downloads
const requestTimeout = 60 * time.Second

// SetupRoutes configures the Chi router, middleware, and route handlers.
func SetupRoutes(services *Services) *chi.Mux {
	r := chi.NewRouter()
	cfg := services.Config

	// 1. Global Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(services.Logger))
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)

	// CORS Configuration (browser dashboard)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// 2. Initialize Handlers
	authHandler := &handlers.AuthHandler{Auth: services.Auth}
	studentHandler := &handlers.StudentHandler{
		Students:      services.Students,
		MaxPhotoBytes: cfg.Uploads.MaxPhotoBytes,
	}
	achievementHandler := &handlers.AchievementHandler{
		Achievements: services.Achievements,
		MaxBytes:     cfg.Uploads.MaxAttachmentBytes,
	}
	adminHandler := &handlers.AdminHandler{
		Admin:          services.Admin,
		MaxImportBytes: cfg.Uploads.MaxImportBytes,
	}

	requireAuth := AuthMiddleware(services.Auth)
	adminOnly := RequireRole(shared.RoleAdmin)
	studentOnly := RequireRole(shared.RoleStudent)
	anyRole := RequireRole(shared.RoleStudent, shared.RoleAdmin)

	// 3. Define Routes
	r.Route("/api", func(r chi.Router) {

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSON(w, r, http.StatusOK, map[string]string{"status": "ok", "service": cfg.ServiceName})
		})

		// --- Export Downloads (no request timeout) ---
		r.Group(func(r chi.Router) {
			r.Use(requireAuth, adminOnly)

			r.Get("/students/report/excel", adminHandler.ExportSpreadsheet)
			r.Get("/students/documents/zip", adminHandler.ExportArchive)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			// --- Public Routes ---
			r.Post("/register/student", authHandler.RegisterStudent)
			r.Post("/register/admin", authHandler.RegisterAdmin)
			r.Post("/login/student", authHandler.LoginStudent)
			r.Post("/login/admin", authHandler.LoginAdmin)

			r.Post("/student/forgot-password", authHandler.ForgotPassword(shared.RoleStudent))
			r.Post("/student/verify-otp", authHandler.VerifyOTP(shared.RoleStudent))
			r.Post("/student/reset-password", authHandler.ResetPassword(shared.RoleStudent))
			r.Post("/admin/forgot-password", authHandler.ForgotPassword(shared.RoleAdmin))
			r.Post("/admin/verify-otp", authHandler.VerifyOTP(shared.RoleAdmin))
			r.Post("/admin/reset-password", authHandler.ResetPassword(shared.RoleAdmin))

			// --- Protected Routes (Require Valid Token) ---
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)

				// Admin
				r.Group(func(r chi.Router) {
					r.Use(adminOnly)

					r.Get("/students", adminHandler.ListStudents)
					r.Get("/students/{id}", adminHandler.GetStudent)
					r.Get("/students/{id}/report", adminHandler.StudentReport)
					r.Post("/students/{id}/selective-report", adminHandler.SelectiveReport)
					r.Put("/students/{id}/cgpa", studentHandler.UpdateStudentCGPA)
					r.Post("/register/students-bulk", adminHandler.BulkRegister)
					r.Post("/admin/change-password", authHandler.ChangePassword)
				})

				// Student
				r.Group(func(r chi.Router) {
					r.Use(studentOnly)

					r.Get("/student/profile", studentHandler.GetProfile)
					r.Put("/student/cgpa", studentHandler.UpdateOwnCGPA)
					r.Put("/student/change-password", authHandler.ChangePassword)
					r.Post("/student/profile-photo", studentHandler.UploadProfilePhoto)
					r.Post("/achievements", achievementHandler.Upload)
					r.Put("/achievements/{id}", achievementHandler.Edit)
				})

				// Owner or admin, checked per record
				r.Group(func(r chi.Router) {
					r.Use(anyRole)

					r.Delete("/achievements/{id}", achievementHandler.Delete)
					r.Get("/achievements/{studentId}/{category}", achievementHandler.ListByCategory)
					r.Get("/files/{id}", achievementHandler.GetFile)
					r.Get("/students/{id}/profile-photo", studentHandler.GetProfilePhoto)
				})
			})
		})
	})

	return r
}
