package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/presensia/presensia/internal/web/handlers"
	"github.com/presensia/presensia/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	authHandler := handlers.NewAuthHandler(s.deps.Gate, s.deps.Matcher, s.deps.Issuer, s.deps.Attendance, s.deps.Settings)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Gate, s.deps.Matcher, s.deps.Ledger, s.deps.Attendance)
	enrollHandler := handlers.NewEnrollHandler(s.deps.Templates, s.deps.Employees, s.deps.Settings, s.deps.Blobs)
	employeeHandler := handlers.NewEmployeeHandler(s.deps.Employees, s.deps.Templates)
	uploadHandler := handlers.NewUploadHandler(s.deps.Blobs, s.deps.Attendance)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Face login is the entry point, everything under it is public
		r.Post("/mobile/auth/face-login", authHandler.FaceLogin)
		r.Post("/mobile/auth/refresh", authHandler.Refresh)
		r.Post("/mobile/auth/logout", authHandler.Logout)

		// Signed blob endpoints authenticate via the URL signature
		r.Put("/blobs/*", uploadHandler.Upload)
		r.Get("/blobs/*", uploadHandler.Download)

		// Everything else requires a bearer access token
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.deps.TokenConfig))

			r.Post("/mobile/attendance/check-in", attendanceHandler.CheckIn)
			r.Post("/mobile/attendance/check-out", attendanceHandler.CheckOut)
			r.Get("/mobile/attendance/history", attendanceHandler.History)
			r.Get("/mobile/attendance/status", attendanceHandler.Status)
			r.Get("/mobile/attendance/{id}", attendanceHandler.Detail)

			r.Get("/mobile/me", employeeHandler.Me)
			r.Get("/mobile/employees", employeeHandler.List)
			r.Post("/mobile/face/enroll", enrollHandler.Enroll)
			r.Post("/mobile/upload-url", uploadHandler.CreateUploadURL)

			r.Get("/attendance/{id}/proof-url", uploadHandler.ProofURL)
		})
	})
}
