package gateway

import (
	"github.com/rs/zerolog"

	"student_achievements/backend/internal/achievement"
	"student_achievements/backend/internal/admin"
	"student_achievements/backend/internal/auth"
	"student_achievements/backend/internal/blob"
	"student_achievements/backend/internal/importer"
	"student_achievements/backend/internal/mailer"
	"student_achievements/backend/internal/report"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
	"student_achievements/backend/internal/student"
)

// Services holds every domain service behind the HTTP routes. It is built
// once in main and injected into the handlers.
type Services struct {
	Auth         *auth.Service
	Students     *student.Service
	Achievements *achievement.Service
	Admin        *admin.Service

	Config *shared.AppConfig
	Logger zerolog.Logger
}

// NewServices wires the domain services over one record store. objects may
// be nil to keep attachment bytes inline; photos is always required.
func NewServices(cfg *shared.AppConfig, db *store.Store, objects, photos blob.Store, mail mailer.Sender, logger zerolog.Logger) *Services {
	authService := auth.NewService(db, mail, cfg.Security, logger.With().Str("component", "auth").Logger())
	files := blob.NewAttachments(objects, db.Achievements, logger.With().Str("component", "blob").Logger())
	engine := report.NewEngine(db.Students, db.Achievements, cfg.Report.Concurrency, logger.With().Str("component", "report").Logger())
	reconciler := importer.NewReconciler(db.Students, authService.Passwords(), cfg.Security.ImportPasswordTag,
		logger.With().Str("component", "importer").Logger())

	return &Services{
		Auth:         authService,
		Students:     student.NewService(db.Students, photos, cfg.Uploads.MaxPhotoBytes, logger.With().Str("component", "student").Logger()),
		Achievements: achievement.NewService(db, files, cfg.Uploads.MaxAttachmentBytes, logger.With().Str("component", "achievement").Logger()),
		Admin:        admin.NewService(engine, files, reconciler, logger.With().Str("component", "admin").Logger()),
		Config:       cfg,
		Logger:       logger,
	}
}

// Close waits for background work such as queued reset mails
func (s *Services) Close() {
	s.Auth.Wait()
}
