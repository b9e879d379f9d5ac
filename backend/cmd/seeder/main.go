package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"student_achievements/backend/internal/auth"
	"student_achievements/backend/internal/importer"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

const monthLayout = "2006-01"

// Common Credentials
const (
	CommonPassword = "password123"
	AdminEmail     = "admin@college.edu"
)

// StudentSeed describes one seeded student account
type StudentSeed struct {
	Name       string
	Email      string
	RollNumber string
	Batch      string
	Start, End time.Time
	CGPA       float64
}

// AchievementSeed describes one seeded achievement, owned by a roll number
type AchievementSeed struct {
	RollNumber  string
	Category    shared.Category
	Title       string
	Company     string
	From        time.Time
	To          *time.Time
	Attachment  string
	ContentType string
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("service", "seeder").Logger()
	logger.Info().Msg("starting database seeder")

	if err := shared.LoadEnv(".env"); err != nil {
		logger.Info().Msg(".env file not found, using system environment variables")
	}

	cfg, err := shared.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Storage.Driver != "mongo" {
		logger.Fatal().Str("driver", cfg.Storage.Driver).Msg("seeder needs the mongo storage driver")
	}

	client, mdb, err := shared.ConnectMongoDB(&cfg.MongoDB, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer shared.DisconnectMongoDB(client)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Drop everything for a clean start
	if err := mdb.Drop(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to drop database")
	}
	if err := store.EnsureIndexes(ctx, mdb); err != nil {
		logger.Fatal().Err(err).Msg("failed to create indexes")
	}
	logger.Info().Msg("database cleared")

	db := store.NewMongoStore(mdb)
	passwords := auth.Passwords{Cost: cfg.Security.BCryptCost}
	hash, err := passwords.Hash(CommonPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to hash seed password")
	}

	// --- 1. Admin ---
	seedAdmin(ctx, db, hash, logger)

	// --- 2. Students ---
	defaultCGPA := shared.GetFloatEnv("SEED_DEFAULT_CGPA", 7.5)
	students := []StudentSeed{
		{"Asha Rao", "asha@college.edu", "21CS001", "N", month(2021, 7), month(2025, 6), 8.6},
		{"Bala Murugan", "bala@college.edu", "21CS002", "P", month(2021, 7), month(2025, 6), defaultCGPA},
		{"Chitra Devi", "chitra@college.edu", "22CS010", "N", month(2022, 7), month(2026, 6), 9.1},
	}
	ids := seedStudents(ctx, db, hash, students, logger)

	// --- 3. Achievements and derived flags ---
	achievements := []AchievementSeed{
		{"21CS001", shared.CategoryInternships, "Backend Intern", "Kappa Systems", month(2023, 5), ptr(month(2023, 7)), "offer.pdf", "application/pdf"},
		{"21CS001", shared.CategoryPlacement, "Software Engineer", "Kappa Systems", month(2024, 12), nil, "", ""},
		{"21CS001", shared.CategoryCourse, "Distributed Systems MOOC", "", month(2022, 1), ptr(month(2022, 3)), "course.png", "image/png"},
		{"21CS002", shared.CategoryCompetitive, "GATE 2024", "", month(2024, 2), ptr(month(2024, 2)), "", ""},
		{"21CS002", shared.CategoryParticipation, "Smart India Hackathon", "", month(2023, 9), ptr(month(2023, 9)), "sih.pdf", "application/pdf"},
		{"22CS010", shared.CategoryHigherEducation, "MS Admit", "", month(2026, 1), nil, "", ""},
		{"22CS010", shared.CategoryExtraCurricular, "College Choir", "", month(2022, 8), nil, "", ""},
	}
	seedAchievements(ctx, db, ids, achievements, logger)

	logger.Info().
		Str("admin", AdminEmail).
		Str("password", CommonPassword).
		Int("students", len(students)).
		Int("achievements", len(achievements)).
		Msg("seeding completed")
}

// ============================================================================
// SEEDING FUNCTIONS
// ============================================================================

func seedAdmin(ctx context.Context, db *store.Store, hash string, logger zerolog.Logger) {
	admin := &shared.Admin{
		ID:           uuid.NewString(),
		Name:         "Super Admin",
		Email:        AdminEmail,
		EmpNo:        "EMP001",
		PasswordHash: hash,
		Role:         shared.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.Admins.Insert(ctx, admin); err != nil {
		logger.Fatal().Err(err).Str("email", admin.Email).Msg("error seeding admin")
	}
	logger.Info().Str("email", admin.Email).Msg("seeded admin")
}

func seedStudents(ctx context.Context, db *store.Store, hash string, seeds []StudentSeed, logger zerolog.Logger) map[string]string {
	ids := make(map[string]string, len(seeds))
	for _, s := range seeds {
		cgpa := s.CGPA
		student := &shared.Student{
			ID:           uuid.NewString(),
			Name:         s.Name,
			Email:        s.Email,
			PasswordHash: hash,
			StartOfStudy: ptr(s.Start),
			EndOfStudy:   ptr(s.End),
			YearOfStudy:  importer.YearOfStudyLabel(s.Start.Format(monthLayout), s.End.Format(monthLayout)),
			Batch:        s.Batch,
			CGPA:         &cgpa,
			RollNumber:   s.RollNumber,
			CreatedAt:    time.Now().UTC(),
		}
		if err := db.Students.Insert(ctx, student); err != nil {
			logger.Fatal().Err(err).Str("rollNumber", s.RollNumber).Msg("error seeding student")
		}
		ids[s.RollNumber] = student.ID
		logger.Info().Str("rollNumber", s.RollNumber).Str("email", s.Email).Msg("seeded student")
	}
	return ids
}

func seedAchievements(ctx context.Context, db *store.Store, ids map[string]string, seeds []AchievementSeed, logger zerolog.Logger) {
	now := time.Now().UTC()
	for _, s := range seeds {
		studentID := ids[s.RollNumber]
		a := &shared.Achievement{
			ID:               uuid.NewString(),
			StudentID:        studentID,
			Category:         s.Category,
			Title:            s.Title,
			Description:      s.Title + " (seeded record)",
			ShortDescription: s.Title,
			CompanyName:      s.Company,
			FromDate:         s.From,
			ToDate:           s.To,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if s.Attachment != "" {
			data := []byte("%PDF-1.4\n%%EOF\n")
			a.FileType = shared.FileTypePDF
			if s.ContentType != "application/pdf" {
				data = []byte("seed image")
				a.FileType = shared.FileTypeImage
			}
			a.File = &shared.Attachment{
				Filename:    s.Attachment,
				ContentType: s.ContentType,
				Size:        int64(len(data)),
				Data:        data,
			}
		}

		if err := db.Achievements.Insert(ctx, a); err != nil {
			logger.Fatal().Err(err).Str("title", s.Title).Msg("error seeding achievement")
		}
		if flag, ok := s.Category.Flag(); ok {
			if err := db.Students.SetFlag(ctx, studentID, flag); err != nil {
				logger.Fatal().Err(err).Str("rollNumber", s.RollNumber).Msg("error setting student flag")
			}
		}
		logger.Info().Str("rollNumber", s.RollNumber).Str("category", string(s.Category)).Str("title", s.Title).Msg("seeded achievement")
	}
}
