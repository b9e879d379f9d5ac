package student

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student_achievements/backend/internal/blob"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemoryStore()
	expiry := time.Now().Add(time.Minute)
	require.NoError(t, db.Students.Insert(ctx, &shared.Student{
		ID: "s1", Name: "Asha", Email: "asha@college.edu", RollNumber: "21CS001",
		PasswordHash: "$2a$hash", OTP: "123456", OTPExpiry: &expiry,
	}))
	svc := NewService(db.Students, blob.NewMemoryStore(), 1<<10, zerolog.Nop())

	t.Run("Profile Strips Credentials", func(t *testing.T) {
		s, err := svc.Profile(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "Asha", s.Name)
		assert.Empty(t, s.PasswordHash)
		assert.Empty(t, s.OTP)
		assert.Nil(t, s.OTPExpiry)
	})

	t.Run("Profile Not Found", func(t *testing.T) {
		_, err := svc.Profile(ctx, "missing")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("Update CGPA", func(t *testing.T) {
		v := 9.1
		got, err := svc.UpdateCGPA(ctx, "s1", CGPAUpdate{CGPA: &v})
		require.NoError(t, err)
		assert.Equal(t, 9.1, got)

		zero := 0.0
		got, err = svc.UpdateCGPA(ctx, "s1", CGPAUpdate{CGPA: &zero})
		require.NoError(t, err)
		assert.Equal(t, 0.0, got)
	})

	t.Run("Out Of Range Or Missing", func(t *testing.T) {
		for _, v := range []float64{-0.1, 10.01} {
			v := v
			_, err := svc.UpdateCGPA(ctx, "s1", CGPAUpdate{CGPA: &v})
			assert.True(t, errors.Is(err, shared.ErrValidation), "cgpa %v", v)
		}
		_, err := svc.UpdateCGPA(ctx, "s1", CGPAUpdate{})
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})
}

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)

func TestProfilePhoto(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemoryStore()
	photos := blob.NewMemoryStore()
	require.NoError(t, db.Students.Insert(ctx, &shared.Student{ID: "s1", Email: "asha@college.edu", RollNumber: "21CS001"}))
	require.NoError(t, db.Students.Insert(ctx, &shared.Student{ID: "s2", Email: "bala@college.edu", RollNumber: "21CS002"}))
	svc := NewService(db.Students, photos, 1<<10, zerolog.Nop())

	self := shared.Identity{ID: "s1", Role: shared.RoleStudent}

	t.Run("No Photo Yet", func(t *testing.T) {
		_, _, err := svc.OpenProfilePhoto(ctx, self, "s1")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("Upload And Read Back", func(t *testing.T) {
		name, err := svc.SetProfilePhoto(ctx, "s1", &Photo{Filename: "me.png", Data: pngBytes})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(name, ".png"))

		s, err := svc.Profile(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, name, s.ProfilePhoto)

		rc, contentType, err := svc.OpenProfilePhoto(ctx, self, "s1")
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "image/png", contentType)
		assert.Equal(t, pngBytes, data)
	})

	t.Run("Replacing Removes The Old Photo", func(t *testing.T) {
		name, err := svc.SetProfilePhoto(ctx, "s1", &Photo{Filename: "me.jpg", Data: jpegBytes})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(name, ".jpg"))
		assert.Equal(t, 1, photos.Len())

		_, contentType, err := svc.OpenProfilePhoto(ctx, shared.Identity{ID: "a1", Role: shared.RoleAdmin}, "s1")
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", contentType)
	})

	t.Run("Other Students Are Refused", func(t *testing.T) {
		_, _, err := svc.OpenProfilePhoto(ctx, shared.Identity{ID: "s2", Role: shared.RoleStudent}, "s1")
		assert.True(t, errors.Is(err, shared.ErrForbidden))
	})

	t.Run("Type And Size Checks", func(t *testing.T) {
		_, err := svc.SetProfilePhoto(ctx, "s2", nil)
		assert.Equal(t, "No file uploaded", shared.Message(err))

		_, err = svc.SetProfilePhoto(ctx, "s2", &Photo{Filename: "a.gif", Data: []byte("GIF89a......")})
		assert.Equal(t, "Only JPEG and PNG images are allowed", shared.Message(err))

		// The declared name does not matter, the bytes do
		_, err = svc.SetProfilePhoto(ctx, "s2", &Photo{Filename: "cv.png", Data: []byte("%PDF-1.4")})
		assert.True(t, errors.Is(err, shared.ErrValidation))

		big := append(append([]byte{}, pngBytes...), make([]byte, 1<<10)...)
		_, err = svc.SetProfilePhoto(ctx, "s2", &Photo{Filename: "big.png", Data: big})
		assert.Equal(t, "File too large", shared.Message(err))

		s, err := svc.Profile(ctx, "s2")
		require.NoError(t, err)
		assert.Empty(t, s.ProfilePhoto)
	})

	t.Run("Unknown Student", func(t *testing.T) {
		_, err := svc.SetProfilePhoto(ctx, "missing", &Photo{Filename: "me.png", Data: pngBytes})
		assert.True(t, errors.Is(err, shared.ErrNotFound))
		assert.Equal(t, 1, photos.Len())
	})
}
