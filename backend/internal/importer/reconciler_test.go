package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"student_achievements/backend/internal/auth"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

var header = []interface{}{"Name", "Email", "StartOfStudy", "EndOfStudy", "Batch", "RollNumber"}

func newReconciler(students store.StudentStore) *Reconciler {
	return NewReconciler(students, auth.Passwords{Cost: bcrypt.MinCost}, "CegStud@", zerolog.Nop())
}

func TestImport(t *testing.T) {
	ctx := context.Background()

	t.Run("Registers Students With Temporary Passwords", func(t *testing.T) {
		db := store.NewMemoryStore()
		r := newReconciler(db.Students)

		payload := workbook(t, header,
			[]interface{}{"Asha Rao", "asha@college.edu", "2021-07", "2025-06", "N", "ST1234"},
		)

		result, err := r.Import(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, Result{Inserted: 1, Skipped: 0}, result)

		s, err := db.Students.FindByRollNumber(ctx, "ST1234")
		require.NoError(t, err)
		assert.Equal(t, "2021-07 - 2025-06", s.YearOfStudy)
		assert.Equal(t, "N", s.Batch)
		require.NotNil(t, s.StartOfStudy)
		assert.Equal(t, "2021-07-01", s.StartOfStudy.Format("2006-01-02"))
		assert.Nil(t, bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte("CegStud@1234")))
	})

	t.Run("Skips Duplicates By Email Or Roll Number", func(t *testing.T) {
		db := store.NewMemoryStore()
		r := newReconciler(db.Students)

		payload := workbook(t, header,
			[]interface{}{"Asha Rao", "asha@college.edu", "2021-07", "2025-06", "N", "ST1234"},
			[]interface{}{"Asha Again", "other@college.edu", "2021-07", "2025-06", "N", "ST1234"},
		)

		result, err := r.Import(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Inserted)
		assert.Equal(t, 1, result.Skipped)

		again, err := r.Import(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, Result{Inserted: 0, Skipped: 2}, again)
	})

	t.Run("Skips Incomplete Rows", func(t *testing.T) {
		db := store.NewMemoryStore()
		r := newReconciler(db.Students)

		payload := workbook(t, header,
			[]interface{}{"No Roll", "noroll@college.edu", "2021-07", "2025-06", "N"},
			[]interface{}{"Bad Date", "bad@college.edu", "July 2021", "2025-06", "N", "ST0002"},
			[]interface{}{"Bala", "bala@college.edu", "2021-07-15", "2025-06-30", "P", "ST0003"},
		)

		result, err := r.Import(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, Result{Inserted: 1, Skipped: 2}, result)

		s, err := db.Students.FindByEmail(ctx, "bala@college.edu")
		require.NoError(t, err)
		assert.Equal(t, "2021-07 - 2025-06", s.YearOfStudy)
	})

	t.Run("Numeric Cells", func(t *testing.T) {
		db := store.NewMemoryStore()
		r := newReconciler(db.Students)

		payload := workbook(t, header,
			[]interface{}{"Chitra", "chitra@college.edu", 44378, 45839, "N", 21001},
		)

		result, err := r.Import(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Inserted)

		s, err := db.Students.FindByRollNumber(ctx, "21001")
		require.NoError(t, err)
		assert.Equal(t, "2021-07 - 2025-07", s.YearOfStudy)
		assert.Nil(t, bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte("CegStud@1001")))
	})

	t.Run("Text Roll Numbers Are Kept As Typed", func(t *testing.T) {
		db := store.NewMemoryStore()
		r := newReconciler(db.Students)

		payload := workbook(t, header,
			[]interface{}{"Deepa", "deepa@college.edu", "2021-07", "2025-06", "N", "21E05"},
			[]interface{}{"Elan", "elan@college.edu", "2021-07", "2025-06", "N", "1e3"},
		)

		result, err := r.Import(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, Result{Inserted: 2, Skipped: 0}, result)

		s, err := db.Students.FindByRollNumber(ctx, "21E05")
		require.NoError(t, err)
		assert.Equal(t, "deepa@college.edu", s.Email)
		assert.Nil(t, bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte("CegStud@1E05")))

		_, err = db.Students.FindByRollNumber(ctx, "1e3")
		require.NoError(t, err)
		_, err = db.Students.FindByRollNumber(ctx, "2100000")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("Rejects Empty Or Unreadable Payloads", func(t *testing.T) {
		r := newReconciler(store.NewMemoryStore().Students)

		_, err := r.Import(ctx, nil)
		assert.True(t, errors.Is(err, shared.ErrValidation))

		_, err = r.Import(ctx, []byte("not a workbook"))
		assert.True(t, errors.Is(err, shared.ErrValidation))

		_, err = r.Import(ctx, workbook(t, header))
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})
}

func TestNormalize(t *testing.T) {
	t.Run("Roll Numbers", func(t *testing.T) {
		assert.Equal(t, "21001", NormalizeRollNumber("21001.0", true))
		assert.Equal(t, "21001", NormalizeRollNumber("2.1001E4", true))
		assert.Equal(t, "00123", NormalizeRollNumber("00123", true))
		assert.Equal(t, "ST1234", NormalizeRollNumber("ST1234", false))

		// Text that happens to read as scientific notation stays text
		assert.Equal(t, "21E05", NormalizeRollNumber("21E05", false))
		assert.Equal(t, "1e3", NormalizeRollNumber("1e3", false))
		assert.Equal(t, "21001.0", NormalizeRollNumber("21001.0", false))
	})

	t.Run("Months", func(t *testing.T) {
		assert.Equal(t, "2021-07", NormalizeMonth("2021-07"))
		assert.Equal(t, "2021-07", NormalizeMonth("2021-07-15"))
		assert.Equal(t, "2021-07", NormalizeMonth("44378"))
		assert.Equal(t, "July", NormalizeMonth("July"))
	})

	t.Run("Temporary Password", func(t *testing.T) {
		r := newReconciler(nil)
		assert.Equal(t, "CegStud@1234", r.TemporaryPassword("ST1234"))
		assert.Equal(t, "CegStud@12", r.TemporaryPassword("12"))
	})
}
