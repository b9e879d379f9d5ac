// Package importer registers students in bulk from an uploaded workbook.
package importer

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"student_achievements/backend/internal/filter"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

// Required column headers, matched case-insensitively
const (
	colName         = "name"
	colEmail        = "email"
	colStartOfStudy = "startofstudy"
	colEndOfStudy   = "endofstudy"
	colBatch        = "batch"
	colRollNumber   = "rollnumber"
)

var requiredColumns = []string{colName, colEmail, colStartOfStudy, colEndOfStudy, colBatch, colRollNumber}

// Hasher turns a temporary credential into its stored form
type Hasher interface {
	Hash(plain string) (string, error)
}

// Result counts the outcome of one import
type Result struct {
	Inserted int `json:"insertedCount"`
	Skipped  int `json:"skippedCount"`
}

// Row is one candidate student read from the sheet
type Row struct {
	Number       int
	Name         string
	Email        string
	StartOfStudy string
	EndOfStudy   string
	Batch        string
	RollNumber   string
}

// Reconciler inserts new students and skips rows that are incomplete or
// already registered by email or roll number.
type Reconciler struct {
	students store.StudentStore
	hasher   Hasher
	prefix   string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewReconciler builds a reconciler. prefix is prepended to the last four
// roll number characters to form each temporary password.
func NewReconciler(students store.StudentStore, hasher Hasher, prefix string, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		students: students,
		hasher:   hasher,
		prefix:   prefix,
		logger:   logger,
		now:      time.Now,
	}
}

// TemporaryPassword derives the initial credential of an imported student
func (r *Reconciler) TemporaryPassword(roll string) string {
	last4 := roll
	if runes := []rune(roll); len(runes) > 4 {
		last4 = string(runes[len(runes)-4:])
	}
	return r.prefix + last4
}

// YearOfStudyLabel joins the two study months into the display label
func YearOfStudyLabel(start, end string) string {
	return start + " - " + end
}

// Import reads the first sheet of payload and commits each accepted row on
// its own. A failing row is logged and skipped; rows committed before a
// cancellation stay committed.
func (r *Reconciler) Import(ctx context.Context, payload []byte) (Result, error) {
	rows, err := ReadRows(payload)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if r.importRow(ctx, row) {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	r.logger.Info().Int("inserted", result.Inserted).Int("skipped", result.Skipped).Msg("bulk import finished")
	return result, nil
}

func (r *Reconciler) importRow(ctx context.Context, row Row) bool {
	log := r.logger.With().Int("row", row.Number).Str("email", row.Email).Str("rollNumber", row.RollNumber).Logger()

	// 1. Required fields
	if row.Name == "" || row.Email == "" || row.StartOfStudy == "" || row.EndOfStudy == "" || row.Batch == "" || row.RollNumber == "" {
		log.Warn().Msg("skipping row with missing required fields")
		return false
	}

	start, errStart := filter.ParseMonth(row.StartOfStudy)
	end, errEnd := filter.ParseMonth(row.EndOfStudy)
	if errStart != nil || errEnd != nil {
		log.Warn().Str("startOfStudy", row.StartOfStudy).Str("endOfStudy", row.EndOfStudy).Msg("skipping row with unreadable study dates")
		return false
	}

	// 2. Duplicate identity
	existing, err := r.students.FindByEmailOrRoll(ctx, row.Email, row.RollNumber)
	if err == nil && existing != nil {
		log.Warn().Msg("duplicate found, skipping")
		return false
	}
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		log.Warn().Err(err).Msg("duplicate check failed, skipping")
		return false
	}

	// 3. Credential and label
	hash, err := r.hasher.Hash(r.TemporaryPassword(row.RollNumber))
	if err != nil {
		log.Warn().Err(err).Msg("failed to hash temporary password, skipping")
		return false
	}

	student := &shared.Student{
		ID:           uuid.NewString(),
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: hash,
		StartOfStudy: &start,
		EndOfStudy:   &end,
		YearOfStudy:  YearOfStudyLabel(row.StartOfStudy, row.EndOfStudy),
		Batch:        row.Batch,
		RollNumber:   row.RollNumber,
		CreatedAt:    r.now().UTC(),
	}

	// 4. Per-row commit
	if err := r.students.Insert(ctx, student); err != nil {
		log.Warn().Err(err).Msg("failed to save student, skipping")
		return false
	}
	return true
}

// ReadRows parses the workbook into candidate rows. Cells are read raw so
// numeric roll numbers and date serials can be normalised here.
func ReadRows(payload []byte) ([]Row, error) {
	if len(payload) == 0 {
		return nil, shared.NewValidationError("no file uploaded")
	}

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, shared.NewValidationError("uploaded file is empty or invalid format")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, shared.NewValidationError("uploaded file is empty or invalid format")
	}

	sheet := sheets[0]
	cells, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, shared.NewValidationError("uploaded file is empty or invalid format")
	}
	if len(cells) < 2 {
		return nil, shared.NewValidationError("uploaded file is empty or invalid format")
	}

	index := map[string]int{}
	for i, header := range cells[0] {
		key := strings.ToLower(strings.TrimSpace(header))
		if _, seen := index[key]; !seen && key != "" {
			index[key] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) == len(requiredColumns) {
		return nil, shared.NewValidationError("uploaded file has no recognisable header row")
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	// Only cells stored as numbers get numeric normalisation; text is kept
	// as typed.
	numeric := func(rowNumber int, col string) bool {
		i, ok := index[col]
		if !ok {
			return false
		}
		name, err := excelize.CoordinatesToCellName(i+1, rowNumber)
		if err != nil {
			return false
		}
		kind, err := f.GetCellType(sheet, name)
		if err != nil {
			return false
		}
		return kind == excelize.CellTypeNumber || kind == excelize.CellTypeUnset
	}

	rows := make([]Row, 0, len(cells)-1)
	for n, raw := range cells[1:] {
		if isBlank(raw) {
			continue
		}
		number := n + 2
		rows = append(rows, Row{
			Number:       number,
			Name:         cell(raw, colName),
			Email:        cell(raw, colEmail),
			StartOfStudy: NormalizeMonth(cell(raw, colStartOfStudy)),
			EndOfStudy:   NormalizeMonth(cell(raw, colEndOfStudy)),
			Batch:        cell(raw, colBatch),
			RollNumber:   NormalizeRollNumber(cell(raw, colRollNumber), numeric(number, colRollNumber)),
		})
	}
	if len(rows) == 0 {
		return nil, shared.NewValidationError("uploaded file is empty or invalid format")
	}
	return rows, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var decimalInteger = regexp.MustCompile(`^\d+\.0+$`)

// NormalizeRollNumber undoes numeric coercion of roll numbers stored as
// number cells ("21001.0", "2.1001E4"). Text cells are returned verbatim, as
// are digit strings, so leading zeros and letters survive.
func NormalizeRollNumber(v string, numeric bool) string {
	if v == "" || !numeric {
		return v
	}
	if decimalInteger.MatchString(v) || strings.ContainsAny(v, "eE") {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return v
}

var (
	monthPattern = regexp.MustCompile(`^(\d{4}-\d{2})(?:-\d{2})?$`)
	serialNumber = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// NormalizeMonth reduces YYYY-MM-DD and date serials to YYYY-MM. Anything
// else is returned unchanged and fails validation later.
func NormalizeMonth(v string) string {
	if m := monthPattern.FindStringSubmatch(v); m != nil {
		return m[1]
	}
	if serialNumber.MatchString(v) {
		serial, err := strconv.ParseFloat(v, 64)
		if err == nil && serial > 0 {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return t.Format(filter.MonthLayout)
			}
		}
	}
	return v
}
