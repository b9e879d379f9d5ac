// Package export projects joined results into the dashboard JSON shape, a
// spreadsheet, a paginated document and a zip archive of attachments.
package export

import (
	"bytes"
	"encoding/json"

	"student_achievements/backend/internal/report"
	"student_achievements/backend/internal/shared"
)

// FileRef identifies an attachment without carrying its bytes
type FileRef struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	ID          string `json:"id"`
}

// AchievementView is an achievement as listed to clients
type AchievementView struct {
	shared.Achievement
	File *FileRef `json:"file,omitempty"`
}

// NewAchievementView strips attachment bytes down to a reference
func NewAchievementView(a shared.Achievement) AchievementView {
	view := AchievementView{Achievement: a}
	view.Achievement.File = nil
	if a.HasFile() {
		view.File = &FileRef{
			Filename:    a.File.Filename,
			ContentType: a.File.ContentType,
			ID:          a.ID,
		}
	}
	return view
}

// AchievementViews converts a list
func AchievementViews(achievements []shared.Achievement) []AchievementView {
	views := make([]AchievementView, 0, len(achievements))
	for _, a := range achievements {
		views = append(views, NewAchievementView(a))
	}
	return views
}

// CategoryView is one entry of GroupedView
type CategoryView struct {
	Category     shared.Category
	Achievements []AchievementView
}

// GroupedView marshals to a JSON object whose keys keep the group order
type GroupedView []CategoryView

// MarshalJSON writes {"<category>": [...], ...} in slice order
func (g GroupedView) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, group := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(group.Category))
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(group.Achievements)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NewGroupedView projects the engine's grouping
func NewGroupedView(groups report.Grouped) GroupedView {
	view := make(GroupedView, 0, len(groups))
	for _, group := range groups {
		view = append(view, CategoryView{
			Category:     group.Category,
			Achievements: AchievementViews(group.Achievements),
		})
	}
	return view
}

// StudentView is one row of the dashboard listing
type StudentView struct {
	shared.Student
	AchievementsByCategory GroupedView `json:"achievementsByCategory"`
}

// StudentViews projects the engine result, keeping its order
func StudentViews(joined []report.Joined) []StudentView {
	views := make([]StudentView, 0, len(joined))
	for _, j := range joined {
		views = append(views, StudentView{
			Student:                j.Student,
			AchievementsByCategory: NewGroupedView(j.Groups),
		})
	}
	return views
}

// StudentDetail is the single-student payload. Password is always empty.
type StudentDetail struct {
	StudentView
	Password string `json:"password"`
}

// NewStudentDetail redacts credentials again even though the model never
// serialises them.
func NewStudentDetail(j *report.Joined) StudentDetail {
	student := j.Student
	student.PasswordHash = ""
	student.OTP = ""
	student.OTPExpiry = nil

	return StudentDetail{
		StudentView: StudentView{
			Student:                student,
			AchievementsByCategory: NewGroupedView(j.Groups),
		},
		Password: "",
	}
}
