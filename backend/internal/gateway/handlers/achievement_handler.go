package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"student_achievements/backend/internal/achievement"
	"student_achievements/backend/internal/export"
	"student_achievements/backend/internal/gateway/util"
	"student_achievements/backend/internal/shared"
)

// AchievementHandler serves achievement upload, edit, delete and lookup
type AchievementHandler struct {
	Achievements *achievement.Service
	MaxBytes     int64
}

// readForm extracts the achievement fields and the optional "file" part
func (h *AchievementHandler) readForm(w http.ResponseWriter, r *http.Request) (achievement.Input, *achievement.File, error) {
	if err := parseMultipart(w, r, h.MaxBytes); err != nil {
		return achievement.Input{}, nil, err
	}

	in := achievement.Input{
		Category:         r.FormValue("category"),
		Title:            r.FormValue("title"),
		Description:      r.FormValue("description"),
		ShortDescription: r.FormValue("shortDescription"),
		CompanyName:      r.FormValue("companyName"),
		FromDate:         r.FormValue("fromDate"),
		ToDate:           r.FormValue("toDate"),
	}
	if raw := r.FormValue("ongoing"); raw != "" {
		ongoing, err := strconv.ParseBool(raw)
		if err != nil {
			return achievement.Input{}, nil, shared.NewValidationError("ongoing must be true or false")
		}
		in.Ongoing = ongoing
	}

	header, data, err := formFile(r, "file")
	if err != nil || header == nil {
		return in, nil, err
	}
	return in, &achievement.File{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Upload handles POST /achievements
func (h *AchievementHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	in, file, err := h.readForm(w, r)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	created, err := h.Achievements.Upload(r.Context(), id.ID, in, file)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusCreated, export.NewAchievementView(*created))
}

// Edit handles PUT /achievements/{id}
func (h *AchievementHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	in, file, err := h.readForm(w, r)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}

	updated, err := h.Achievements.Edit(r.Context(), id, urlParam(r, "id"), in, file)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, export.NewAchievementView(*updated))
}

// Delete handles DELETE /achievements/{id}
func (h *AchievementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	if err := h.Achievements.Delete(r.Context(), id, urlParam(r, "id")); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSONMessage(w, r, http.StatusOK, "Achievement deleted successfully")
}

// ListByCategory handles GET /achievements/{studentId}/{category}
func (h *AchievementHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	list, err := h.Achievements.ListByCategory(r.Context(), id, urlParam(r, "studentId"), urlParam(r, "category"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, export.AchievementViews(list))
}

// GetFile handles GET /files/{id}
func (h *AchievementHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	rc, file, err := h.Achievements.OpenAttachment(r.Context(), id, urlParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.Filename))
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("file", file.Filename).Msg("file transfer interrupted")
	}
}
