package handlers

import (
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"student_achievements/backend/internal/gateway/util"
	"student_achievements/backend/internal/student"
)

// StudentHandler serves the signed-in student's own record
type StudentHandler struct {
	Students      *student.Service
	MaxPhotoBytes int64
}

// GetProfile handles GET /student/profile
func (h *StudentHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	profile, err := h.Students.Profile(r.Context(), id.ID)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, profile)
}

// UpdateOwnCGPA handles PUT /student/cgpa
func (h *StudentHandler) UpdateOwnCGPA(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	h.updateCGPA(w, r, id.ID)
}

// UpdateStudentCGPA handles PUT /students/{id}/cgpa
func (h *StudentHandler) UpdateStudentCGPA(w http.ResponseWriter, r *http.Request) {
	h.updateCGPA(w, r, urlParam(r, "id"))
}

func (h *StudentHandler) updateCGPA(w http.ResponseWriter, r *http.Request, studentID string) {
	var req student.CGPAUpdate
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, r, err)
		return
	}

	cgpa, err := h.Students.UpdateCGPA(r.Context(), studentID, req)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"message": "CGPA updated",
		"cgpa":    cgpa,
	})
}

// UploadProfilePhoto handles POST /student/profile-photo
func (h *StudentHandler) UploadProfilePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	if err := parseMultipart(w, r, h.MaxPhotoBytes); err != nil {
		util.HandleError(w, r, err)
		return
	}
	header, data, err := formFile(r, "profilePhoto")
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	var photo *student.Photo
	if header != nil {
		photo = &student.Photo{Filename: header.Filename, Data: data}
	}

	filename, err := h.Students.SetProfilePhoto(r.Context(), id.ID, photo)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, map[string]string{
		"message":         "Profile photo updated successfully",
		"filename":        filename,
		"profilePhotoUrl": student.PhotoURL(id.ID),
	})
}

// GetProfilePhoto handles GET /students/{id}/profile-photo
func (h *StudentHandler) GetProfilePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	rc, contentType, err := h.Students.OpenProfilePhoto(r.Context(), id, urlParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("photo transfer interrupted")
	}
}
