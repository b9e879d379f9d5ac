package handlers

import (
	"fmt"
	"net/http"

	"student_achievements/backend/internal/admin"
	"student_achievements/backend/internal/gateway/util"
	"student_achievements/backend/internal/shared"
)

// AdminHandler serves the administrator dashboard, reports and exports
type AdminHandler struct {
	Admin          *admin.Service
	MaxImportBytes int64
}

type selectiveReportRequest struct {
	Categories []string `json:"categories"`
}

// -- Listing --

// ListStudents handles GET /students
func (h *AdminHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	views, err := h.Admin.ListStudents(r.Context(), r.URL.Query())
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, views)
}

// GetStudent handles GET /students/{id}
func (h *AdminHandler) GetStudent(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Admin.GetStudent(r.Context(), urlParam(r, "id"))
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, detail)
}

// -- Documents & Exports --

// StudentReport handles GET /students/{id}/report
func (h *AdminHandler) StudentReport(w http.ResponseWriter, r *http.Request) {
	d, err := h.Admin.StudentReport(r.Context(), urlParam(r, "id"), r.URL.Query())
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	sendDownload(w, r, d)
}

// SelectiveReport handles POST /students/{id}/selective-report
func (h *AdminHandler) SelectiveReport(w http.ResponseWriter, r *http.Request) {
	var req selectiveReportRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, r, err)
		return
	}

	d, err := h.Admin.SelectiveReport(r.Context(), urlParam(r, "id"), req.Categories)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	sendDownload(w, r, d)
}

// ExportSpreadsheet handles GET /students/report/excel
func (h *AdminHandler) ExportSpreadsheet(w http.ResponseWriter, r *http.Request) {
	d, err := h.Admin.Spreadsheet(r.Context(), r.URL.Query())
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	sendDownload(w, r, d)
}

// ExportArchive handles GET /students/documents/zip
func (h *AdminHandler) ExportArchive(w http.ResponseWriter, r *http.Request) {
	d, err := h.Admin.Archive(r.Context(), r.URL.Query())
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	sendDownload(w, r, d)
}

// -- Bulk Registration --

// BulkRegister handles POST /register/students-bulk with the workbook in
// the "file" part.
func (h *AdminHandler) BulkRegister(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r, h.MaxImportBytes); err != nil {
		util.HandleError(w, r, err)
		return
	}

	header, data, err := formFile(r, "file")
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	if header == nil {
		util.HandleError(w, r, shared.NewValidationError("No file uploaded"))
		return
	}

	result, err := h.Admin.BulkImport(r.Context(), data)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"message":       fmt.Sprintf("%d students registered successfully.", result.Inserted),
		"insertedCount": result.Inserted,
		"skippedCount":  result.Skipped,
	})
}
