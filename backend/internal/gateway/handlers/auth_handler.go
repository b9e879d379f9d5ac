package handlers

import (
	"net/http"

	"student_achievements/backend/internal/auth"
	"student_achievements/backend/internal/gateway/util"
	"student_achievements/backend/internal/shared"
)

// AuthHandler serves registration, login and password recovery
type AuthHandler struct {
	Auth *auth.Service
}

// -- Request Structs --

type forgotPasswordRequest struct {
	RegisterNo string `json:"registerNo"`
	Email      string `json:"email"`
}

type verifyOTPRequest struct {
	RegisterNo string `json:"registerNo"`
	Email      string `json:"email"`
	OTP        string `json:"otp"`
}

type resetPasswordRequest struct {
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

// Students send currentPassword, admins oldPassword
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
}

// identifier picks the lookup key of the role: roll number for students,
// email for admins.
func identifier(role, registerNo, email string) string {
	if role == shared.RoleStudent {
		return registerNo
	}
	return email
}

// ============================================================================
// Registration & Login
// ============================================================================

// RegisterStudent handles POST /register/student
func (h *AuthHandler) RegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req auth.StudentRegistration
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, r, err)
		return
	}

	token, student, err := h.Auth.RegisterStudent(r.Context(), req)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusCreated, map[string]interface{}{
		"token":   token,
		"student": student,
	})
}

// RegisterAdmin handles POST /register/admin
func (h *AuthHandler) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var req auth.AdminRegistration
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, r, err)
		return
	}

	token, admin, err := h.Auth.RegisterAdmin(r.Context(), req)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusCreated, map[string]interface{}{
		"token": token,
		"admin": admin,
	})
}

// LoginStudent handles POST /login/student
func (h *AuthHandler) LoginStudent(w http.ResponseWriter, r *http.Request) {
	var req auth.Credentials
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, r, err)
		return
	}

	token, student, err := h.Auth.LoginStudent(r.Context(), req)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  student,
	})
}

// LoginAdmin handles POST /login/admin
func (h *AuthHandler) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	var req auth.Credentials
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, r, err)
		return
	}

	token, admin, err := h.Auth.LoginAdmin(r.Context(), req)
	if err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  admin,
	})
}

// ============================================================================
// Password Recovery
// ============================================================================

// ForgotPassword handles POST /{role}/forgot-password
func (h *AuthHandler) ForgotPassword(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgotPasswordRequest
		if err := util.DecodeJSON(r, &req); err != nil {
			util.HandleError(w, r, err)
			return
		}

		id := identifier(role, req.RegisterNo, req.Email)
		if err := h.Auth.RequestReset(r.Context(), role, id); err != nil {
			util.HandleError(w, r, err)
			return
		}
		util.WriteJSONMessage(w, r, http.StatusOK, "OTP sent to registered email")
	}
}

// VerifyOTP handles POST /{role}/verify-otp
func (h *AuthHandler) VerifyOTP(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyOTPRequest
		if err := util.DecodeJSON(r, &req); err != nil {
			util.HandleError(w, r, err)
			return
		}

		id := identifier(role, req.RegisterNo, req.Email)
		resetToken, err := h.Auth.VerifyOTP(r.Context(), role, id, req.OTP)
		if err != nil {
			util.HandleError(w, r, err)
			return
		}
		util.WriteJSON(w, r, http.StatusOK, map[string]string{"resetToken": resetToken})
	}
}

// ResetPassword handles POST /{role}/reset-password
func (h *AuthHandler) ResetPassword(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetPasswordRequest
		if err := util.DecodeJSON(r, &req); err != nil {
			util.HandleError(w, r, err)
			return
		}

		if err := h.Auth.ResetPassword(r.Context(), role, req.ResetToken, req.NewPassword); err != nil {
			util.HandleError(w, r, err)
			return
		}
		util.WriteJSONMessage(w, r, http.StatusOK, "Password reset successful")
	}
}

// ChangePassword handles PUT /student/change-password and
// POST /admin/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, r, err)
		return
	}

	current := req.CurrentPassword
	if current == "" {
		current = req.OldPassword
	}
	if current == "" || req.NewPassword == "" {
		util.WriteJSONError(w, r, http.StatusBadRequest, "Current and new password are required")
		return
	}

	if err := h.Auth.ChangePassword(r.Context(), id, current, req.NewPassword); err != nil {
		util.HandleError(w, r, err)
		return
	}
	util.WriteJSONMessage(w, r, http.StatusOK, "Password updated successfully")
}
