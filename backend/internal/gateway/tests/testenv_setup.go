package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"student_achievements/backend/internal/blob"
	"student_achievements/backend/internal/gateway"
	"student_achievements/backend/internal/mailer"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

// TestEnv holds the router and the collaborators tests inspect
type TestEnv struct {
	Router   http.Handler
	Services *gateway.Services
	Store    *store.Store
	Mail     *captureSender
}

// Envelope is the JSON body every API route answers with
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type captureSender struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (c *captureSender) Send(_ context.Context, msg mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

var otpPattern = regexp.MustCompile(`<strong>(\d{6})</strong>`)

// lastOTP waits for queued mail and returns the code of the newest message
func (e *TestEnv) lastOTP(t *testing.T) string {
	t.Helper()
	e.Services.Close()

	e.Mail.mu.Lock()
	defer e.Mail.mu.Unlock()
	require.NotEmpty(t, e.Mail.sent, "no mail sent")
	m := otpPattern.FindStringSubmatch(e.Mail.sent[len(e.Mail.sent)-1].HTML)
	require.Len(t, m, 2)
	return m[1]
}

// setupGatewayTestEnv builds the whole API over the in-memory store
func setupGatewayTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	cfg := shared.DefaultConfig()
	cfg.Storage.Driver = "memory"
	cfg.Security.JWTSecret = "gateway-test-secret"
	cfg.Security.BCryptCost = bcrypt.MinCost
	cfg.Uploads.MaxAttachmentBytes = 1 << 20

	db := store.NewMemoryStore()
	mail := &captureSender{}
	services := gateway.NewServices(cfg, db, nil, blob.NewMemoryStore(), mail, zerolog.Nop())
	t.Cleanup(services.Close)

	return &TestEnv{
		Router:   gateway.SetupRoutes(services),
		Services: services,
		Store:    db,
		Mail:     mail,
	}
}

// ============================================================================
// Request helpers
// ============================================================================

func (e *TestEnv) doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	e.Router.ServeHTTP(rr, req)
	return rr
}

// upload describes one file part of a multipart request
type upload struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

func (e *TestEnv) doMultipart(t *testing.T, method, path, token string, fields map[string]string, file *upload) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+file.Field+`"; filename="`+file.Filename+`"`)
		h.Set("Content-Type", file.ContentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.Data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	e.Router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, data interface{}) Envelope {
	t.Helper()

	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

// ============================================================================
// Fixtures
// ============================================================================

type session struct {
	Token string
	ID    string
}

func (e *TestEnv) registerStudent(t *testing.T, name, email, roll string) session {
	t.Helper()

	rr := e.doJSON(t, http.MethodPost, "/api/register/student", "", map[string]interface{}{
		"name":         name,
		"email":        email,
		"password":     "password123",
		"startOfStudy": "2021-07",
		"endOfStudy":   "2025-06",
		"batch":        "N",
		"rollNumber":   roll,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var out struct {
		Token   string         `json:"token"`
		Student shared.Student `json:"student"`
	}
	decode(t, rr, &out)
	return session{Token: out.Token, ID: out.Student.ID}
}

func (e *TestEnv) registerAdmin(t *testing.T, email, empNo string) session {
	t.Helper()

	rr := e.doJSON(t, http.MethodPost, "/api/register/admin", "", map[string]interface{}{
		"name":     "Dean",
		"email":    email,
		"emp_no":   empNo,
		"password": "adminpass1",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var out struct {
		Token string       `json:"token"`
		Admin shared.Admin `json:"admin"`
	}
	decode(t, rr, &out)
	return session{Token: out.Token, ID: out.Admin.ID}
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

func (e *TestEnv) uploadAchievement(t *testing.T, token string, fields map[string]string) string {
	t.Helper()

	rr := e.doMultipart(t, http.MethodPost, "/api/achievements", token, fields, &upload{
		Field: "file", Filename: "certificate.pdf", ContentType: "application/pdf", Data: pdfBytes,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var out struct {
		ID string `json:"id"`
	}
	decode(t, rr, &out)
	require.NotEmpty(t, out.ID)
	return out.ID
}

func internshipFields(title string) map[string]string {
	return map[string]string{
		"category":         "Internships",
		"title":            title,
		"description":      "Worked on the billing backend",
		"shortDescription": "Backend internship",
		"companyName":      "Kappa Systems",
		"fromDate":         "2023-05-01",
		"toDate":           "2023-07-31",
	}
}
