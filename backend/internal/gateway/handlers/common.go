package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"student_achievements/backend/internal/admin"
	"student_achievements/backend/internal/gateway/util"
	"student_achievements/backend/internal/shared"
)

// multipartMemory is the part of a form kept in memory before spilling to disk
const multipartMemory = 8 << 20

// caller returns the identity placed in the context by the auth middleware,
// writing a 401 when it is missing.
func caller(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	id, ok := util.IdentityFrom(r.Context())
	if !ok {
		util.WriteJSONError(w, r, http.StatusUnauthorized, "No token provided")
	}
	return id, ok
}

// urlParam returns a decoded path parameter
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// parseMultipart bounds the body to limit plus room for the other form
// fields and parses it.
func parseMultipart(w http.ResponseWriter, r *http.Request, limit int64) error {
	bound := limit + 1<<20
	if r.ContentLength > bound {
		return shared.NewValidationError("File too large")
	}
	r.Body = http.MaxBytesReader(w, r.Body, bound)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return shared.NewValidationError("File too large")
		}
		return shared.NewValidationError("Invalid multipart form")
	}
	return nil
}

// formFile reads the named part. A missing part yields nil without error.
func formFile(r *http.Request, field string) (*multipart.FileHeader, []byte, error) {
	f, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, shared.NewValidationError("Invalid file upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, shared.NewValidationError("Invalid file upload")
	}
	return header, data, nil
}

// ============================================================================
// Downloads
// ============================================================================

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func attachmentHeaders(w http.ResponseWriter, d *admin.Download) {
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
}

// sendDownload writes d to the client. Buffered downloads report render
// errors as JSON. A streamed download that fails after its first byte
// aborts the connection so the client never sees a truncated file as
// complete.
func sendDownload(w http.ResponseWriter, r *http.Request, d *admin.Download) {
	if !d.Stream {
		var buf bytes.Buffer
		if err := d.Write(r.Context(), &buf); err != nil {
			util.HandleError(w, r, err)
			return
		}
		attachmentHeaders(w, d)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("file", d.Filename).Msg("download interrupted")
		}
		return
	}

	attachmentHeaders(w, d)
	cw := &countingWriter{w: w}
	if err := d.Write(r.Context(), cw); err != nil {
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			util.HandleError(w, r, err)
			return
		}
		hlog.FromRequest(r).Error().Err(err).Int64("bytes", cw.n).Str("file", d.Filename).Msg("stream aborted")
		panic(http.ErrAbortHandler)
	}
}
