// Package blob resolves achievement attachments to bytes, whether they are
// kept inline in the achievement record or in an object store.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

// Store holds opaque byte blobs by key
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// StorageKey returns a fresh object key for a student's attachment
func StorageKey(studentID string) string {
	return fmt.Sprintf("achievements/%s/%s", studentID, uuid.NewString())
}

// Attachments stores and opens achievement files. With a nil object store
// the bytes stay inline in the record.
type Attachments struct {
	objects      Store
	achievements store.AchievementStore
	logger       zerolog.Logger
}

// NewAttachments wires the attachment resolver. objects may be nil.
func NewAttachments(objects Store, achievements store.AchievementStore, logger zerolog.Logger) *Attachments {
	return &Attachments{objects: objects, achievements: achievements, logger: logger}
}

// Prepare turns uploaded bytes into the record's file field, writing them to
// the object store first when one is configured.
func (a *Attachments) Prepare(ctx context.Context, studentID, filename, contentType string, data []byte) (*shared.Attachment, error) {
	file := &shared.Attachment{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
	}

	if a.objects == nil {
		file.Data = data
		return file, nil
	}

	key := StorageKey(studentID)
	if err := a.objects.Put(ctx, key, contentType, data); err != nil {
		return nil, err
	}
	file.StorageKey = key
	return file, nil
}

// Open returns the attachment bytes of ach. Inline bytes that were not
// loaded with the record are fetched by id.
func (a *Attachments) Open(ctx context.Context, ach *shared.Achievement) (io.ReadCloser, error) {
	if !ach.HasFile() {
		return nil, shared.NewNotFoundError("file not found")
	}

	if ach.File.StorageKey != "" {
		if a.objects == nil {
			return nil, shared.NewInternalError(fmt.Errorf("achievement %s references object storage but none is configured", ach.ID))
		}
		return a.objects.Open(ctx, ach.File.StorageKey)
	}

	data := ach.File.Data
	if data == nil {
		full, err := a.achievements.FindByID(ctx, ach.ID, true)
		if err != nil {
			return nil, err
		}
		if !full.HasFile() {
			return nil, shared.NewNotFoundError("file not found")
		}
		data = full.File.Data
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Discard removes a replaced or orphaned object. Inline files need nothing.
// Failures are only logged.
func (a *Attachments) Discard(ctx context.Context, file *shared.Attachment) {
	if file == nil || file.StorageKey == "" || a.objects == nil {
		return
	}
	if err := a.objects.Delete(ctx, file.StorageKey); err != nil {
		a.logger.Error().Err(err).Str("key", file.StorageKey).Msg("failed to delete attachment object")
	}
}

// Inline reports whether bytes are kept in the achievement record
func (a *Attachments) Inline() bool {
	return a.objects == nil
}
