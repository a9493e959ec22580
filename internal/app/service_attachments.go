package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"trackline/api/internal/access"
	"trackline/api/internal/store"
	"trackline/api/internal/util"
)

const maxAttachmentBytes = 25 << 20

func (s *Service) attachmentsEnabled() error {
	if s.blobs == nil {
		return domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	return nil
}

func (s *Service) UploadAttachment(ctx context.Context, session Session, taskID int64, fileName, contentType string, size int64, r io.Reader) (map[string]any, error) {
	if err := s.attachmentsEnabled(); err != nil {
		return nil, err
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, validationError("fileName is required")
	}
	if size <= 0 || size > maxAttachmentBytes {
		return nil, validationError("attachment size must be between 1 byte and 25 MiB")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.accessibleTask(ctx, resolver, taskID); err != nil {
		return nil, err
	}

	attachment := store.TaskAttachment{
		ID:          util.NewID("att"),
		TaskID:      taskID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   size,
	}
	attachment.ObjectKey = fmt.Sprintf("tasks/%d/%s/%s", taskID, attachment.ID, fileName)

	if err := s.blobs.Put(ctx, attachment.ObjectKey, r, size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.InsertTaskAttachment(ctx, attachment); err != nil {
		_ = s.blobs.Remove(ctx, attachment.ObjectKey)
		return nil, err
	}
	return attachmentPayload(attachment), nil
}

func (s *Service) ListTaskAttachments(ctx context.Context, session Session, taskID int64) ([]map[string]any, error) {
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.accessibleTask(ctx, resolver, taskID); err != nil {
		return nil, err
	}
	attachments, err := s.store.ListTaskAttachments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(attachments))
	for _, a := range attachments {
		items = append(items, attachmentPayload(a))
	}
	return items, nil
}

// OpenAttachment returns the attachment row and a stream over its bytes. The
// caller must close the stream.
func (s *Service) OpenAttachment(ctx context.Context, session Session, attachmentID string) (store.TaskAttachment, io.ReadCloser, error) {
	if err := s.attachmentsEnabled(); err != nil {
		return store.TaskAttachment{}, nil, err
	}
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return store.TaskAttachment{}, nil, err
	}
	attachment, err := s.accessibleAttachment(ctx, resolver, attachmentID)
	if err != nil {
		return store.TaskAttachment{}, nil, err
	}
	stream, err := s.blobs.Get(ctx, attachment.ObjectKey)
	if err != nil {
		return store.TaskAttachment{}, nil, err
	}
	return attachment, stream, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, session Session, attachmentID string) error {
	if err := s.attachmentsEnabled(); err != nil {
		return err
	}
	resolver, _, err := s.resolverFor(ctx, session)
	if err != nil {
		return err
	}
	attachment, err := s.accessibleAttachment(ctx, resolver, attachmentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTaskAttachment(ctx, attachmentID); err != nil {
		return err
	}
	if err := s.blobs.Remove(ctx, attachment.ObjectKey); err != nil {
		// Orphaned object; the row is gone so it is unreachable either way.
		return nil
	}
	return nil
}

func (s *Service) accessibleAttachment(ctx context.Context, resolver *access.Resolver, attachmentID string) (store.TaskAttachment, error) {
	attachment, err := s.store.GetTaskAttachment(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.TaskAttachment{}, denial(resolver)
		}
		return store.TaskAttachment{}, err
	}
	if _, _, err := s.accessibleTask(ctx, resolver, attachment.TaskID); err != nil {
		return store.TaskAttachment{}, err
	}
	return attachment, nil
}

func attachmentPayload(a store.TaskAttachment) map[string]any {
	return map[string]any{
		"id":          a.ID,
		"taskId":      a.TaskID,
		"fileName":    a.FileName,
		"contentType": a.ContentType,
		"sizeBytes":   a.SizeBytes,
		"createdAt":   a.CreatedAt,
	}
}
