// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/tomtom215/leadchat/internal/logging"
)

// DefaultMaxUploadBytes caps profile pictures when the config leaves it unset.
const DefaultMaxUploadBytes = 5 << 20

// UploadURLPrefix is where uploaded files are served.
const UploadURLPrefix = "/uploads/"

var allowedImageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// UploadResult is the body of a successful upload.
type UploadResult struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

func (h *Handler) maxUploadBytes() int64 {
	if h.config != nil && h.config.Storage.MaxUploadBytes > 0 {
		return h.config.Storage.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

func (h *Handler) uploadDir() string {
	if h.config != nil && h.config.Storage.UploadDir != "" {
		return h.config.Storage.UploadDir
	}
	return filepath.Join("data", "uploads")
}

// UploadProfilePicture answers POST /api/upload/profile-picture. The
// multipart "file" part is sniffed, not trusted by its declared type.
func (h *Handler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	limit := h.maxUploadBytes()

	// Room for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "File exceeds the upload limit")
			return
		}
		rw.BadRequest("Multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		rw.BadRequest("Could not read upload")
		return
	}
	if int64(len(data)) > limit {
		rw.Error(http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "File exceeds the upload limit")
		return
	}
	if len(data) == 0 {
		rw.BadRequest("Uploaded file is empty")
		return
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		rw.Error(http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "Only PNG, JPEG, GIF and WebP images are accepted")
		return
	}

	dir := h.uploadDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("dir", dir).Msg("Cannot create upload directory")
		rw.InternalError("Upload storage unavailable")
		return
	}
	name := uuid.NewString() + mtype.Extension()
	if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to store upload")
		rw.InternalError("Upload storage unavailable")
		return
	}

	logging.Ctx(r.Context()).Info().Str("file", name).Str("content_type", mtype.String()).Int("size", len(data)).Msg("Profile picture uploaded")
	rw.Created(UploadResult{URL: UploadURLPrefix + name, ContentType: mtype.String(), Size: len(data)})
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
