package handlers

import (
	"bufio"
	"net/http"

	"github.com/go-chi/chi/v5"

	"videogenie/internal/httpkit"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/storage"
)

// MaxAvatarUpload caps PUT /avatars/{avatarId} bodies.
const MaxAvatarUpload = 16 << 20

func (h *Handler) ListAvatars(w http.ResponseWriter, r *http.Request) error {
	ids, err := h.gw.ListAvatars(r.Context())
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"avatars": ids})
	return nil
}

// PutAvatar stores a multipart "file" field as avatars/{avatarId}.png.
// Only PNG content is accepted.
func (h *Handler) PutAvatar(w http.ResponseWriter, r *http.Request) error {
	avatarID := chi.URLParam(r, "avatarId")
	key, err := storage.AvatarKey(avatarID)
	if err != nil {
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarUpload)
	if err := r.ParseMultipartForm(MaxAvatarUpload); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "avatars.upload", "invalid multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return errors.ValidationField("file", "file is required")
	}
	defer file.Close()

	br := bufio.NewReader(file)
	head, _ := br.Peek(512)
	if ct := http.DetectContentType(head); ct != "image/png" {
		return errors.ValidationField("file", "avatar must be a PNG image").WithField("detected", ct)
	}

	if err := h.gw.Put(r.Context(), key, br, header.Size, "image/png"); err != nil {
		return err
	}

	h.log.FromContext(r.Context()).Info("avatar stored", "avatar_id", avatarID, "size_bytes", header.Size)
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{
		"avatarId":   avatarID,
		"key":        key,
		"size_bytes": header.Size,
	})
	return nil
}

func (h *Handler) DeleteAvatar(w http.ResponseWriter, r *http.Request) error {
	avatarID := chi.URLParam(r, "avatarId")
	key, err := storage.AvatarKey(avatarID)
	if err != nil {
		return err
	}

	ok, err := h.gw.Exists(r.Context(), key)
	if err != nil {
		return err
	}
	if !ok {
		return errors.AssetNotFound("avatar", avatarID)
	}
	if err := h.gw.Delete(r.Context(), key); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
