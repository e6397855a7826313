package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hitoshi/infomate/internal/middleware"
	"github.com/hitoshi/infomate/internal/model"
	"github.com/hitoshi/infomate/internal/profile"
)

// photoFieldName はプロフィール写真のフォーム項目名。
const photoFieldName = "profilePhoto"

// multipartOverhead は写真以外のmultipartボディ（境界やヘッダー）に許容するバイト数。
const multipartOverhead = 64 * 1024

// profileRequest はJSONでのプロフィール更新リクエスト。
type profileRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// profilePage はプロフィール画面のデータ。
type profilePage struct {
	User       *model.User
	MaxPhotoMB int64
}

// ProfileHandler はログインユーザー自身のプロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service  ProfileServiceInterface
	renderer *Renderer
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, renderer *Renderer) *ProfileHandler {
	return &ProfileHandler{
		service:  service,
		renderer: renderer,
	}
}

// Show はプロフィール画面を表示する。
// GET /profile
func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	user, err := h.service.Get(r.Context(), caller.UserID)
	if err != nil {
		handleServiceError(w, r, err, "/")
		return
	}

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, toUserResponse(user))
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageProfile, "プロフィール", profilePage{
		User:       user,
		MaxPhotoMB: h.service.MaxPhotoSize() / (1024 * 1024),
	})
}

// UpdatePicture はプロフィール写真を差し替える。
// 上限を超えるボディは読み込みを打ち切り、保存せずに拒否する。
// POST /profile/picture
func (h *ProfileHandler) UpdatePicture(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	maxSize := h.service.MaxPhotoSize()
	limit := maxSize + multipartOverhead
	tooLarge := model.NewInvalidPhotoError(fmt.Sprintf("ファイルサイズは%dMB以下にしてください。", maxSize/(1024*1024)))
	if r.ContentLength > limit {
		handleServiceError(w, r, tooLarge, "/profile")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handleServiceError(w, r, tooLarge, "/profile")
			return
		}
		handleServiceError(w, r, model.NewInvalidPhotoError("画像ファイルを選択してください。"), "/profile")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(photoFieldName)
	if err != nil {
		handleServiceError(w, r, model.NewInvalidPhotoError("画像ファイルを選択してください。"), "/profile")
		return
	}
	defer file.Close()

	user, err := h.service.UpdatePhoto(r.Context(), caller.UserID, caller.SessionID, profile.PhotoUpload{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		handleServiceError(w, r, err, "/profile")
		return
	}

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, toUserResponse(user))
		return
	}
	redirectWithFlash(w, r, "プロフィール写真を更新しました。", "/profile")
}

// UpdateProfile は表示名・メールアドレス・パスワードを更新する。
// POST /profile/update
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if isJSONBody(r) {
		if err := decodeJSONBody(r, &req); err != nil {
			handleServiceError(w, r, err, "/profile")
			return
		}
	} else {
		req = profileRequest{
			Name:            r.PostFormValue("name"),
			Email:           r.PostFormValue("email"),
			CurrentPassword: r.PostFormValue("current_password"),
			NewPassword:     r.PostFormValue("new_password"),
		}
	}

	user, err := h.service.UpdateProfile(r.Context(), caller.UserID, caller.SessionID, profile.ProfileInput{
		Name:            req.Name,
		Email:           req.Email,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		handleServiceError(w, r, err, "/profile")
		return
	}

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, toUserResponse(user))
		return
	}
	redirectWithFlash(w, r, "プロフィールを更新しました。", "/profile")
}
