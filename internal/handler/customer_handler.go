package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/infomate/internal/customer"
	"github.com/hitoshi/infomate/internal/middleware"
	"github.com/hitoshi/infomate/internal/model"
)

// customerRequest はJSONでの顧客登録・更新リクエスト。
// 所有者を示す項目は受け付けない。
type customerRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Age         *int   `json:"age"`
	Country     string `json:"country"`
	Gender      string `json:"gender"`
}

// customerResponse はAPIクライアント向けの顧客表現。
type customerResponse struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	Age         int       `json:"age"`
	Country     string    `json:"country"`
	Gender      string    `json:"gender"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// customerListResponse は顧客一覧のレスポンス。
type customerListResponse struct {
	Customers []customerResponse `json:"customers"`
}

// indexPage は顧客一覧画面のデータ。
type indexPage struct {
	Customers []*model.Customer
	Query     string
	Searched  bool
}

// customerFormPage は顧客の登録・編集画面のデータ。
type customerFormPage struct {
	Action   string
	Method   string
	Submit   string
	Customer customer.Input
}

func toCustomerResponse(c *model.Customer) customerResponse {
	return customerResponse{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
		Age:         c.Age,
		Country:     c.Country,
		Gender:      c.Gender,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toCustomerListResponse(customers []*model.Customer) customerListResponse {
	resp := customerListResponse{Customers: make([]customerResponse, len(customers))}
	for i, c := range customers {
		resp.Customers[i] = toCustomerResponse(c)
	}
	return resp
}

// CustomerHandler は顧客レコードのHTTPハンドラー。
type CustomerHandler struct {
	service  CustomerServiceInterface
	renderer *Renderer
}

// NewCustomerHandler はCustomerHandlerを生成する。
func NewCustomerHandler(service CustomerServiceInterface, renderer *Renderer) *CustomerHandler {
	return &CustomerHandler{
		service:  service,
		renderer: renderer,
	}
}

// List は呼び出し元の顧客一覧を表示する。
// GET /
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	customers, err := h.service.List(r.Context(), caller.UserID)
	if err != nil {
		h.renderFailure(w, r, err)
		return
	}

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, toCustomerListResponse(customers))
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageIndex, "顧客一覧", indexPage{Customers: customers})
}

// New は顧客の登録画面を表示する。
// GET /user/add.html
func (h *CustomerHandler) New(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pageCustomerForm, "顧客の追加", customerFormPage{
		Action:   "/user/add.html",
		Submit:   "登録する",
		Customer: customer.Input{Gender: model.GenderMale},
	})
}

// Create は呼び出し元を所有者とする顧客を登録する。
// POST /user/add.html
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	in, err := customerInputFromRequest(r)
	if err != nil {
		handleServiceError(w, r, err, "/user/add.html")
		return
	}

	c, err := h.service.Create(r.Context(), caller.UserID, in)
	if err != nil {
		handleServiceError(w, r, err, "/user/add.html")
		return
	}

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusCreated, toCustomerResponse(c))
		return
	}
	redirectWithFlash(w, r, "顧客を登録しました。", "/")
}

// Edit は顧客の編集画面を表示する。
// GET /edit/{id}
func (h *CustomerHandler) Edit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	c, err := h.service.Get(r.Context(), caller.UserID, id)
	if err != nil {
		handleServiceError(w, r, err, "/")
		return
	}

	h.renderer.Render(w, r, http.StatusOK, pageCustomerForm, "顧客の編集", customerFormPage{
		Action: "/edit/" + c.ID,
		Method: http.MethodPut,
		Submit: "更新する",
		Customer: customer.Input{
			FirstName:   c.FirstName,
			LastName:    c.LastName,
			Email:       c.Email,
			PhoneNumber: c.PhoneNumber,
			Age:         strconv.Itoa(c.Age),
			Country:     c.Country,
			Gender:      c.Gender,
		},
	})
}

// View は顧客の詳細を表示する。
// GET /view/{id}
func (h *CustomerHandler) View(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), caller.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err, "/")
		return
	}

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, toCustomerResponse(c))
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageCustomerView, c.FullName(), c)
}

// Update は顧客を更新する。
// PUT /edit/{id}
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	in, err := customerInputFromRequest(r)
	if err != nil {
		handleServiceError(w, r, err, "/edit/"+id)
		return
	}

	c, err := h.service.Update(r.Context(), caller.UserID, id, in)
	if err != nil {
		handleServiceError(w, r, err, recordFailureRedirect(err, "/edit/"+id))
		return
	}

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, toCustomerResponse(c))
		return
	}
	redirectWithFlash(w, r, "顧客情報を更新しました。", "/view/"+c.ID)
}

// Delete は顧客を削除する。
// DELETE /edit/{id}
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), caller.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err, "/")
		return
	}

	if middleware.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	redirectWithFlash(w, r, "顧客を削除しました。", "/")
}

// Search は呼び出し元の顧客を姓・名で検索する。
// POST /search
func (h *CustomerHandler) Search(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}

	text := r.PostFormValue("search")
	if isJSONBody(r) {
		var req struct {
			Text string `json:"text"`
		}
		if err := decodeJSONBody(r, &req); err != nil {
			handleServiceError(w, r, err, "/")
			return
		}
		text = req.Text
	}

	customers, err := h.service.Search(r.Context(), caller.UserID, text)
	if err != nil {
		handleServiceError(w, r, err, "/")
		return
	}

	if middleware.WantsJSON(r) {
		writeJSON(w, http.StatusOK, toCustomerListResponse(customers))
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageIndex, "検索結果", indexPage{
		Customers: customers,
		Query:     text,
		Searched:  true,
	})
}

// renderFailure は一覧画面を表示できない場合のエラーを返す。
// 一覧はリダイレクト先でもあるため、HTMLではリダイレクトせずに描画する。
func (h *CustomerHandler) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(r, err)
	if middleware.WantsJSON(r) {
		middleware.WriteErrorResponse(w, middleware.StatusCodeFor(apiErr), apiErr)
		return
	}
	http.Error(w, apiErr.Message, middleware.StatusCodeFor(apiErr))
}

// customerInputFromRequest はフォームまたはJSONボディから顧客の入力値を取り出す。
func customerInputFromRequest(r *http.Request) (customer.Input, error) {
	if isJSONBody(r) {
		var req customerRequest
		if err := decodeJSONBody(r, &req); err != nil {
			return customer.Input{}, err
		}
		in := customer.Input{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			Email:       req.Email,
			PhoneNumber: req.PhoneNumber,
			Country:     req.Country,
			Gender:      req.Gender,
		}
		if req.Age != nil {
			in.Age = strconv.Itoa(*req.Age)
		}
		return in, nil
	}

	return customer.Input{
		FirstName:   r.PostFormValue("first_name"),
		LastName:    r.PostFormValue("last_name"),
		Email:       r.PostFormValue("email"),
		PhoneNumber: r.PostFormValue("phone_number"),
		Age:         r.PostFormValue("age"),
		Country:     r.PostFormValue("country"),
		Gender:      r.PostFormValue("gender"),
	}, nil
}

// recordFailureRedirect は顧客操作の失敗時の戻り先を返す。
// レコードが見つからない場合は一覧へ戻す。
func recordFailureRedirect(err error, fallback string) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeRecordNotFound {
		return "/"
	}
	return fallback
}
