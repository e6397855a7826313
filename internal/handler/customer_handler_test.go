package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/infomate/internal/customer"
	"github.com/hitoshi/infomate/internal/model"
)

func sampleCustomer(id, ownerID string) *model.Customer {
	return &model.Customer{
		ID:          id,
		UserID:      ownerID,
		FirstName:   "Taro",
		LastName:    "Yamada",
		Email:       "taro@example.com",
		PhoneNumber: "090-0000-0000",
		Age:         30,
		Country:     "Japan",
		Gender:      model.GenderMale,
		CreatedAt:   time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC),
	}
}

// --- GET / テスト ---

func TestCustomerHandler_List_RendersOwnRecords(t *testing.T) {
	svc := &mockCustomerService{
		listFn: func(_ context.Context, ownerID string) ([]*model.Customer, error) {
			if ownerID != "user-alice" {
				t.Errorf("ownerID = %q, want user-alice", ownerID)
			}
			return []*model.Customer{sampleCustomer("c-1", ownerID)}, nil
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	w := httptest.NewRecorder()
	h.List(w, withCaller(httptest.NewRequest(http.MethodGet, "/", nil), alice))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Taro Yamada", `href="/view/c-1"`, `name="_method" value="DELETE"`, "2026-04-01 09:30", "Alice"} {
		if !strings.Contains(body, want) {
			t.Errorf("body should contain %q", want)
		}
	}
}

func TestCustomerHandler_List_JSON(t *testing.T) {
	svc := &mockCustomerService{
		listFn: func(_ context.Context, ownerID string) ([]*model.Customer, error) {
			return []*model.Customer{sampleCustomer("c-1", ownerID), sampleCustomer("c-2", ownerID)}, nil
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	req := withCaller(httptest.NewRequest(http.MethodGet, "/", nil), alice)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()

	h.List(w, req)

	var body customerListResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Customers) != 2 || body.Customers[0].ID != "c-1" {
		t.Errorf("customers = %+v", body.Customers)
	}
}

func TestCustomerHandler_List_ServiceError(t *testing.T) {
	svc := &mockCustomerService{
		listFn: func(context.Context, string) ([]*model.Customer, error) {
			return nil, errors.New("db down")
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	w := httptest.NewRecorder()
	h.List(w, withCaller(httptest.NewRequest(http.MethodGet, "/", nil), alice))

	// 一覧はエラー時のリダイレクト先でもあるため、リダイレクトせずにエラーを返す
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "db down") {
		t.Error("internal error details should not be exposed")
	}
}

// --- POST /user/add.html テスト ---

func TestCustomerHandler_Create_Form(t *testing.T) {
	var gotOwner string
	var gotInput customer.Input
	svc := &mockCustomerService{
		createFn: func(_ context.Context, ownerID string, in customer.Input) (*model.Customer, error) {
			gotOwner, gotInput = ownerID, in
			return sampleCustomer("c-new", ownerID), nil
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	req := formRequest(http.MethodPost, "/user/add.html", url.Values{
		"first_name":   {"Taro"},
		"last_name":    {"Yamada"},
		"email":        {"taro@example.com"},
		"phone_number": {"090-0000-0000"},
		"age":          {"30"},
		"country":      {"Japan"},
		"gender":       {"Male"},
		"user_id":      {"user-bob"},
	})
	w := httptest.NewRecorder()

	h.Create(w, withCaller(req, alice))

	assertRedirect(t, w, "/")
	if gotOwner != "user-alice" {
		t.Errorf("ownerID = %q, want user-alice (payload owner must be ignored)", gotOwner)
	}
	want := customer.Input{
		FirstName: "Taro", LastName: "Yamada", Email: "taro@example.com",
		PhoneNumber: "090-0000-0000", Age: "30", Country: "Japan", Gender: "Male",
	}
	if gotInput != want {
		t.Errorf("input = %+v, want %+v", gotInput, want)
	}
}

func TestCustomerHandler_Create_JSON(t *testing.T) {
	var gotInput customer.Input
	svc := &mockCustomerService{
		createFn: func(_ context.Context, ownerID string, in customer.Input) (*model.Customer, error) {
			gotInput = in
			return sampleCustomer("c-new", ownerID), nil
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	req := httptest.NewRequest(http.MethodPost, "/user/add.html", strings.NewReader(
		`{"first_name":"Taro","last_name":"Yamada","email":"taro@example.com","phone_number":"1","age":41,"country":"Japan","gender":"Male"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.Create(w, withCaller(req, alice))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if gotInput.Age != "41" {
		t.Errorf("age = %q, want 41", gotInput.Age)
	}
	var body customerResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != "c-new" {
		t.Errorf("id = %q, want c-new", body.ID)
	}
}

func TestCustomerHandler_Create_ValidationError(t *testing.T) {
	svc := &mockCustomerService{
		createFn: func(context.Context, string, customer.Input) (*model.Customer, error) {
			return nil, model.NewValidationError("名を入力してください。", "国を入力してください。")
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	t.Run("form", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Create(w, withCaller(formRequest(http.MethodPost, "/user/add.html", url.Values{}), alice))

		assertRedirect(t, w, "/user/add.html")
		if f := flashOf(t, w); !strings.Contains(f.Message, "国を入力してください。") {
			t.Errorf("flash message = %q", f.Message)
		}
	})

	t.Run("json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/user/add.html", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		h.Create(w, withCaller(req, alice))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if body := parseAPIErrorResponse(t, w); len(body.Details) != 2 {
			t.Errorf("details = %v, want 2 entries", body.Details)
		}
	})
}

// --- GET /edit/{id}, /view/{id} テスト ---

func TestCustomerHandler_Edit_RendersFormWithMethodOverride(t *testing.T) {
	svc := &mockCustomerService{
		getFn: func(_ context.Context, ownerID, id string) (*model.Customer, error) {
			return sampleCustomer(id, ownerID), nil
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/edit/c-1", nil), "id", "c-1")
	w := httptest.NewRecorder()

	h.Edit(w, withCaller(req, alice))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`action="/edit/c-1"`, `name="_method" value="PUT"`, `value="Taro"`, `value="30"`, `value="Male" selected`} {
		if !strings.Contains(body, want) {
			t.Errorf("body should contain %q", want)
		}
	}
}

func TestCustomerHandler_View_NotFound(t *testing.T) {
	h := NewCustomerHandler(&mockCustomerService{}, newTestRenderer(t))

	t.Run("html redirects to list", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/view/c-1", nil), "id", "c-1")
		w := httptest.NewRecorder()

		h.View(w, withCaller(req, bob))

		assertRedirect(t, w, "/")
		if f := flashOf(t, w); f.Message != model.NewRecordNotFoundError().Message {
			t.Errorf("flash message = %q", f.Message)
		}
	})

	t.Run("json returns 404", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/view/c-1", nil), "id", "c-1")
		req.Header.Set("Accept", "application/json")
		w := httptest.NewRecorder()

		h.View(w, withCaller(req, bob))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
		if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeRecordNotFound {
			t.Errorf("code = %q", body.Code)
		}
	})
}

func TestCustomerHandler_View_Renders(t *testing.T) {
	svc := &mockCustomerService{
		getFn: func(_ context.Context, ownerID, id string) (*model.Customer, error) {
			return sampleCustomer(id, ownerID), nil
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/view/c-1", nil), "id", "c-1")
	w := httptest.NewRecorder()

	h.View(w, withCaller(req, alice))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<h1>Taro Yamada</h1>") {
		t.Error("body should contain the full name heading")
	}
}

// --- PUT/DELETE /edit/{id} テスト ---

func TestCustomerHandler_Update(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantLocation string
	}{
		{"success", nil, "/view/c-1"},
		{"validation error returns to form", model.NewValidationError("年齢は0から150の整数で入力してください。"), "/edit/c-1"},
		{"not found returns to list", model.NewRecordNotFoundError(), "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCustomerService{
				updateFn: func(_ context.Context, ownerID, id string, in customer.Input) (*model.Customer, error) {
					if ownerID != "user-alice" || id != "c-1" {
						t.Errorf("Update(%q, %q)", ownerID, id)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return sampleCustomer(id, ownerID), nil
				},
			}
			h := NewCustomerHandler(svc, newTestRenderer(t))

			req := formRequest(http.MethodPut, "/edit/c-1", url.Values{"first_name": {"Jiro"}})
			req = withChiURLParam(req, "id", "c-1")
			w := httptest.NewRecorder()

			h.Update(w, withCaller(req, alice))

			assertRedirect(t, w, tt.wantLocation)
		})
	}
}

func TestCustomerHandler_Delete(t *testing.T) {
	var deleted string
	svc := &mockCustomerService{
		deleteFn: func(_ context.Context, ownerID, id string) error {
			if ownerID != "user-alice" {
				t.Errorf("ownerID = %q", ownerID)
			}
			deleted = id
			return nil
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	t.Run("html", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodDelete, "/edit/c-1", nil), "id", "c-1")
		w := httptest.NewRecorder()

		h.Delete(w, withCaller(req, alice))

		assertRedirect(t, w, "/")
		if deleted != "c-1" {
			t.Errorf("deleted = %q, want c-1", deleted)
		}
	})

	t.Run("json", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodDelete, "/edit/c-2", nil), "id", "c-2")
		req.Header.Set("Accept", "application/json")
		w := httptest.NewRecorder()

		h.Delete(w, withCaller(req, alice))

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})
}

// --- POST /search テスト ---

func TestCustomerHandler_Search(t *testing.T) {
	var gotText string
	svc := &mockCustomerService{
		searchFn: func(_ context.Context, ownerID, text string) ([]*model.Customer, error) {
			if ownerID != "user-alice" {
				t.Errorf("ownerID = %q", ownerID)
			}
			gotText = text
			return []*model.Customer{}, nil
		},
	}
	h := NewCustomerHandler(svc, newTestRenderer(t))

	w := httptest.NewRecorder()
	h.Search(w, withCaller(formRequest(http.MethodPost, "/search", url.Values{"search": {"yama"}}), alice))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotText != "yama" {
		t.Errorf("text = %q, want yama", gotText)
	}
	body := w.Body.String()
	if !strings.Contains(body, "該当する顧客はいません。") {
		t.Error("empty search should show no-match message")
	}
	if !strings.Contains(body, `value="yama"`) {
		t.Error("search box should keep the query")
	}
}

func TestCustomerHandler_NoCaller_Rejected(t *testing.T) {
	h := NewCustomerHandler(&mockCustomerService{}, newTestRenderer(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
