package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/infomate/internal/middleware"
	"github.com/hitoshi/infomate/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページテンプレート名。各ページはlayout.htmlと組み合わせて解析する。
const (
	pageSignUp         = "signup.html"
	pageSignIn         = "signin.html"
	pageForgotPassword = "forgot_password.html"
	pageResetPassword  = "reset_password.html"
	pageIndex          = "index.html"
	pageCustomerForm   = "customer_form.html"
	pageCustomerView   = "customer_view.html"
	pageProfile        = "profile.html"
)

var pages = []string{
	pageSignUp,
	pageSignIn,
	pageForgotPassword,
	pageResetPassword,
	pageIndex,
	pageCustomerForm,
	pageCustomerView,
	pageProfile,
}

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
}

// PageData はレイアウトテンプレートに渡す共通データ。
// Callerはログイン中のみ設定され、ヘッダーにセッションのスナップショットを表示する。
type PageData struct {
	Title     string
	Caller    *model.Caller
	Flash     *middleware.Flash
	CSRFToken string
	Data      any
}

// Renderer は埋め込みテンプレートからHTMLページを描画する。
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer は全ページのテンプレートを解析してRendererを生成する。
func NewRenderer() (*Renderer, error) {
	rd := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		t, err := template.New(page).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		rd.templates[page] = t
	}
	return rd, nil
}

// Render はページを描画する。フラッシュメッセージはここで読み出され削除される。
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, statusCode int, page, title string, data any) {
	t, ok := rd.templates[page]
	if !ok {
		slog.Error("template not found", slog.String("page", page))
		middleware.WriteInternalServerError(w)
		return
	}

	caller, _ := middleware.CallerFromContext(r.Context())
	pd := PageData{
		Title:     title,
		Caller:    caller,
		Flash:     middleware.PopFlash(w, r),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Data:      data,
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", pd); err != nil {
		slog.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	buf.WriteTo(w)
}
