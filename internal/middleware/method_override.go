package middleware

import (
	"net/http"
	"strings"
)

// MethodOverrideField はHTMLフォームからHTTPメソッドを指定する項目名。
const MethodOverrideField = "_method"

// NewMethodOverrideMiddleware はPOSTフォームの_method項目でPUT/PATCH/DELETEを指定できるようにする。
// multipartフォームは本文を読まずにそのまま通す。
func NewMethodOverrideMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && isURLEncodedForm(r) {
				switch method := strings.ToUpper(r.PostFormValue(MethodOverrideField)); method {
				case http.MethodPut, http.MethodPatch, http.MethodDelete:
					r.Method = method
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
