package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFlash_SetThenPop(t *testing.T) {
	w := httptest.NewRecorder()
	SetFlash(w, FlashSuccess, "顧客を登録しました。")

	c := findCookie(w.Result(), flashCookieName)
	if c == nil {
		t.Fatal("expected flash cookie")
	}
	if !c.HttpOnly {
		t.Error("flash cookie should be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	w2 := httptest.NewRecorder()

	f := PopFlash(w2, req)
	if f == nil {
		t.Fatal("PopFlash() = nil")
	}
	if f.Type != FlashSuccess || f.Message != "顧客を登録しました。" {
		t.Errorf("flash = %+v", f)
	}

	// 読み出し後はCookieを削除する
	cleared := findCookie(w2.Result(), flashCookieName)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("flash cookie should be cleared, got %+v", cleared)
	}
}

func TestPopFlash_NoCookie(t *testing.T) {
	w := httptest.NewRecorder()
	if f := PopFlash(w, httptest.NewRequest(http.MethodGet, "/", nil)); f != nil {
		t.Errorf("PopFlash() = %+v, want nil", f)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("no cookie should be written")
	}
}

func TestPopFlash_CorruptCookie(t *testing.T) {
	for _, v := range []string{"!!!not-base64", "bm90LWpzb24"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: flashCookieName, Value: v})
		w := httptest.NewRecorder()

		if f := PopFlash(w, req); f != nil {
			t.Errorf("PopFlash(%q) = %+v, want nil", v, f)
		}
		if c := findCookie(w.Result(), flashCookieName); c == nil || c.MaxAge >= 0 {
			t.Errorf("corrupt flash cookie should be cleared")
		}
	}
}
