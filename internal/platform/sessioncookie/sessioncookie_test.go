package sessioncookie

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veravid/veravid/internal/platform/requestmeta"
)

func TestReadMissingCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := Read(r); ok {
		t.Fatal("Read should report missing cookie")
	}
}

func TestReadTrimsValue(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: Name, Value: " sess-1 "})

	value, ok := Read(r)
	if !ok || value != "sess-1" {
		t.Fatalf("Read = %q/%v, want sess-1/true", value, ok)
	}
}

func TestWriteSetsSecureOnHTTPS(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "https://veravid.test/", nil)
	r.Header.Set("X-Forwarded-Proto", "https")

	Write(w, r, requestmeta.SchemePolicy{TrustForwardedProto: true}, "sess-1")

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("len(cookies) = %d, want 1", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Value != "sess-1" || !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("cookie = %+v, want secure http-only session cookie", cookie)
	}
}

func TestClearExpiresCookie(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Clear(w, r, requestmeta.SchemePolicy{})

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("cookies = %+v, want one expired cookie", cookies)
	}
}
