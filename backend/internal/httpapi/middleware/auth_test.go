package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func fakeAuthService(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/verify" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = w.Write([]byte(`{"userId":7,"username":"editor","type":"access"}`))
		case "Bearer refresh":
			_, _ = w.Write([]byte(`{"userId":7,"username":"editor","type":"refresh"}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"token expired"}`))
		}
	}))
}

func newRouter(authURL string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/admin", AuthMiddleware(authURL, nil), func(c *gin.Context) {
		c.String(http.StatusOK, "%d %s", c.GetUint64("userId"), c.GetString("username"))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	auth := fakeAuthService(t)
	defer auth.Close()
	r := newRouter(auth.URL + "/")

	cases := []struct {
		header string
		status int
		body   string
	}{
		{"Bearer good", http.StatusOK, "7 editor"},
		{"bearer good", http.StatusOK, "7 editor"},
		{"", http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"Basic abc", http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"Bearer stale", http.StatusUnauthorized, "token expired"},
		{"Bearer refresh", http.StatusUnauthorized, "access token required"},
		{"Bearer broken", http.StatusBadGateway, "AUTH_UPSTREAM_ERROR"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("%q: status = %d, want %d", tc.header, w.Code, tc.status)
		}
		if !strings.Contains(w.Body.String(), tc.body) {
			t.Fatalf("%q: body = %q, want it to contain %q", tc.header, w.Body.String(), tc.body)
		}
	}
}

func TestAuthMiddleware_Unreachable(t *testing.T) {
	auth := fakeAuthService(t)
	url := auth.URL
	auth.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set("Authorization", "Bearer good")
	newRouter(url).ServeHTTP(w, req)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestExtractBearer(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"BEARER  abc ": "abc",
		"Bearer ":      "",
		"abc":          "",
	}
	for in, want := range cases {
		if got := extractBearer(in); got != want {
			t.Fatalf("extractBearer(%q) = %q, want %q", in, got, want)
		}
	}
}
