package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/recordkit/recordkit/internal/middleware"
)

func TestAPIKeyAuth(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	tests := []struct {
		name       string
		configured string
		authHeader string
		wantCode   int
	}{
		{"valid token", "good-key-0123456789", "Bearer good-key-0123456789", http.StatusOK},
		{"missing header", "good-key-0123456789", "", http.StatusUnauthorized},
		{"invalid token", "good-key-0123456789", "Bearer bad-key", http.StatusUnauthorized},
		{"no bearer prefix", "good-key-0123456789", "good-key-0123456789", http.StatusUnauthorized},
		{"auth disabled", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(middleware.APIKeyAuth(tt.configured, log))
			r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("got %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", ""},
		{"abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		if tt.header != "" {
			c.Request.Header.Set("Authorization", tt.header)
		}

		if got := middleware.ExtractBearerToken(c); got != tt.want {
			t.Errorf("ExtractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
