package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRouterServesHealthz(t *testing.T) {
	srv := NewServer(zerolog.Nop())

	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
}

func TestRouterRecoversFromPanic(t *testing.T) {
	srv := NewServer(zerolog.Nop())
	srv.Router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("авария")
	})

	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("паника обработчика должна давать 500, получен %d", rec.Code)
	}
}
