package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"pocketlm/internal/manager"
	"pocketlm/internal/store"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound("session", "x"), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("rename: %w", store.ErrNotFound("session", "x")), http.StatusNotFound},
		{"model not found", manager.ErrModelNotFound("m"), http.StatusNotFound},
		{"not loaded", manager.ErrNotLoaded, http.StatusConflict},
		{"busy", manager.ErrBusy("send", manager.StateGenerating), http.StatusTooManyRequests},
		{"dependency", manager.ErrDependencyUnavailable("llama missing"), http.StatusServiceUnavailable},
		{"handler error", statusError{code: http.StatusTeapot, msg: "tea"}, http.StatusTeapot},
		{"generic", io.EOF, http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Fatalf("%s: statusFor(%v) = %d, want %d", c.name, c.err, got, c.want)
		}
	}
}
