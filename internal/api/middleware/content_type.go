package middleware

import (
	"mime"
	"net/http"

	"github.com/driveless/driveless/internal/api/models"
)

// ContentTypeJSON defaults the response Content-Type to application/json.
// Handlers that set their own type win.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON answers 415 when a request body is declared as anything but
// JSON. An absent Content-Type is let through and left to the decoder.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if carriesBody(r.Method) && !declaresJSON(r.Header.Get("Content-Type")) {
			problem := models.NewUnsupportedMediaType(GetRequestID(r.Context()), "Content-Type must be application/json")
			problem.Instance = r.URL.Path
			problem.Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func declaresJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
