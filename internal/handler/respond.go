package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
)

// UsernameHeader carries the caller identity set by the authenticating gateway.
const UsernameHeader = "X-Username"

type ctxKey struct{}

// Identity copies the X-Username header into the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxKey{}, r.Header.Get(UsernameHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Username returns the caller identity, or "" when none was sent.
func Username(ctx context.Context) string {
	u, _ := ctx.Value(ctxKey{}).(string)
	return u
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
				"user", Username(r.Context()),
			)
		})
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps the application error taxonomy to HTTP status codes.
func StatusFor(err error) int {
	var (
		denied     *appErrors.AuthorizationDeniedError
		campaignNF *appErrors.ErrCampaignNotFound
		notFound   *appErrors.ErrNotFound
		invalid    *appErrors.ValidationError
		compile    *appErrors.CompileError
		schema     *appErrors.SchemaMismatchError
		transition *appErrors.InvalidTransitionError
		resolution *appErrors.ResolutionError
	)
	switch {
	case errors.As(err, &denied):
		return http.StatusForbidden
	case errors.As(err, &campaignNF), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &compile):
		return http.StatusBadRequest
	case errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &schema):
		return http.StatusUnprocessableEntity
	case errors.As(err, &resolution):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorBody adds the detail a caller needs to act on the error.
func errorBody(err error) map[string]any {
	body := map[string]any{"error": err.Error()}

	var (
		denied  *appErrors.AuthorizationDeniedError
		invalid *appErrors.ValidationError
		compile *appErrors.CompileError
		schema  *appErrors.SchemaMismatchError
		side    *appErrors.SideEffectError
	)
	if errors.As(err, &denied) {
		body["required_roles"] = denied.Required
	}
	if errors.As(err, &invalid) {
		body["field"] = invalid.Field
	}
	if errors.As(err, &compile) {
		body["field"] = compile.Field
	}
	if errors.As(err, &schema) && schema.Column != "" {
		body["field"] = schema.Column
	}
	if errors.As(err, &side) {
		body["stage"] = side.Stage
		body["committed_status"] = side.Status
	}
	return body
}

// WriteError writes err with its mapped status. Unexpected errors are logged
// and hidden from the caller.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		var side *appErrors.SideEffectError
		if !errors.As(err, &side) {
			WriteJSON(w, status, map[string]any{"error": "internal server error"})
			return
		}
	}
	WriteJSON(w, status, errorBody(err))
}

// WriteErrorWith is WriteError with an extra "result" member, used when an
// operation partly succeeded.
func WriteErrorWith(w http.ResponseWriter, r *http.Request, err error, result any) {
	body := errorBody(err)
	body["result"] = result
	slog.WarnContext(r.Context(), "request partly failed", "path", r.URL.Path, "error", err)
	WriteJSON(w, StatusFor(err), body)
}

// Int64Param reads a positive integer chi URL parameter.
func Int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, appErrors.NewValidation(name, "must be a positive integer")
	}
	return v, nil
}

// Page reads page and page_size query parameters; the service clamps them.
func Page(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}
