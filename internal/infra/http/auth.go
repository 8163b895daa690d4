package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const uidKey ctxKey = "firebaseUID"

// TokenVerifier проверяет Firebase ID token. Реализуется *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseAuthMiddleware проверяет заголовок Authorization: Bearer <ID token>
// и кладёт UID пользователя в контекст запроса.
func FirebaseAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, http.StatusUnauthorized, errors.New("authorization header is missing"))
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				WriteError(w, http.StatusUnauthorized, errors.New("authorization header must be in Bearer format"))
				return
			}
			token, err := verifier.VerifyIDToken(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil || token == nil || token.UID == "" {
				WriteError(w, http.StatusUnauthorized, errors.New("invalid or expired ID token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), token.UID)))
		})
	}
}

// WithUserID кладёт UID в контекст.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidKey, uid)
}

// UserID возвращает UID, установленный FirebaseAuthMiddleware.
func UserID(r *http.Request) string {
	uid, _ := r.Context().Value(uidKey).(string)
	return uid
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// WriteJSON отправляет тело в JSON.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
