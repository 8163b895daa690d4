package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"push-dispatcher/internal/domain"
	httpinfra "push-dispatcher/internal/infra/http"
	"push-dispatcher/internal/usecase/devices"
)

const maxBodyBytes = 64 << 10

// Handler обслуживает API push-настроек пользователя.
type Handler struct {
	devices  *devices.Service
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(svc *devices.Service, logger zerolog.Logger) *Handler {
	return &Handler{devices: svc, validate: validator.New(), log: logger}
}

// Register подключает маршруты /api/v1 за проверкой Firebase ID token.
func (h *Handler) Register(r chi.Router, verifier httpinfra.TokenVerifier) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httpinfra.FirebaseAuthMiddleware(verifier))
		r.Get("/push/settings", h.getSettings)
		r.Post("/push/devices", h.registerDevice)
		r.Delete("/push/devices/{token}", h.unregisterDevice)
		r.Put("/push/preferences", h.updatePreferences)
		r.Put("/push/enabled", h.setEnabled)
		r.Put("/push/quiet-hours", h.setQuietHours)
		r.Put("/push/timezone", h.setTimezone)
		r.Delete("/account", h.deleteAccount)
	})
}

type deviceJSON struct {
	Token      string    `json:"token"`
	Platform   string    `json:"platform"`
	DeviceName string    `json:"deviceName,omitempty"`
	AppVersion string    `json:"appVersion,omitempty"`
	LastSeen   time.Time `json:"lastSeen"`
}

type settingsJSON struct {
	UserID      string             `json:"userId"`
	Enabled     bool               `json:"enabled"`
	Preferences map[string]bool    `json:"preferences"`
	QuietHours  *domain.QuietHours `json:"quietHours"`
	Timezone    string             `json:"timezone"`
	Devices     []deviceJSON       `json:"devices"`
}

func toSettingsJSON(s domain.RecipientSettings) settingsJSON {
	prefs := make(map[string]bool, len(domain.Topics()))
	for _, topic := range domain.Topics() {
		prefs[string(topic)] = !s.Preferences.Disabled(topic)
	}
	return settingsJSON{
		UserID:      s.UserID,
		Enabled:     s.Enabled,
		Preferences: prefs,
		QuietHours:  s.QuietHours,
		Timezone:    s.Timezone,
		Devices:     toDevicesJSON(s.DeviceTokens),
	}
}

func toDevicesJSON(tokens []domain.DeviceToken) []deviceJSON {
	out := make([]deviceJSON, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, deviceJSON(t))
	}
	return out
}

type registerDeviceRequest struct {
	Token      string `json:"token" validate:"required,max=512"`
	Platform   string `json:"platform" validate:"omitempty,oneof=ios android web"`
	DeviceName string `json:"deviceName" validate:"max=200"`
	AppVersion string `json:"appVersion" validate:"max=50"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type quietHoursRequest struct {
	StartHour *int `json:"startHour" validate:"required,min=0,max=23"`
	EndHour   *int `json:"endHour" validate:"required,min=0,max=23"`
}

type timezoneRequest struct {
	Timezone string `json:"timezone" validate:"required,max=64"`
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.devices.GetSettings(r.Context(), httpinfra.UserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toSettingsJSON(settings))
}

func (h *Handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if !h.decode(w, r, &req) {
		return
	}
	tokens, err := h.devices.RegisterDevice(r.Context(), httpinfra.UserID(r), domain.DeviceToken{
		Token:      req.Token,
		Platform:   req.Platform,
		DeviceName: req.DeviceName,
		AppVersion: req.AppVersion,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"devices": toDevicesJSON(tokens)})
}

func (h *Handler) unregisterDevice(w http.ResponseWriter, r *http.Request) {
	token, err := url.PathUnescape(chi.URLParam(r, "token"))
	if err != nil || token == "" {
		httpinfra.WriteError(w, http.StatusBadRequest, domain.ErrInvalidToken)
		return
	}
	removed, err := h.devices.UnregisterDevice(r.Context(), httpinfra.UserID(r), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !removed {
		h.fail(w, r, domain.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var changes map[string]bool
	if !h.decode(w, r, &changes) {
		return
	}
	settings, err := h.devices.UpdatePreferences(r.Context(), httpinfra.UserID(r), changes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toSettingsJSON(settings))
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if !h.decode(w, r, &req) {
		return
	}
	settings, err := h.devices.SetEnabled(r.Context(), httpinfra.UserID(r), *req.Enabled)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toSettingsJSON(settings))
}

func (h *Handler) setQuietHours(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	var quiet *domain.QuietHours
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		var req quietHoursRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("некорректный JSON: %w", err))
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", domain.ErrInvalidQuietHours, err))
			return
		}
		quiet = &domain.QuietHours{StartHour: *req.StartHour, EndHour: *req.EndHour}
	}
	settings, err := h.devices.SetQuietHours(r.Context(), httpinfra.UserID(r), quiet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toSettingsJSON(settings))
}

func (h *Handler) setTimezone(w http.ResponseWriter, r *http.Request) {
	var req timezoneRequest
	if !h.decode(w, r, &req) {
		return
	}
	settings, err := h.devices.SetTimezone(r.Context(), httpinfra.UserID(r), req.Timezone)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toSettingsJSON(settings))
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.DeleteAccount(r.Context(), httpinfra.UserID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode читает JSON и проверяет структуру; при ошибке ответ уже отправлен.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("некорректный JSON: %w", err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			httpinfra.WriteError(w, http.StatusBadRequest, err)
			return false
		}
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrInvalidTopic),
		errors.Is(err, domain.ErrInvalidQuietHours),
		errors.Is(err, domain.ErrInvalidTimezone):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", httpinfra.RequestID(r)).
			Str("user", httpinfra.UserID(r)).
			Str("path", r.URL.Path).
			Msg("api: ошибка обработки запроса")
		httpinfra.WriteError(w, status, errors.New("internal error"))
		return
	}
	httpinfra.WriteError(w, status, err)
}
