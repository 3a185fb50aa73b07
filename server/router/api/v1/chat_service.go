package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/chatturn/server/chat"
	chaterrors "github.com/hrygo/chatturn/server/internal/errors"
	servermiddleware "github.com/hrygo/chatturn/server/middleware"
)

// ErrorResponse is the body of a failed turn.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SubmitTurn handles one chat message.
// POST /api/v1/chat/turns
//
// The X-User-ID header, when present, takes precedence over user_id in the body.
// Blocked and fallback-exhausted turns are 200 responses.
func (s *APIV1Service) SubmitTurn(c echo.Context) error {
	req := &chat.TurnRequest{}
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  string(chaterrors.ErrCodeInvalidArgument),
		})
	}
	if userID := c.Request().Header.Get(servermiddleware.UserIDHeader); userID != "" {
		req.UserID = userID
	}

	result, err := s.Chat.SubmitTurn(c.Request().Context(), req)
	if err != nil {
		return c.JSON(chaterrors.HTTPStatus(err), errorResponse(err))
	}
	return c.JSON(http.StatusOK, result)
}

func errorResponse(err error) ErrorResponse {
	var chatErr *chaterrors.ChatError
	if errors.As(err, &chatErr) {
		return ErrorResponse{Error: chatErr.Message, Code: string(chatErr.Code)}
	}
	slog.Error("chat turn failed", slog.String("error", err.Error()))
	return ErrorResponse{Error: "internal error"}
}

// ReloadSettings loads a new settings snapshot. A failed load keeps the current one.
// POST /api/v1/settings/reload
func (s *APIV1Service) ReloadSettings(c echo.Context) error {
	if s.Settings == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "settings are not reloadable"})
	}
	snapshot, err := s.Settings.Reload(c.Request().Context())
	if err != nil {
		slog.Warn("settings reload failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"version":   snapshot.Version,
		"loaded_at": snapshot.LoadedAt,
	})
}
