package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sakurairo/danmaku-relay/internal/event"
	"github.com/sakurairo/danmaku-relay/internal/session"
)

// statusResponse mirrors the upstream service's response bodies for the
// control endpoints.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleMessages returns the buffered messages, oldest first.
func (s *Server) handleMessages(c *gin.Context) {
	msgs := s.relay.Messages()
	if msgs == nil {
		// Empty array, not null, for JSON serialization.
		msgs = []event.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

// handleStatus reports whether a session is running and the buffer size.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.relay.Status())
}

// configureRequest carries the four open-live credential fields. APP_ID is
// accepted as either a JSON string or number; the web frontend sends
// whatever its stored configuration holds.
type configureRequest struct {
	AccessKeyID       string          `json:"ACCESS_KEY_ID"`
	AccessKeySecret   string          `json:"ACCESS_KEY_SECRET"`
	AppID             json.RawMessage `json:"APP_ID"`
	RoomOwnerAuthCode string          `json:"ROOM_OWNER_AUTH_CODE"`
}

func (r configureRequest) credentials() (session.Credentials, error) {
	creds := session.Credentials{
		AccessKeyID:       r.AccessKeyID,
		AccessKeySecret:   r.AccessKeySecret,
		RoomOwnerAuthCode: r.RoomOwnerAuthCode,
	}

	raw := strings.Trim(strings.TrimSpace(string(r.AppID)), `"`)
	if raw == "" || raw == "null" {
		// Leave AppID zero; Validate reports it as missing.
		return creds, nil
	}
	appID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return creds, &session.CredentialError{Missing: []string{"APP_ID"}}
	}
	creds.AppID = appID
	return creds, nil
}

// handleConfigure stops any running session and starts a new one from the
// posted credentials.
func (s *Server) handleConfigure(c *gin.Context) {
	var req configureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	creds, err := req.credentials()
	if err == nil {
		err = s.relay.Configure(c.Request.Context(), creds)
	}
	if err != nil {
		var credErr *session.CredentialError
		if errors.As(err, &credErr) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: credErr.Error()})
			return
		}
		s.logger.Error("configure failed", "error", err)
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		Status:  "success",
		Message: "danmaku session configured",
	})
}

// handleStop tears down the running session. Stopping while idle is a
// caller mistake, reported distinctly from success.
func (s *Server) handleStop(c *gin.Context) {
	if err := s.relay.Stop(c.Request.Context()); err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "no session is running"})
			return
		}
		s.logger.Error("stop failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to stop session"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		Status:  "success",
		Message: "danmaku session stopped",
	})
}
