package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"teamflow/internal/middleware"
	"teamflow/internal/services"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// actorID returns the authenticated user or writes a 401.
func actorID(c *gin.Context) (string, bool) {
	id := middleware.UserID(c)
	if id == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return "", false
	}
	return id, true
}

// respondError maps service errors onto HTTP statuses. op is the
// "[entity][action]" tag used in log lines.
func respondError(c *gin.Context, op string, err error) {
	entry := log.WithError(err).WithFields(log.Fields{"op": op, "user_id": middleware.UserID(c)})

	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		entry.Info("request rejected")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	case errors.Is(err, services.ErrForbidden):
		entry.Warn("access denied")
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict"})
	case errors.Is(err, services.ErrReportsDisabled):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		entry.Info("request cancelled")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled"})
	default:
		entry.Error("request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, op string, err error) {
	log.WithError(err).WithField("op", op).Info("bad request")
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// queryList collects a repeated and/or comma separated query parameter.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseDate accepts a calendar date (2006-01-02) or RFC3339.
func parseDate(field, v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errors.New("invalid " + field + " (YYYY-MM-DD or RFC3339)")
	}
	return &t, nil
}

// optionalInt distinguishes an absent JSON field from an explicit null.
type optionalInt struct {
	Set   bool
	Value *int
}

func (o *optionalInt) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}
