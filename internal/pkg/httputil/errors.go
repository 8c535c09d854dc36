package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to a status and a detail message.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // err.Error() when empty
}

// ServerErrorDetail is the detail returned for unmapped errors.
const ServerErrorDetail = "A server error occurred."

// HandleError writes the first mapping whose sentinel matches err as a
// {"detail": ...} body. Unmatched errors are logged and answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		ctxlog.FromContext(ctx).Debug("request rejected", "status", m.Status, "error", err)
		Error(w, m.Status, msg)
		return
	}

	if errors.Is(err, context.Canceled) {
		ctxlog.FromContext(ctx).Info("request canceled by client", "error", err)
	} else {
		ctxlog.FromContext(ctx).Error("internal error", "error", err)
	}
	Error(w, http.StatusInternalServerError, ServerErrorDetail)
}
