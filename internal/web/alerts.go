package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/session"
	"github.com/username/ecoenergy-api/internal/tenant"
)

// ListAlerts shows the unresolved alerts unless is_resolved says otherwise.
func (h *Handler) ListAlerts(c *gin.Context) {
	f := alert.Filter{DeviceID: queryInt64(c, "device")}
	if sev, ok := alert.ParseSeverity(c.Query("severity")); ok {
		f.Severity = sev
	}
	resolved := c.DefaultQuery("is_resolved", "false")
	if b, err := strconv.ParseBool(resolved); err == nil {
		f.IsResolved = &b
	} else {
		resolved = ""
	}

	rows, page, err := h.Alerts.Page(c.Request.Context(), tenant.FromContext(c), f, alert.ListSpec.Parse(c, session.FromContext(c)))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "alerts", gin.H{
		"Title":      "Alertas",
		"Rows":       rows,
		"Page":       page,
		"Severities": alert.Severities,
		"Severity":   string(f.Severity),
		"Resolved":   resolved,
	})
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.ajaxResult(c, apperr.ErrNotFound, i18n.Message{})
		return
	}
	_, err = h.Alerts.Resolve(c.Request.Context(), tenant.FromContext(c), id)
	h.ajaxResult(c, err, i18n.M("AlertResolved", nil))
}
