package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/tenant"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// Login saja, tanpa permission khusus
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/dashboard/stats", h.GetStats)
}

func (h *Handler) GetStats(c *gin.Context) {
	st, err := h.Svc.Stats(c.Request.Context(), tenant.FromContext(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
