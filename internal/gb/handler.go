package gb

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openshift/cincinnati/internal/plugin/builtin/versioned"
	"github.com/openshift/cincinnati/internal/server"
)

// Handler serves the published snapshot.
type Handler struct {
	builder *Builder
}

// NewHandler creates the graph handler over the builder's snapshot slot.
func NewHandler(builder *Builder) *Handler {
	return &Handler{builder: builder}
}

// RegisterRoutes attaches the graph endpoint and its legacy alias under the
// path prefix.
func (h *Handler) RegisterRoutes(router *gin.Engine, prefix string) {
	group := router.Group(prefix)
	group.GET("graph", h.Graph)
	group.GET("v1/graph", h.Graph)
}

// Graph writes the current snapshot. Before the first successful build the
// endpoint reports unavailability; readiness probing keeps traffic away
// until then.
func (h *Handler) Graph(c *gin.Context) {
	snapshot := h.builder.Snapshot()
	if snapshot == nil {
		server.WriteError(c, http.StatusServiceUnavailable, server.KindInternalError, "graph not yet built")
		return
	}
	c.Data(http.StatusOK, versioned.MediaTypeJSON, snapshot.JSON)
}
