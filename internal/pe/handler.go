// Package pe serves the policy engine's per-request graph endpoint: it
// extracts client parameters, negotiates the content type, runs the filter
// pipeline, and maps failures onto the HTTP error contract.
package pe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
	"github.com/openshift/cincinnati/internal/plugin/builtin/versioned"
	"github.com/openshift/cincinnati/internal/server"
	cincerrors "github.com/openshift/cincinnati/pkg/errors"
)

// MissingChannelMessage is the stable message of the missing-channel error.
const MissingChannelMessage = "mandatory client parameters missing: channel"

// Handler answers graph requests by running the filter pipeline. The
// pipeline instance is shared across requests so source plugins keep their
// caches; runs execute concurrently.
type Handler struct {
	pipeline *plugin.Pipeline
	logger   zerolog.Logger
	ready    atomic.Bool
}

// NewHandler creates the policy engine handler.
func NewHandler(pipeline *plugin.Pipeline, logger zerolog.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: logger}
}

// Ready reports whether at least one request ran the whole pipeline
// successfully. A request that obtains the upstream graph but then fails in
// a later plugin (for example on an invalid channel) does not count.
func (h *Handler) Ready() bool {
	return h.ready.Load()
}

// RegisterRoutes attaches the graph endpoint, its legacy alias, and the
// OpenAPI document under the path prefix.
func (h *Handler) RegisterRoutes(router *gin.Engine, prefix string) {
	group := router.Group(prefix)
	group.GET("graph", h.Graph)
	group.GET("v1/graph", h.Graph)
	group.GET("openapi", h.OpenAPI)
}

// Graph runs the per-request pipeline and writes the filtered graph.
func (h *Handler) Graph(c *gin.Context) {
	contentType, ok := negotiate(c.GetHeader("Accept"))
	if !ok {
		server.WriteError(c, http.StatusNotAcceptable, server.KindInvalidContentType,
			"the requested content type is not supported")
		return
	}

	query := c.Request.URL.Query()
	if _, present := query[plugin.ParamChannel]; !present {
		server.WriteError(c, http.StatusBadRequest, server.KindMissingParams, MissingChannelMessage)
		return
	}

	params := plugin.Parameters{
		plugin.ParamChannel:   c.Query(plugin.ParamChannel),
		plugin.ParamAccept:    contentType,
		plugin.ParamRequestID: server.GetRequestID(c),
	}
	if arch := c.Query(plugin.ParamArch); arch != "" {
		params[plugin.ParamArch] = arch
	}
	// id and version are informational; they are logged, never filtered on.
	if id := c.Query(plugin.ParamID); id != "" {
		params[plugin.ParamID] = id
	}
	if version := c.Query(plugin.ParamVersion); version != "" {
		params[plugin.ParamVersion] = version
	}

	h.logger.Debug().
		Str("request_id", params[plugin.ParamRequestID]).
		Str("channel", params[plugin.ParamChannel]).
		Str("arch", params[plugin.ParamArch]).
		Str("id", params[plugin.ParamID]).
		Str("version", params[plugin.ParamVersion]).
		Msg("graph request")

	out, err := h.pipeline.Run(c.Request.Context(), plugin.IO{Graph: graph.New(), Parameters: params})
	if err != nil {
		h.writeFailure(c, err)
		return
	}
	h.ready.Store(true)

	data, err := json.Marshal(out.Graph)
	if err != nil {
		server.WriteError(c, http.StatusInternalServerError, server.KindInternalError, err.Error())
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// writeFailure maps pipeline errors onto the error taxonomy.
func (h *Handler) writeFailure(c *gin.Context, err error) {
	var invalid *cincerrors.InvalidParamsError
	if errors.As(err, &invalid) {
		server.WriteError(c, http.StatusBadRequest, server.KindInvalidParams, invalid.Error())
		return
	}

	var upstream *cincerrors.UpstreamError
	if errors.As(err, &upstream) {
		server.WriteError(c, http.StatusBadGateway, upstream.Kind, upstream.Error())
		return
	}

	if errors.Is(err, context.Canceled) {
		// The client went away; nothing useful to write.
		c.Abort()
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		server.WriteError(c, http.StatusBadGateway, cincerrors.UpstreamKindUnreachable,
			"timed out obtaining the upstream graph")
		return
	}

	server.WriteError(c, http.StatusInternalServerError, server.KindInternalError, err.Error())
}

// negotiate picks the response media type for an Accept header. Absent and
// wildcard accepts select plain JSON; the versioned media type wins when
// explicitly listed; anything else is unacceptable.
func negotiate(accept string) (string, bool) {
	if strings.TrimSpace(accept) == "" {
		return versioned.MediaTypeJSON, true
	}

	plain := false
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mediaType {
		case versioned.MediaTypeCincinnatiV1:
			return versioned.MediaTypeCincinnatiV1, true
		case versioned.MediaTypeJSON, "*/*", "application/*":
			plain = true
		}
	}
	if plain {
		return versioned.MediaTypeJSON, true
	}
	return "", false
}
