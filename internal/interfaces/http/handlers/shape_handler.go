package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyshape/internal/application/alignment"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// ShapeHandler exposes the shape service over HTTP.
type ShapeHandler struct {
	svc    alignment.Service
	logger logging.Logger
}

// NewShapeHandler creates a new ShapeHandler.
func NewShapeHandler(svc alignment.Service, logger logging.Logger) *ShapeHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ShapeHandler{svc: svc, logger: logger.Named("shape_handler")}
}

// RegisterRoutes mounts the shape endpoints on rg.
func (h *ShapeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	shapes := rg.Group("/shapes")
	shapes.POST("/properties", h.Properties)
	shapes.POST("/overlap", h.Overlap)
	shapes.POST("/align", h.Align)
	shapes.POST("/screen", h.Screen)
}

// Properties handles POST /api/v1/shapes/properties.
func (h *ShapeHandler) Properties(c *gin.Context) {
	var req shapetypes.PropertiesRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.svc.Properties(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, resp)
}

// Overlap handles POST /api/v1/shapes/overlap.
func (h *ShapeHandler) Overlap(c *gin.Context) {
	var req shapetypes.OverlapRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.svc.Overlap(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, resp)
}

// Align handles POST /api/v1/shapes/align.
func (h *ShapeHandler) Align(c *gin.Context) {
	var req shapetypes.AlignRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.svc.Align(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, resp)
}

// Screen handles POST /api/v1/shapes/screen.
func (h *ShapeHandler) Screen(c *gin.Context) {
	var req shapetypes.ScreenRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.svc.Screen(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("screening request served",
		logging.String("reference", req.Reference.Name),
		logging.Int("screened", resp.Screened),
		logging.Int("hits", len(resp.Hits)))
	respondOK(c, resp)
}
