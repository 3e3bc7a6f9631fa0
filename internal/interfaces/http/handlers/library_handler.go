package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyshape/internal/application/library"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// LibraryHandler exposes stored shape libraries over HTTP.
type LibraryHandler struct {
	svc    library.Service
	logger logging.Logger
}

func NewLibraryHandler(svc library.Service, logger logging.Logger) *LibraryHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LibraryHandler{svc: svc, logger: logger.Named("library_handler")}
}

// RegisterRoutes mounts the library endpoints on rg.
func (h *LibraryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	libs := rg.Group("/libraries")
	libs.POST("", h.Create)
	libs.GET("", h.List)
	libs.GET("/:name", h.Get)
	libs.DELETE("/:name", h.Delete)
	libs.POST("/:name/shapes", h.AddShapes)
	libs.GET("/:name/shapes", h.ListShapes)
	libs.POST("/:name/screen", h.Screen)
}

// Create handles POST /api/v1/libraries.
func (h *LibraryHandler) Create(c *gin.Context) {
	var req shapetypes.CreateLibraryRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, resp)
}

// List handles GET /api/v1/libraries?page=&page_size=.
func (h *LibraryHandler) List(c *gin.Context) {
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}
	resp, err := h.svc.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, resp)
}

// Get handles GET /api/v1/libraries/:name.
func (h *LibraryHandler) Get(c *gin.Context) {
	resp, err := h.svc.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, resp)
}

// Delete handles DELETE /api/v1/libraries/:name.
func (h *LibraryHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	if err := h.svc.Delete(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, shapetypes.DeleteLibraryResponse{Library: name, Deleted: true})
}

// AddShapes handles POST /api/v1/libraries/:name/shapes.
func (h *LibraryHandler) AddShapes(c *gin.Context) {
	var req shapetypes.AddShapesRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.svc.AddShapes(c.Request.Context(), c.Param("name"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, resp)
}

// ListShapes handles GET /api/v1/libraries/:name/shapes.
func (h *LibraryHandler) ListShapes(c *gin.Context) {
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}
	resp, err := h.svc.ListShapes(c.Request.Context(), c.Param("name"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, resp)
}

// Screen handles POST /api/v1/libraries/:name/screen.
func (h *LibraryHandler) Screen(c *gin.Context) {
	var req shapetypes.LibraryScreenRequest
	if !bindJSON(c, &req) {
		return
	}
	name := c.Param("name")
	resp, err := h.svc.Screen(c.Request.Context(), name, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("library screening served",
		logging.String("library", name),
		logging.String("reference", req.Reference.Name),
		logging.Int("screened", resp.Screened),
		logging.Int("hits", len(resp.Hits)))
	respondOK(c, resp)
}

// pagination reads page and page_size.  Missing values are left at zero for
// the service to default.
func pagination(c *gin.Context) (page, pageSize int, ok bool) {
	for _, p := range []struct {
		key string
		dst *int
	}{{"page", &page}, {"page_size", &pageSize}} {
		raw := c.Query(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondError(c, errors.InvalidParam("invalid pagination parameter").WithDetail(p.key+"="+raw))
			return 0, 0, false
		}
		*p.dst = v
	}
	return page, pageSize, true
}
