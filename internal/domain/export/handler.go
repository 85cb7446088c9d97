package export

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrda/qrda-export/pkg/pagination"
)

// Handler provides the REST endpoints of the export service.
type Handler struct {
	svc *Service
}

// NewHandler creates a new export handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers export routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.PUT("/qrda", h.Export)
	api.GET("/exports", h.ListRuns)
}

// ErrorResponse is the body of a batch-fatal error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Export handles PUT /api/qrda.
func (h *Handler) Export(c echo.Context) error {
	var dto MeasureDTO
	if err := c.Bind(&dto); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}

	resp, err := h.svc.Run(c.Request().Context(), &dto)
	if err != nil {
		status, code := StatusFor(err)
		if status == http.StatusInternalServerError {
			return err
		}
		return c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
	}
	c.Response().Header().Set("X-Export-Run-ID", resp.RunID.String())
	return c.JSON(http.StatusOK, resp)
}

// ListRuns handles GET /api/exports.
func (h *Handler) ListRuns(c echo.Context) error {
	if !h.svc.HistoryEnabled() {
		return echo.NewHTTPError(http.StatusNotFound, "run history is not enabled")
	}
	pg, err := pagination.FromContext(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_query", Message: err.Error()})
	}
	runs, total, err := h.svc.ListRuns(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewPage(runs, total, pg).WithLinks(c.Path()))
}
