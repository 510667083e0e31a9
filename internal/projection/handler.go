package projection

import (
	"errors"
	"net/http"
	"strings"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	httperr "github.com/aevon-lab/adselect/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all projection API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/stats/banners/:banner_id/history", s.HandleQueryHistory)
}

// HandleQueryHistory handles GET /v1/stats/banners/:banner_id/history
// Query parameters: start, end (RFC 3339), granularity (total | 1d), keyword (name=value)
func (s *Service) HandleQueryHistory(c *gin.Context) {
	var query struct {
		Start       time.Time `form:"start" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		End         time.Time `form:"end" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		Granularity string    `form:"granularity"`
		Keyword     string    `form:"keyword"`
	}

	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	req := HistoryQueryRequest{
		BannerID:    c.Param("banner_id"),
		Start:       query.Start,
		End:         query.End,
		Granularity: query.Granularity,
	}
	if query.Keyword != "" {
		name, value, ok := strings.Cut(query.Keyword, "=")
		if !ok {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidRequestError,
				Message:   "Invalid query parameters",
				Details:   "keyword must be name=value",
			})
			return
		}
		req.Keyword = &v1.Keyword{Key: name, Value: value}
	}

	resp, err := s.QueryHistory(req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuery):
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidRequestError,
				Message:   "Invalid history query",
				Details:   err.Error(),
			})
		case errors.Is(err, ErrUnknownBanner):
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   "Banner not found in the live snapshot",
				Details:   req.BannerID,
			})
		default:
			c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
				ErrorType: httperr.HttpInternalError,
				Message:   "Failed to query history",
			})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
