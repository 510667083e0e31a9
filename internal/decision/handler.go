package decision

import (
	"errors"
	"log/slog"
	"net/http"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	httperr "github.com/aevon-lab/adselect/internal/core/errors"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the selection and management routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/select", s.HandleSelect)

	r.PUT("/v1/campaigns", s.HandleUpsertCampaign)
	r.DELETE("/v1/campaigns/:campaign_id", s.HandleDeleteCampaign)
	r.PUT("/v1/banners", s.HandleUpsertBanner)

	r.POST("/v1/rebuild", s.HandleRebuild)
	r.GET("/v1/stats", s.HandleSummary)
	r.GET("/v1/stats/banners/:banner_id", s.HandleBannerStats)
}

// HandleSelect handles POST /v1/select.
func (s *Service) HandleSelect(c *gin.Context) {
	var req v1.SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, "Invalid JSON body", err.Error())
		return
	}

	resp, err := s.Select(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, "Invalid selection request", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleUpsertCampaign handles PUT /v1/campaigns.
func (s *Service) HandleUpsertCampaign(c *gin.Context) {
	var campaign v1.Campaign
	if err := c.ShouldBindJSON(&campaign); err != nil {
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, "Invalid JSON body", err.Error())
		return
	}

	if err := s.UpsertCampaign(c.Request.Context(), &campaign); err != nil {
		writeServiceError(c, "Invalid campaign", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "campaign_id": campaign.CampaignID})
}

// HandleUpsertBanner handles PUT /v1/banners.
func (s *Service) HandleUpsertBanner(c *gin.Context) {
	var banner v1.Banner
	if err := c.ShouldBindJSON(&banner); err != nil {
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, "Invalid JSON body", err.Error())
		return
	}

	if err := s.UpsertBanner(c.Request.Context(), &banner); err != nil {
		writeServiceError(c, "Invalid banner", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "banner_id": banner.BannerID})
}

// HandleDeleteCampaign handles DELETE /v1/campaigns/:campaign_id.
func (s *Service) HandleDeleteCampaign(c *gin.Context) {
	var uri struct {
		CampaignID string `uri:"campaign_id" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidRequestError, "Invalid path parameters", err.Error())
		return
	}

	if err := s.DeleteCampaign(c.Request.Context(), uri.CampaignID); err != nil {
		writeServiceError(c, "Invalid campaign", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "campaign_id": uri.CampaignID})
}

// HandleRebuild handles POST /v1/rebuild. A failed rebuild leaves the previous snapshot serving.
func (s *Service) HandleRebuild(c *gin.Context) {
	version, err := s.Rebuild(c.Request.Context())
	if err != nil {
		slog.Error("[Decision] Manual rebuild failed", "error", err)
		writeError(c, http.StatusServiceUnavailable, httperr.HttpRebuildFailedError, "Rebuild failed, previous snapshot still serving", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "published", "snapshot_version": version})
}

// HandleSummary handles GET /v1/stats.
func (s *Service) HandleSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.Summary())
}

// HandleBannerStats handles GET /v1/stats/banners/:banner_id.
func (s *Service) HandleBannerStats(c *gin.Context) {
	bannerID := c.Param("banner_id")
	dump, ok := s.BannerStats(bannerID)
	if !ok {
		writeError(c, http.StatusNotFound, httperr.HttpNotFoundError, "Banner not in current snapshot", gin.H{"banner_id": bannerID})
		return
	}
	c.JSON(http.StatusOK, dump)
}

// writeServiceError maps service errors: validation to 400, missing records to 404, anything else to 500.
func writeServiceError(c *gin.Context, invalidMsg string, err error) {
	var verr *v1.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidRequestError, invalidMsg, gin.H{"field": verr.Field, "reason": verr.Reason})
	case IsInvalid(err):
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidRequestError, invalidMsg, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(c, http.StatusNotFound, httperr.HttpNotFoundError, "Not found", err.Error())
	default:
		slog.Error("[Decision] Request failed", "path", c.FullPath(), "error", err)
		writeError(c, http.StatusInternalServerError, httperr.HttpInternalError, "Internal error", nil)
	}
}

func writeError(c *gin.Context, status int, errorType, message string, details interface{}) {
	c.JSON(status, httperr.ErrorResponse{
		ErrorType: errorType,
		Message:   message,
		Details:   details,
	})
}
