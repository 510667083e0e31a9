package rtb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	httperr "github.com/aevon-lab/adselect/internal/core/errors"
	"github.com/aevon-lab/adselect/internal/decision"
	"github.com/gin-gonic/gin"
	"github.com/prebid/openrtb/v20/openrtb2"
)

// Selector is the decision entry point the adapter ranks with.
type Selector interface {
	Select(ctx context.Context, req *v1.SelectRequest) (*v1.SelectResponse, error)
}

// ImpSelection is the ranked list for one OpenRTB impression.
type ImpSelection struct {
	ImpID      string            `json:"imp_id"`
	BannerSize string            `json:"banner_size,omitempty"`
	Banners    []v1.ScoredBanner `json:"banners"`
}

// Response answers an OpenRTB bid request with rankings only; no prices are quoted.
type Response struct {
	ID              string         `json:"id"`
	SnapshotVersion uint64         `json:"snapshot_version"`
	Imps            []ImpSelection `json:"imps"`
}

// Adapter maps OpenRTB 2.x bid requests onto selection requests.
type Adapter struct {
	selector Selector
	limit    int
}

// NewAdapter returns an adapter that ranks at most limit banners per impression (0 = server default).
func NewAdapter(selector Selector, limit int) *Adapter {
	return &Adapter{selector: selector, limit: limit}
}

// RegisterRoutes registers the OpenRTB endpoint.
func (a *Adapter) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/openrtb/select", a.HandleBidRequest)
}

// HandleBidRequest handles POST /v1/openrtb/select.
func (a *Adapter) HandleBidRequest(c *gin.Context) {
	var req openrtb2.BidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid OpenRTB bid request",
			Details:   err.Error(),
		})
		return
	}

	resp, err := a.Rank(c.Request.Context(), &req)
	if err != nil {
		if decision.IsInvalid(err) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidRequestError,
				Message:   "Invalid OpenRTB bid request",
				Details:   err.Error(),
			})
			return
		}
		slog.Error("[RTB] Ranking failed", "request_id", req.ID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to rank banners",
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ErrNoImpressions is returned for a bid request without any banner impression.
var ErrNoImpressions = fmt.Errorf("%w: bid request has no banner impressions", v1.ErrValidation)

// Rank selects banners for every banner impression of req. Non-banner impressions are skipped.
func (a *Adapter) Rank(ctx context.Context, req *openrtb2.BidRequest) (*Response, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("%w: bid request id is required", v1.ErrValidation)
	}

	keywords := ContextKeywords(req)
	resp := &Response{ID: req.ID, Imps: make([]ImpSelection, 0, len(req.Imp))}

	for _, imp := range req.Imp {
		if imp.Banner == nil {
			continue
		}
		size := BannerSize(imp.Banner)
		sel, err := a.selector.Select(ctx, &v1.SelectRequest{
			Keywords:   keywords,
			BannerSize: size,
			Limit:      a.limit,
		})
		if err != nil {
			return nil, fmt.Errorf("imp %s: %w", imp.ID, err)
		}
		resp.SnapshotVersion = sel.SnapshotVersion
		resp.Imps = append(resp.Imps, ImpSelection{ImpID: imp.ID, BannerSize: size, Banners: sel.Banners})
	}

	if len(resp.Imps) == 0 {
		return nil, ErrNoImpressions
	}
	return resp, nil
}

// BannerSize returns "WxH" from the banner's explicit size, else its first format, else "".
func BannerSize(b *openrtb2.Banner) string {
	if b.W != nil && b.H != nil && *b.W > 0 && *b.H > 0 {
		return fmt.Sprintf("%dx%d", *b.W, *b.H)
	}
	for _, f := range b.Format {
		if f.W > 0 && f.H > 0 {
			return fmt.Sprintf("%dx%d", f.W, f.H)
		}
	}
	return ""
}

// ContextKeywords merges site.keywords and user.keywords ("k=v" comma lists) into a context.
// User keywords win on conflict. Items without "=" are ignored.
func ContextKeywords(req *openrtb2.BidRequest) map[string]string {
	out := make(map[string]string)
	if req.Site != nil {
		parseKeywords(req.Site.Keywords, out)
	}
	if req.User != nil {
		parseKeywords(req.User.Keywords, out)
	}
	return out
}

func parseKeywords(list string, into map[string]string) {
	for _, item := range strings.Split(list, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(item), "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		into[k] = strings.TrimSpace(v)
	}
}
