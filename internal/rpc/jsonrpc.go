package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/aevon-lab/adselect/internal/decision"
	"github.com/gin-gonic/gin"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

const version = "2.0"

// Request is one JSON-RPC call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response carries exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Decisions is the decision layer the RPC methods call into.
type Decisions interface {
	Select(ctx context.Context, req *v1.SelectRequest) (*v1.SelectResponse, error)
	UpsertCampaign(ctx context.Context, c *v1.Campaign) error
	DeleteCampaign(ctx context.Context, campaignID string) error
}

// Impressions accepts one impression end to end.
type Impressions interface {
	Accept(ctx context.Context, imp *v1.Impression) (stats.DeltaResult, error)
}

type method func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Handler serves POST /rpc.
type Handler struct {
	methods          map[string]method
	maxBodySizeBytes int64
}

// NewHandler registers campaign_update, campaign_delete, impression_add and banner_select.
func NewHandler(decisions Decisions, impressions Impressions, maxBodySizeMB int) *Handler {
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1
	}
	h := &Handler{maxBodySizeBytes: int64(maxBodySizeMB) * 1024 * 1024}
	h.methods = map[string]method{
		"campaign_update": func(ctx context.Context, params json.RawMessage) (interface{}, error) {
			var c v1.Campaign
			if err := decodeParams(params, &c); err != nil {
				return nil, err
			}
			if err := decisions.UpsertCampaign(ctx, &c); err != nil {
				return nil, err
			}
			return map[string]string{"campaign_id": c.CampaignID}, nil
		},
		"campaign_delete": func(ctx context.Context, params json.RawMessage) (interface{}, error) {
			var p struct {
				CampaignID string `json:"campaign_id"`
			}
			if err := decodeParams(params, &p); err != nil {
				return nil, err
			}
			if err := decisions.DeleteCampaign(ctx, p.CampaignID); err != nil {
				return nil, err
			}
			return map[string]string{"campaign_id": p.CampaignID}, nil
		},
		"impression_add": func(ctx context.Context, params json.RawMessage) (interface{}, error) {
			var imp v1.Impression
			if err := decodeParams(params, &imp); err != nil {
				return nil, err
			}
			res, err := impressions.Accept(ctx, &imp)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"applied": res.Applied, "snapshot_version": res.Version}, nil
		},
		"banner_select": func(ctx context.Context, params json.RawMessage) (interface{}, error) {
			var req v1.SelectRequest
			if err := decodeParams(params, &req); err != nil {
				return nil, err
			}
			return decisions.Select(ctx, &req)
		},
	}
	return h
}

// RegisterRoutes registers the JSON-RPC endpoint.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/rpc", h.Handle)
}

// Handle decodes one request, dispatches it and always answers with HTTP 200 and a JSON-RPC body.
// Notifications (no id) are executed and answered with 204.
func (h *Handler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodySizeBytes+1))
	if err != nil || int64(len(body)) > h.maxBodySizeBytes {
		c.JSON(http.StatusOK, errorResponse(nil, &Error{Code: CodeInvalidRequest, Message: "request body unreadable or too large"}))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusOK, errorResponse(nil, &Error{Code: CodeParseError, Message: "parse error", Data: err.Error()}))
		return
	}
	if req.JSONRPC != version || req.Method == "" {
		c.JSON(http.StatusOK, errorResponse(req.ID, &Error{Code: CodeInvalidRequest, Message: "invalid request"}))
		return
	}

	resp := h.dispatch(c.Request.Context(), &req)
	if len(req.ID) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) dispatch(ctx context.Context, req *Request) *Response {
	m, ok := h.methods[req.Method]
	if !ok {
		return errorResponse(req.ID, &Error{Code: CodeMethodNotFound, Message: "method not found", Data: req.Method})
	}

	result, err := m(ctx, req.Params)
	if err != nil {
		rpcErr := toRPCError(err)
		if rpcErr.Code == CodeInternalError {
			slog.Error("[RPC] Method failed", "method", req.Method, "error", err)
		}
		return errorResponse(req.ID, rpcErr)
	}
	return &Response{JSONRPC: version, Result: result, ID: req.ID}
}

func decodeParams(params json.RawMessage, into interface{}) error {
	if len(params) == 0 {
		return &Error{Code: CodeInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(params, into); err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params", Data: err.Error()}
	}
	return nil
}

func toRPCError(err error) *Error {
	var rpcErr *Error
	var verr *v1.ValidationError
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.As(err, &verr):
		return &Error{Code: CodeInvalidParams, Message: err.Error(), Data: map[string]string{"field": verr.Field}}
	case decision.IsInvalid(err):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, storage.ErrDuplicate):
		return &Error{Code: CodeInvalidParams, Message: "impression already exists"}
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: "internal error"}
	}
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Response{JSONRPC: version, Error: err, ID: id}
}
