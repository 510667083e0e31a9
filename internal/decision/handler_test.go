package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	httperr "github.com/aevon-lab/adselect/internal/core/errors"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/aevon-lab/adselect/internal/core/storage/memory"
	storagemocks "github.com/aevon-lab/adselect/internal/mocks/storage"
	"github.com/aevon-lab/adselect/internal/selection"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubRebuilds struct {
	requested atomic.Int32
	version   uint64
	err       error
}

func (s *stubRebuilds) RebuildNow(context.Context) (uint64, error) { return s.version, s.err }
func (s *stubRebuilds) RequestRebuild()                            { s.requested.Add(1) }

type recordingObserver struct{ results []string }

func (o *recordingObserver) ObserveSelection(result string, _ time.Duration) {
	o.results = append(o.results, result)
}

func marci() v1.Campaign {
	now := time.Now()
	return v1.Campaign{
		CampaignID: "c_Marci",
		TimeStart:  now.Add(-time.Hour).Unix(),
		TimeEnd:    now.Add(time.Hour).Unix(),
		Banners: []v1.Banner{
			{BannerID: "b_Juri", CampaignID: "c_Marci", BannerSize: "10x10", Keywords: map[string]string{"Carolyn": "Lyndon"}},
			{BannerID: "b_Shirley", CampaignID: "c_Marci", BannerSize: "25x25"},
			{BannerID: "b_Jan", CampaignID: "c_Marci", BannerSize: "50x50"},
		},
	}
}

type fixture struct {
	svc      *Service
	cache    *stats.Cache
	rebuilds *stubRebuilds
	observer *recordingObserver
	router   *gin.Engine
}

func newFixture(t *testing.T, campaigns storage.CampaignStore) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache := stats.NewCache(stats.Options{})
	cache.Publish(stats.NewSnapshot([]v1.Campaign{marci()}, nil, time.Now(), stats.Options{}))

	f := &fixture{cache: cache, rebuilds: &stubRebuilds{version: 7}, observer: &recordingObserver{}}
	f.svc = NewService(cache, selection.NewSelector(selection.Options{}), campaigns, f.rebuilds, WithObserver(f.observer))
	f.svc.newID = func() uuid.UUID { return uuid.MustParse("00000000-0000-0000-0000-000000000001") }
	f.router = gin.New()
	f.svc.RegisterRoutes(f.router)
	return f
}

func (f *fixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) httperr.ErrorResponse {
	t.Helper()
	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	return errResp
}

func TestHandleSelect_RanksPaidBannerFirst(t *testing.T) {
	f := newFixture(t, memory.NewRepository())
	f.cache.ApplyDelta(&v1.Impression{
		EventID:    "e1",
		UserID:     "u1",
		BannerID:   "b_Juri",
		PaidAmount: decimal.NewFromInt(17),
		Keywords:   map[string]string{"Rusty": "Max"},
		OccurredAt: time.Now(),
	})

	resp := f.do(http.MethodPost, "/v1/select", map[string]interface{}{"keywords": map[string]string{"Rusty": "Max"}})

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var got v1.SelectResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	require.Len(t, got.Banners, 3)
	assert.Equal(t, "b_Juri", got.Banners[0].BannerID)
	assert.Equal(t, uint64(1), got.SnapshotVersion)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", got.RequestID.String())
	assert.Equal(t, []string{ResultServed}, f.observer.results)
}

func TestHandleSelect_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantType   string
		wantResult []string
	}{
		{"malformed json", "{", http.StatusBadRequest, httperr.HttpInvalidJsonError, nil},
		{"bad banner size", map[string]string{"banner_size": "huge"}, http.StatusBadRequest, httperr.HttpInvalidRequestError, []string{ResultInvalid}},
		{"negative limit", map[string]int{"limit": -1}, http.StatusBadRequest, httperr.HttpInvalidRequestError, []string{ResultInvalid}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, memory.NewRepository())
			resp := f.do(http.MethodPost, "/v1/select", tt.body)
			require.Equal(t, tt.wantStatus, resp.Code)
			assert.Equal(t, tt.wantType, decodeError(t, resp).ErrorType)
			assert.Equal(t, tt.wantResult, f.observer.results)
		})
	}
}

func TestHandleSelect_EmptyResultIsNotAnError(t *testing.T) {
	f := newFixture(t, memory.NewRepository())

	resp := f.do(http.MethodPost, "/v1/select", map[string]string{"banner_size": "1x1"})

	require.Equal(t, http.StatusOK, resp.Code)
	var got v1.SelectResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Empty(t, got.Banners)
	assert.Equal(t, []string{ResultEmpty}, f.observer.results)
}

func TestHandleUpsertCampaign(t *testing.T) {
	repo := memory.NewRepository()
	f := newFixture(t, repo)

	c := marci()
	c.CampaignID = "c_new"
	for i := range c.Banners {
		c.Banners[i].CampaignID = ""
	}
	resp := f.do(http.MethodPut, "/v1/campaigns", c)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, int32(1), f.rebuilds.requested.Load())

	active, err := repo.FetchActiveCampaigns(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "c_new", active[0].Banners[0].CampaignID)

	// Not visible to selection until the next rebuild publishes.
	require.Len(t, f.cache.Current().Campaigns(), 1)
	assert.Equal(t, "c_Marci", f.cache.Current().Campaigns()[0].CampaignID)
}

func TestHandleUpsertCampaign_Invalid(t *testing.T) {
	f := newFixture(t, memory.NewRepository())
	c := marci()
	c.TimeStart, c.TimeEnd = c.TimeEnd, c.TimeStart

	resp := f.do(http.MethodPut, "/v1/campaigns", c)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	errResp := decodeError(t, resp)
	assert.Equal(t, httperr.HttpInvalidRequestError, errResp.ErrorType)
	details, ok := errResp.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "time_start", details["field"])
	assert.Zero(t, f.rebuilds.requested.Load())
}

func TestHandleUpsertBanner(t *testing.T) {
	repo := memory.NewRepository()
	require.NoError(t, repo.UpsertCampaign(context.Background(), ptr(marci())))
	f := newFixture(t, repo)

	resp := f.do(http.MethodPut, "/v1/banners", v1.Banner{BannerID: "b_new", CampaignID: "c_Marci", BannerSize: "300x250"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, int32(1), f.rebuilds.requested.Load())

	resp = f.do(http.MethodPut, "/v1/banners", v1.Banner{BannerID: "b_x", CampaignID: "c_missing", BannerSize: "1x1"})
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, httperr.HttpNotFoundError, decodeError(t, resp).ErrorType)
}

func TestHandleDeleteCampaign(t *testing.T) {
	repo := memory.NewRepository()
	require.NoError(t, repo.UpsertCampaign(context.Background(), ptr(marci())))
	f := newFixture(t, repo)

	resp := f.do(http.MethodDelete, "/v1/campaigns/c_Marci", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int32(1), f.rebuilds.requested.Load())

	resp = f.do(http.MethodDelete, "/v1/campaigns/c_Marci", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandleDeleteCampaign_StoreFailure(t *testing.T) {
	repo := storagemocks.NewRepository(t)
	repo.EXPECT().DeleteCampaign(mock.Anything, "c_Marci").Return(errors.New("connection reset")).Once()
	f := newFixture(t, repo)

	resp := f.do(http.MethodDelete, "/v1/campaigns/c_Marci", nil)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, httperr.HttpInternalError, decodeError(t, resp).ErrorType)
	assert.Zero(t, f.rebuilds.requested.Load())
}

func TestHandleRebuild(t *testing.T) {
	f := newFixture(t, memory.NewRepository())

	resp := f.do(http.MethodPost, "/v1/rebuild", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"snapshot_version":7`)

	f.rebuilds.err = errors.New("repository unreachable")
	resp = f.do(http.MethodPost, "/v1/rebuild", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, httperr.HttpRebuildFailedError, decodeError(t, resp).ErrorType)
}

func TestHandleBannerStats(t *testing.T) {
	f := newFixture(t, memory.NewRepository())
	f.cache.ApplyDelta(&v1.Impression{
		EventID:    "e1",
		UserID:     "u1",
		BannerID:   "b_Juri",
		PaidAmount: decimal.NewFromInt(3),
		Keywords:   map[string]string{"Rusty": "Max"},
		OccurredAt: time.Now(),
	})

	resp := f.do(http.MethodGet, "/v1/stats/banners/b_Juri", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var dump stats.BannerDump
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &dump))
	assert.Equal(t, int64(1), dump.Impressions)
	assert.Equal(t, []v1.Keyword{{Key: "Rusty", Value: "Max"}}, dump.BestKeywords)

	resp = f.do(http.MethodGet, "/v1/stats/banners/b_missing", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var summary SnapshotSummary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Banners)
	assert.Equal(t, 1, summary.Campaigns)
}

func ptr[T any](v T) *T { return &v }
