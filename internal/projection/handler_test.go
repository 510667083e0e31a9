package projection

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	httperr "github.com/aevon-lab/adselect/internal/core/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, s *Service, path string, query url.Values) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	s.RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path+"?"+query.Encode(), nil))
	return resp
}

func TestHandleQueryHistory(t *testing.T) {
	s := newTestService(t)
	q := url.Values{}
	q.Set("start", truncateToDay(day1).Format(time.RFC3339))
	q.Set("end", truncateToDay(day2).Add(24*time.Hour).Format(time.RFC3339))
	q.Set("granularity", "1d")
	q.Set("keyword", "Rusty=Max")

	resp := get(t, s, "/v1/stats/banners/b_Juri/history", q)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var got HistoryQueryResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	require.Len(t, got.Values, 2)
	assert.Equal(t, int64(2), got.Values[0].Impressions)
	require.NotNil(t, got.Keyword)
	assert.Equal(t, "Rusty", got.Keyword.Key)
}

func TestHandleQueryHistory_Errors(t *testing.T) {
	valid := func() url.Values {
		q := url.Values{}
		q.Set("start", day1.Format(time.RFC3339))
		q.Set("end", day2.Format(time.RFC3339))
		return q
	}
	tests := []struct {
		name       string
		path       string
		mutate     func(url.Values)
		wantStatus int
		wantType   string
	}{
		{"missing start", "/v1/stats/banners/b_Juri/history", func(q url.Values) { q.Del("start") }, http.StatusBadRequest, httperr.HttpInvalidRequestError},
		{"malformed keyword", "/v1/stats/banners/b_Juri/history", func(q url.Values) { q.Set("keyword", "Rusty") }, http.StatusBadRequest, httperr.HttpInvalidRequestError},
		{"bad granularity", "/v1/stats/banners/b_Juri/history", func(q url.Values) { q.Set("granularity", "1h") }, http.StatusBadRequest, httperr.HttpInvalidRequestError},
		{"unknown banner", "/v1/stats/banners/b_missing/history", func(url.Values) {}, http.StatusNotFound, httperr.HttpNotFoundError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid()
			tt.mutate(q)
			resp := get(t, newTestService(t), tt.path, q)

			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			var errResp httperr.ErrorResponse
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
			assert.Equal(t, tt.wantType, errResp.ErrorType)
		})
	}
}
