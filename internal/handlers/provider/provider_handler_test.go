package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vowlist-service/internal/domain/provider"
	xerrors "vowlist-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBoostService struct {
	toggleErr error
	desired   *bool
	filters   *provider.ListFilters
}

func (s *stubBoostService) ToggleBoost(ctx context.Context, listingID, ownerID int64, desired bool) (*provider.BoostResult, error) {
	s.desired = &desired
	if s.toggleErr != nil {
		return nil, s.toggleErr
	}
	return &provider.BoostResult{ListingID: listingID, Boosted: desired, Used: 1, Limit: 2}, nil
}

func (s *stubBoostService) ListMyListings(ctx context.Context, ownerID int64) ([]provider.Provider, error) {
	return []provider.Provider{{ID: 1, Name: "Mine"}}, nil
}

func (s *stubBoostService) ListDirectory(ctx context.Context, filters *provider.ListFilters) (*provider.ListResponse, error) {
	s.filters = filters
	return &provider.ListResponse{Page: 1, PageSize: 20}, nil
}

func newRouter(svc BoostService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewProviderHandler(svc)

	r := gin.New()
	authed := r.Group("", func(c *gin.Context) {
		c.Set("identity_id", int64(7))
		c.Next()
	})
	r.GET("/providers", h.ListDirectory)
	authed.GET("/providers/mine", h.ListMine)
	authed.PUT("/providers/:id/boost", h.ToggleBoost)
	return r
}

func put(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestToggleBoost(t *testing.T) {
	svc := &stubBoostService{}
	w := put(newRouter(svc), "/providers/5/boost", `{"boosted": false}`)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.desired)
	assert.False(t, *svc.desired)
	assert.Contains(t, w.Body.String(), `"listing_id":5`)
}

func TestToggleBoost_MissingFlag(t *testing.T) {
	svc := &stubBoostService{}
	w := put(newRouter(svc), "/providers/5/boost", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.desired)
}

func TestToggleBoost_ErrorMapping(t *testing.T) {
	cases := map[error]int{
		xerrors.ErrEntitlementExceeded: http.StatusForbidden,
		xerrors.ErrForbidden:           http.StatusForbidden,
		xerrors.ErrNotFound:            http.StatusNotFound,
	}
	for err, status := range cases {
		t.Run(err.Error(), func(t *testing.T) {
			w := put(newRouter(&stubBoostService{toggleErr: err}), "/providers/5/boost", `{"boosted": true}`)
			assert.Equal(t, status, w.Code)
		})
	}

	w := put(newRouter(&stubBoostService{}), "/providers/abc/boost", `{"boosted": true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDirectory_BindsFilters(t *testing.T) {
	svc := &stubBoostService{}
	req := httptest.NewRequest(http.MethodGet, "/providers?category=florist&category=venue&location=Nairobi&page=2", nil)
	w := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.filters)
	assert.Equal(t, []string{"florist", "venue"}, svc.filters.Categories)
	assert.Equal(t, "Nairobi", svc.filters.Location)
	assert.Equal(t, 2, svc.filters.Page)
}
