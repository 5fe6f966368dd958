package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wei-Shaw/evaldepot/internal/lock"
	"github.com/Wei-Shaw/evaldepot/internal/pool"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLockStore struct {
	held map[string]bool
}

func (s *fakeLockStore) TryInsert(ctx context.Context, resourceID, ownerToken string, leaseTTL time.Duration) (bool, *lock.Record, error) {
	panic("not used by these tests")
}
func (s *fakeLockStore) DeleteIfOwner(ctx context.Context, resourceID, ownerToken string) (bool, error) {
	panic("not used by these tests")
}
func (s *fakeLockStore) Read(ctx context.Context, resourceID string) (*lock.Record, error) {
	if !s.held[resourceID] {
		return nil, nil
	}
	now := time.Now()
	return &lock.Record{ResourceID: resourceID, OwnerToken: "secret-owner-token", AcquiredAt: now, ExpiresAt: now.Add(time.Minute)}, nil
}
func (s *fakeLockStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	panic("not used by these tests")
}

type fakePoolStore struct {
	byState map[pool.State][]*pool.Record
}

func (s *fakePoolStore) ListByState(ctx context.Context, poolName string, state pool.State) ([]*pool.Record, error) {
	return s.byState[state], nil
}
func (s *fakePoolStore) ClaimOneHibernated(ctx context.Context, poolName, allocatorToken string, deadline time.Time) (*pool.Record, error) {
	panic("not used by these tests")
}
func (s *fakePoolStore) Release(ctx context.Context, deploymentID, allocatorToken string) (bool, error) {
	panic("not used by these tests")
}
func (s *fakePoolStore) Upsert(ctx context.Context, rec *pool.Record) error {
	panic("not used by these tests")
}
func (s *fakePoolStore) SetState(ctx context.Context, deploymentID string, state pool.State, incrementFailureCount bool) (int, error) {
	panic("not used by these tests")
}
func (s *fakePoolStore) Retire(ctx context.Context, deploymentID string) error {
	panic("not used by these tests")
}
func (s *fakePoolStore) ReclaimOverdue(ctx context.Context, poolName string, now time.Time) ([]*pool.Record, error) {
	panic("not used by these tests")
}

func testHandlers() *Handlers {
	lockStore := &fakeLockStore{held: map[string]bool{"busy-resource": true}}
	l := lock.New(lockStore, lock.Config{})
	poolStore := &fakePoolStore{byState: map[pool.State][]*pool.Record{
		pool.StateHibernated: {{DeploymentID: "d1"}, {DeploymentID: "d2"}},
		pool.StateAllocated:  {{DeploymentID: "d3"}},
	}}
	return NewHandlers(l, poolStore, "p")
}

func TestHealthz(t *testing.T) {
	r := SetupRouter(gin.New(), testHandlers())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPeekLock_ReportsHeldWithoutOwnerToken(t *testing.T) {
	r := SetupRouter(gin.New(), testHandlers())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/locks/busy-resource", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-owner-token")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["held"])
	assert.Equal(t, "busy-resource", body["resource_id"])
}

func TestPeekLock_ReportsNotHeld(t *testing.T) {
	r := SetupRouter(gin.New(), testHandlers())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/locks/idle-resource", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["held"])
}

func TestPoolStatus_ReturnsPerStateCounts(t *testing.T) {
	r := SetupRouter(gin.New(), testHandlers())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/pools/p", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	counts := body["counts"].(map[string]any)
	assert.EqualValues(t, 2, counts["HIBERNATED"])
	assert.EqualValues(t, 1, counts["ALLOCATED"])
	assert.EqualValues(t, 0, counts["FAILED"])
	assert.EqualValues(t, 3, body["total"])
}
