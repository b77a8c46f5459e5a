package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkHealth(t *testing.T, hc *HealthChecker) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	hc.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestHealth_AllUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	code, out := checkHealth(t, NewHealthChecker(db, rdb))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", out["status"])
	checks := out["checks"].(map[string]interface{})
	assert.Equal(t, "up", checks["database"].(map[string]interface{})["status"])
	assert.Equal(t, "up", checks["redis"].(map[string]interface{})["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealth_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	code, out := checkHealth(t, NewHealthChecker(db, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", out["status"])
}
