package utils

import (
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFloorAmount(t *testing.T) {
	tests := []struct {
		base, rate, want float64
	}{
		{3600, 0.10, 360},
		{3600, 0.03, 108},
		{3600, 0.02, 72},
		{3600, 0.005, 18},
		{10000, 0.04, 400},
		{7777, 0.005, 38},
		{5000, 0.001, 5},
		{999, 0.001, 0},
		{0, 0.1, 0},
		{100, 0, 0},
		{-100, 0.1, 0},
		{math.NaN(), 0.1, 0},
		{100, math.NaN(), 0},
		{math.Inf(1), 0.1, 0},
		{100, math.Inf(1), 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FloorAmount(tt.base, tt.rate), "%v * %v", tt.base, tt.rate)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "360", FormatAmount(360))
	assert.Equal(t, "1001", FormatAmount(1000.6))
}

func TestNextTimeOfDay(t *testing.T) {
	now := time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 31, 23, 30, 0, 0, time.UTC), NextTimeOfDay(now, 23, 30))
	assert.Equal(t, time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC), NextTimeOfDay(now, 0, 5))
	// exactly at the mark schedules tomorrow
	assert.Equal(t, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), NextTimeOfDay(now, 10, 0))

	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if assert.NoError(t, err) {
		local := time.Date(2026, 3, 31, 0, 10, 0, 0, kolkata)
		assert.Equal(t, time.Date(2026, 3, 31, 0, 15, 0, 0, kolkata), NextTimeOfDay(local, 0, 15))
	}
}

func TestStartOfMonth(t *testing.T) {
	assert.Equal(t,
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		StartOfMonth(time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC)))
}

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	items := []int{1, 2, 3, 4, 5}

	params := paramsFor("/?page=2&page_size=2")
	assert.Equal(t, []int{3, 4}, Paginate(items, params))

	meta := CreatePaginationMeta(params, int64(len(items)))
	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasNext)
	assert.True(t, meta.HasPrevious)

	assert.Empty(t, Paginate(items, paramsFor("/?page=9&page_size=2")))

	clamped := paramsFor("/?page=-1&page_size=1000")
	assert.Equal(t, 1, clamped.Page)
	assert.Equal(t, MaxPageSize, clamped.PageSize)

	defaults := paramsFor("/")
	assert.Equal(t, DefaultPageSize, defaults.PageSize)
}

func paramsFor(target string) *PaginationParams {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", target, nil)
	return GetPaginationParams(c)
}
