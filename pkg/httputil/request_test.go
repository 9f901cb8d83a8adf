package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=25", nil)

	val, err := ParseQueryInt(r, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 25, val)

	val, err = ParseQueryInt(r, "missing", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, val)

	r = httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)
	_, err = ParseQueryInt(r, "limit", 10)
	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?q=react", nil)
	assert.Equal(t, "react", ParseQueryString(r, "q", ""))
	assert.Equal(t, "fallback", ParseQueryString(r, "missing", "fallback"))
}

func TestParseQueryBool(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"true", true},
		{"1", true},
		{"false", false},
		{"0", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?exact="+tt.raw, nil)
		val, err := ParseQueryBool(r, "exact", false)
		require.NoError(t, err)
		assert.Equal(t, tt.want, val, "exact=%s", tt.raw)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	val, err := ParseQueryBool(r, "exact", true)
	require.NoError(t, err)
	assert.True(t, val)

	r = httptest.NewRequest(http.MethodGet, "/?exact=maybe", nil)
	_, err = ParseQueryBool(r, "exact", false)
	assert.Error(t, err)
}

func TestRequireNonEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(rec, "value", "q"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(rec, "", "q"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "q is required")
}
