package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/ecoenergy-api/internal/pagination"
)

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                     "/",
		"/zones?page=2":        "/zones?page=2",
		"//evil.example":       "/",
		"/\\evil.example":      "/",
		"https://evil.example": "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, safeNext(in), in)
	}
}

func TestSortQuery(t *testing.T) {
	p := pagination.Page{Sort: "name", Querystring: "search=ofi&sort=name"}
	assert.Equal(t, "?search=ofi&sort=-name", sortQuery(p, "name"))
	assert.Equal(t, "?search=ofi&sort=created_at", sortQuery(p, "created_at"))
	assert.Equal(t, "?per_page=20&search=ofi&sort=name", withQuery(p, "per_page", "20"))
}

func TestParsePages(t *testing.T) {
	pages, err := parsePages()
	require.NoError(t, err)
	for _, name := range []string{"login", "error", "form", "dashboard", "zones", "categories", "catalog_detail", "devices", "device_detail", "measurements", "measurement_detail", "alerts"} {
		assert.Contains(t, pages, name)
	}
	assert.NotContains(t, pages, "layout")
}
