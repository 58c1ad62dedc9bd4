package pagination_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/pagination"
)

func TestParsePagination_Defaults(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?", nil)

	p := pagination.ParsePagination(c)
	if p.Limit != 10 {
		t.Fatalf("expected default limit 10, got %d", p.Limit)
	}
	if p.Page != 1 {
		t.Fatalf("expected default page 1, got %d", p.Page)
	}
}

func TestParsePagination_InvalidParams(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=abc&page=-1", nil)

	p := pagination.ParsePagination(c)
	if !c.IsAborted() {
		t.Fatalf("expected context to be aborted for invalid params, pagination=%+v", p)
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestParsePagination_PerPageAliasAndCap(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?per_page=5000&page=3", nil)

	p := pagination.ParsePagination(c)
	if p.Limit != p.MaxLimit {
		t.Fatalf("expected limit capped at %d, got %d", p.MaxLimit, p.Limit)
	}
	if p.Offset != 2*p.Limit {
		t.Fatalf("unexpected offset %d", p.Offset)
	}
}
