package pagination

import (
	"net/http"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Pagination holds pagination parameters and metadata
type Pagination struct {
	Limit    int   `json:"limit"`
	Offset   int   `json:"offset"`
	Page     int   `json:"page"`
	MaxLimit int   `json:"max_limit"`
	Total    int64 `json:"total,omitempty"`
}

var (
	defaultLimit atomic.Int64
	maxLimit     atomic.Int64
)

func init() {
	defaultLimit.Store(10)
	maxLimit.Store(1000)
	if ml := os.Getenv("MAX_LIMIT"); ml != "" {
		if v, err := strconv.Atoi(ml); err == nil && v > 0 {
			maxLimit.Store(int64(v))
		}
	}
}

// SetLimits overrides the default and maximum page sizes (from config).
func SetLimits(def, max int) {
	if def > 0 {
		defaultLimit.Store(int64(def))
	}
	if max > 0 {
		maxLimit.Store(int64(max))
	}
}

// ParsePagination reads query params `limit` (alias `per_page`) and `page`.
// Invalid values abort the request with 400.
func ParsePagination(c *gin.Context) Pagination {
	max := int(maxLimit.Load())

	limit := int(defaultLimit.Load())
	ls := c.Query("limit")
	if ls == "" {
		ls = c.Query("per_page")
	}
	if ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid limit parameter"})
			c.Abort()
			return Pagination{}
		}
		limit = v
	}
	if limit > max {
		limit = max
	}

	page := 1
	if ps := c.Query("page"); ps != "" {
		v, err := strconv.Atoi(ps)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid page parameter"})
			c.Abort()
			return Pagination{}
		}
		page = v
	}

	return Pagination{Limit: limit, Offset: (page - 1) * limit, Page: page, MaxLimit: max}
}

// Meta is the "pagination" object of list responses.
func (p Pagination) Meta(total int64) gin.H {
	return gin.H{
		"total":     total,
		"limit":     p.Limit,
		"page":      p.Page,
		"max_limit": p.MaxLimit,
	}
}
