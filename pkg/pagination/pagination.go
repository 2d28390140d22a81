package pagination

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// Params holds validated pagination parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
	Sort   string // column name, always one of the caller's allowed fields
	Desc   bool
}

// Parse extracts and validates page/limit from query parameters
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	return New(page, limit)
}

// ParseSorted extracts page/limit plus sort_by/sort_order. sort_by values not in
// allowed fall back to def, so the column name can be used in ORDER BY directly.
func ParseSorted(c *gin.Context, allowed []string, def string) Params {
	p := Parse(c)
	p.Sort = def
	sortBy := c.Query("sort_by")
	for _, a := range allowed {
		if a == sortBy {
			p.Sort = a
			break
		}
	}
	p.Desc = strings.EqualFold(c.Query("sort_order"), "desc")
	return p
}

// New clamps page and limit into range
func New(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < MinLimit {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Meta describes a page of results in list responses
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// NewMeta builds response metadata for a page
func NewMeta(p Params, total int64) Meta {
	pages := total / int64(p.Limit)
	if total%int64(p.Limit) != 0 {
		pages++
	}
	return Meta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}
