package pagination

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func contextWithQuery(query string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return c
}

func TestParseClamps(t *testing.T) {
	p := Parse(contextWithQuery("page=0&limit=500"))
	assert.Equal(t, Params{Page: 1, Limit: MaxLimit, Offset: 0}, p)

	p = Parse(contextWithQuery("page=3&limit=10"))
	assert.Equal(t, 20, p.Offset)

	p = Parse(contextWithQuery("limit=abc"))
	assert.Equal(t, DefaultLimit, p.Limit)
}

func TestParseSortedAllowList(t *testing.T) {
	allowed := []string{"name", "created_at"}

	p := ParseSorted(contextWithQuery("sort_by=created_at&sort_order=DESC"), allowed, "name")
	assert.Equal(t, "created_at", p.Sort)
	assert.True(t, p.Desc)

	p = ParseSorted(contextWithQuery("sort_by="+url.QueryEscape("name;drop table roles")), allowed, "name")
	assert.Equal(t, "name", p.Sort)
	assert.False(t, p.Desc)
}

func TestNewMeta(t *testing.T) {
	assert.Equal(t, int64(3), NewMeta(New(1, 10), 21).TotalPages)
	assert.Equal(t, int64(0), NewMeta(New(1, 10), 0).TotalPages)
}
