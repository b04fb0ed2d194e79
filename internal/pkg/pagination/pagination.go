package pagination

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/response"
)

const (
	DefaultPage = 1
	DefaultSize = 12
	MaxSize     = 50

	maxSearchLen = 100
)

// Query is the paging and filter input of a list endpoint.
type Query struct {
	Page   int
	Size   int
	Status string // empty means any
	Search string // case-insensitive name substring
}

// FromContext reads page, size, status and q from the query string. A status
// outside allowedStatus is ignored rather than rejected.
func FromContext(c *gin.Context, allowedStatus ...string) Query {
	q := Query{
		Page:   parseIntOr(c.Query("page"), DefaultPage),
		Size:   parseIntOr(c.Query("size"), DefaultSize),
		Search: strings.TrimSpace(c.Query("q")),
	}
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Size < 1 {
		q.Size = DefaultSize
	}
	if q.Size > MaxSize {
		q.Size = MaxSize
	}
	if len(q.Search) > maxSearchLen {
		q.Search = q.Search[:maxSearchLen]
	}

	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	for _, allowed := range allowedStatus {
		if status == allowed {
			q.Status = status
			break
		}
	}
	return q
}

// Offset returns the number of rows to skip.
func (q Query) Offset() int { return (q.Page - 1) * q.Size }

// Meta builds the envelope metadata for total matching rows.
func (q Query) Meta(total int64) response.Pagination {
	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	}
}

// Paginate counts the filtered query, then loads the requested page into
// dest. dest is never nil on success so it encodes as [].
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}
	*dest = make([]T, 0, min(q.Size, int(total)))
	if total == 0 || int64(q.Offset()) >= total {
		return q.Meta(total), nil
	}
	if err := db.Offset(q.Offset()).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}
	return q.Meta(total), nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// ContainsPattern returns a LIKE pattern matching s anywhere, escaped with
// '!' for use as `LIKE ? ESCAPE '!'`.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func parseIntOr(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
