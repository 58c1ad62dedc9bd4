package pagination

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/session"
)

// PerPageOptions are the page sizes offered by list pages.
var PerPageOptions = []int{5, 10, 20, 25, 50}

const DefaultPerPage = 10

// Spec parametrizes a list: searchable columns, sortable columns and
// the session key remembering the chosen page size.
type Spec struct {
	SearchColumns []string
	// Sorts maps a public sort key to its SQL column. "-key" sorts descending.
	Sorts       map[string]string
	DefaultSort string
	PerPageKey  string
}

// Request is a parsed list request.
type Request struct {
	Search  string
	Sort    string
	Page    int
	PerPage int
	Query   url.Values
}

func validPerPage(n int) bool {
	for _, o := range PerPageOptions {
		if o == n {
			return true
		}
	}
	return false
}

// Parse reads search, sort, page and per_page. A valid per_page is stored in the session;
// otherwise the stored value (or the default) is used.
func (s Spec) Parse(c *gin.Context, sess *session.Session) Request {
	q := c.Request.URL.Query()

	search := strings.TrimSpace(q.Get("search"))
	if search == "" {
		search = strings.TrimSpace(q.Get("q"))
	}

	perPage := DefaultPerPage
	if sess != nil && s.PerPageKey != "" {
		if stored := sess.GetInt(s.PerPageKey, DefaultPerPage); validPerPage(stored) {
			perPage = stored
		}
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && validPerPage(v) {
		perPage = v
		if sess != nil && s.PerPageKey != "" {
			sess.SetInt(s.PerPageKey, v)
		}
	}

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	return Request{
		Search:  search,
		Sort:    s.NormalizeSort(q.Get("sort")),
		Page:    page,
		PerPage: perPage,
		Query:   q,
	}
}

// NormalizeSort returns raw when whitelisted, else the default sort.
func (s Spec) NormalizeSort(raw string) string {
	raw = strings.TrimSpace(raw)
	if _, ok := s.Sorts[strings.TrimPrefix(raw, "-")]; ok && raw != "" {
		return raw
	}
	return s.DefaultSort
}

// Order renders a (normalized) sort key as an ORDER BY expression.
func (s Spec) Order(sort string) string {
	sort = s.NormalizeSort(sort)
	col, ok := s.Sorts[strings.TrimPrefix(sort, "-")]
	if !ok {
		return ""
	}
	if strings.HasPrefix(sort, "-") {
		return col + " DESC"
	}
	return col + " ASC"
}

// likeEscaper makes % and _ in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Search adds a case-insensitive LIKE over every search column.
func (s Spec) Search(db *gorm.DB, term string) *gorm.DB {
	term = strings.TrimSpace(term)
	if term == "" || len(s.SearchColumns) == 0 {
		return db
	}
	like := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	parts := make([]string, 0, len(s.SearchColumns))
	args := make([]interface{}, 0, len(s.SearchColumns))
	for _, col := range s.SearchColumns {
		parts = append(parts, "LOWER("+col+`) LIKE ? ESCAPE '\'`)
		args = append(args, like)
	}
	return db.Where("("+strings.Join(parts, " OR ")+")", args...)
}

// Fetch counts base, then hands fetch a query ordered and limited for one page.
// Select clauses belong in fetch so the count stays a plain COUNT(*).
func Fetch(base *gorm.DB, order string, limit, offset int, fetch func(q *gorm.DB) error) (int64, error) {
	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, err
	}
	q := base.Session(&gorm.Session{})
	if order != "" {
		q = q.Order(order)
	}
	if err := fetch(q.Limit(limit).Offset(offset)); err != nil {
		return 0, err
	}
	return total, nil
}

// Page describes one page of a list for the templates.
type Page struct {
	Total          int64
	Number         int
	PerPage        int
	NumPages       int
	HasPrev        bool
	HasNext        bool
	PrevPage       int
	NextPage       int
	StartIndex     int64
	EndIndex       int64
	Search         string
	Sort           string
	Querystring    string
	PerPageOptions []int
}

// Paginate runs a list request. Out-of-range pages are clamped to the last page.
func Paginate(base *gorm.DB, spec Spec, r Request, fetch func(q *gorm.DB) error) (Page, error) {
	base = spec.Search(base, r.Search)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page{}, err
	}

	numPages := int((total + int64(r.PerPage) - 1) / int64(r.PerPage))
	if numPages < 1 {
		numPages = 1
	}
	number := r.Page
	if number > numPages {
		number = numPages
	}

	q := base.Session(&gorm.Session{})
	if order := spec.Order(r.Sort); order != "" {
		q = q.Order(order)
	}
	offset := (number - 1) * r.PerPage
	if err := fetch(q.Limit(r.PerPage).Offset(offset)); err != nil {
		return Page{}, err
	}

	p := Page{
		Total:          total,
		Number:         number,
		PerPage:        r.PerPage,
		NumPages:       numPages,
		HasPrev:        number > 1,
		HasNext:        number < numPages,
		PrevPage:       number - 1,
		NextPage:       number + 1,
		Search:         r.Search,
		Sort:           r.Sort,
		Querystring:    Querystring(r.Query),
		PerPageOptions: PerPageOptions,
	}
	if total > 0 {
		p.StartIndex = int64(offset) + 1
		p.EndIndex = int64(offset) + int64(r.PerPage)
		if p.EndIndex > total {
			p.EndIndex = total
		}
	}
	return p, nil
}

// Querystring re-encodes the current query without "page", for pagination links.
func Querystring(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	out := url.Values{}
	for k, v := range values {
		if k == "page" {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out.Encode()
}
