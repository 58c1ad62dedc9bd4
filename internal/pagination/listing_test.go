package pagination_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/session"
	"github.com/username/ecoenergy-api/internal/testutil"
	"github.com/username/ecoenergy-api/internal/zone"
)

var zoneSpec = pagination.Spec{
	SearchColumns: []string{"zones.name", "zones.description"},
	Sorts:         map[string]string{"name": "zones.name", "created_at": "zones.created_at"},
	DefaultSort:   "name",
	PerPageKey:    "zones_per_page",
}

func parse(t *testing.T, rawURL string, sess *session.Session) pagination.Request {
	t.Helper()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, rawURL, nil)
	return zoneSpec.Parse(c, sess)
}

func TestSpecParse(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	sess := session.FromContext(c)

	r := parse(t, "/zones?search=+ofi+&sort=-name&per_page=25&page=2", sess)
	assert.Equal(t, "ofi", r.Search)
	assert.Equal(t, "-name", r.Sort)
	assert.Equal(t, 25, r.PerPage)
	assert.Equal(t, 2, r.Page)
	assert.Equal(t, 25, sess.GetInt("zones_per_page", 0), "valid page size is persisted")

	// ukuran halaman tersimpan dipakai ketika query tidak menyebutkannya
	r = parse(t, "/zones", sess)
	assert.Equal(t, 25, r.PerPage)
	assert.Equal(t, "name", r.Sort)
	assert.Equal(t, 1, r.Page)

	// invalid values fall back without touching the session
	r = parse(t, "/zones?per_page=7&sort=password&page=abc", sess)
	assert.Equal(t, 25, r.PerPage)
	assert.Equal(t, "name", r.Sort)
	assert.Equal(t, 1, r.Page)

	r = parse(t, "/zones?q=bodega", nil)
	assert.Equal(t, "bodega", r.Search)
	assert.Equal(t, pagination.DefaultPerPage, r.PerPage)
}

func TestSpecOrder(t *testing.T) {
	assert.Equal(t, "zones.name ASC", zoneSpec.Order("name"))
	assert.Equal(t, "zones.created_at DESC", zoneSpec.Order("-created_at"))
	assert.Equal(t, "zones.name ASC", zoneSpec.Order("-; DROP TABLE zones"))
}

func TestQuerystring(t *testing.T) {
	v := url.Values{"page": {"3"}, "search": {"a b"}, "sort": {"-name"}}
	assert.Equal(t, "search=a+b&sort=-name", pagination.Querystring(v))
	assert.Equal(t, "", pagination.Querystring(nil))
}

func TestPaginate(t *testing.T) {
	db := testutil.NewDB(t)
	org := testutil.CreateOrganization(t, db, "EcoTech Solutions")
	for i := 1; i <= 12; i++ {
		testutil.CreateZone(t, db, org.ID, fmt.Sprintf("Zona %02d", i))
	}
	testutil.CreateZone(t, db, org.ID, "Bodega")

	base := db.Model(&zone.Zone{}).Where("zones.organization_id = ?", org.ID)
	fetch := func(out *[]zone.Zone) func(q *gorm.DB) error {
		return func(q *gorm.DB) error { return q.Find(out).Error }
	}

	var zones []zone.Zone
	page, err := pagination.Paginate(base, zoneSpec, pagination.Request{Sort: "name", Page: 2, PerPage: 5, Query: url.Values{"page": {"2"}, "per_page": {"5"}}}, fetch(&zones))
	require.NoError(t, err)
	assert.Equal(t, int64(13), page.Total)
	assert.Equal(t, 3, page.NumPages)
	assert.True(t, page.HasPrev)
	assert.True(t, page.HasNext)
	assert.Equal(t, int64(6), page.StartIndex)
	assert.Equal(t, int64(10), page.EndIndex)
	assert.Equal(t, "per_page=5", page.Querystring)
	require.Len(t, zones, 5)
	assert.Equal(t, "Zona 05", zones[0].Name)

	// halaman di luar jangkauan dijepit ke halaman terakhir
	zones = nil
	page, err = pagination.Paginate(base, zoneSpec, pagination.Request{Sort: "name", Page: 99, PerPage: 5}, fetch(&zones))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Number)
	assert.False(t, page.HasNext)
	assert.Len(t, zones, 3)

	zones = nil
	page, err = pagination.Paginate(base, zoneSpec, pagination.Request{Search: "BODE", Sort: "name", Page: 1, PerPage: 10}, fetch(&zones))
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, zones, 1)
	assert.Equal(t, "Bodega", zones[0].Name)
}

func TestSearchWildcardsAreLiteral(t *testing.T) {
	db := testutil.NewDB(t)
	org := testutil.CreateOrganization(t, db, "Org")
	for _, name := range []string{"Sala 100%", "Sala 1000", "sala_a", "salaXa", `Rack \ 2`} {
		testutil.CreateZone(t, db, org.ID, name)
	}

	cases := map[string][]string{
		"%":      {"Sala 100%"},
		"100%":   {"Sala 100%"},
		"_":      {"sala_a"},
		"sala_a": {"sala_a"},
		`\`:     {`Rack \ 2`},
		"sala":   {"Sala 100%", "Sala 1000", "sala_a", "salaXa"},
	}
	for term, want := range cases {
		var names []string
		err := zoneSpec.Search(db.Model(&zone.Zone{}), term).Order("name").Pluck("name", &names).Error
		require.NoError(t, err, term)
		assert.ElementsMatch(t, want, names, "term %q", term)
	}
}

func TestFetch(t *testing.T) {
	db := testutil.NewDB(t)
	org := testutil.CreateOrganization(t, db, "Org")
	testutil.CreateZone(t, db, org.ID, "B")
	testutil.CreateZone(t, db, org.ID, "A")
	testutil.CreateZone(t, db, org.ID, "C")

	var names []string
	total, err := pagination.Fetch(db.Model(&zone.Zone{}), "name DESC", 2, 0, func(q *gorm.DB) error {
		return q.Pluck("name", &names).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"C", "B"}, names)
}
