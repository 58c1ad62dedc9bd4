package seed_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/config"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/seed"
	"github.com/username/ecoenergy-api/internal/testutil"
	"github.com/username/ecoenergy-api/internal/user"
)

var cfg = config.SeedConfig{
	AdminEmail:      "admin@ecotech.cl",
	AdminPassword:   "EcoTech2025",
	SuperAdminEmail: "root@ecoenergy.cl",
	SuperPassword:   "Root2025!",
}

func TestRunIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	first, err := seed.Run(ctx, db, cfg, nil)
	require.NoError(t, err)
	assert.Len(t, first.Created, 8)
	assert.Equal(t, seed.Counts{Organizations: 1, Categories: 2, Zones: 1, Devices: 2, Users: 2}, first.Counts)
	assert.Equal(t, "contacto@ecotech.cl", first.Organization.Email)
	assert.Equal(t, "+56 2 2345 6789", first.Organization.Phone)

	second, err := seed.Run(ctx, db, cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Equal(t, first.Counts, second.Counts)
	assert.Equal(t, first.Organization.ID, second.Organization.ID)

	var ac device.Device
	require.NoError(t, db.Where("name = ?", "AC Oficina").First(&ac).Error)
	assert.True(t, decimal.RequireFromString("3.5").Equal(ac.MaxConsumption), ac.MaxConsumption.String())
	assert.Equal(t, first.Organization.ID, ac.OrganizationID)

	var cat struct{ Name string }
	require.NoError(t, db.Table("categories").Select("name").Where("id = ?", ac.CategoryID).Take(&cat).Error)
	assert.Equal(t, "Climatización", cat.Name)
}

func TestSeededAccountsCanLogIn(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := seed.Run(context.Background(), db, cfg, nil)
	require.NoError(t, err)

	users := user.NewService(db, nil)
	cu, err := users.Authenticate(context.Background(), "ADMIN@ecotech.cl", "EcoTech2025")
	require.NoError(t, err)
	assert.True(t, cu.IsOrgAdmin())
	require.NotNil(t, cu.OrganizationID)

	root, err := users.Authenticate(context.Background(), "root@ecoenergy.cl", "Root2025!")
	require.NoError(t, err)
	assert.True(t, root.IsSuperAdmin())
}

func TestRunWithoutAccounts(t *testing.T) {
	db := testutil.NewDB(t)
	res, err := seed.Run(context.Background(), db, config.SeedConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Counts.Users)
	assert.Len(t, res.Created, 6)
}

func TestPrintRolesAndResult(t *testing.T) {
	var buf bytes.Buffer
	seed.PrintRoles(&buf)
	out := buf.String()
	for _, r := range auth.Roles() {
		assert.Contains(t, out, string(r.Code))
		assert.Contains(t, out, r.Label)
	}
	assert.Contains(t, out, "zone.delete")

	buf.Reset()
	seed.PrintResult(&buf, &seed.Result{Counts: seed.Counts{Devices: 2}})
	assert.Contains(t, buf.String(), "ya existían")
	assert.Contains(t, buf.String(), "Dispositivos: 2")
}
