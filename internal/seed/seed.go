// Package seed loads the demo tenant and the first accounts. Every step is a
// get-or-create on the natural key, so running it twice changes nothing.
package seed

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/category"
	"github.com/username/ecoenergy-api/internal/config"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/model"
	"github.com/username/ecoenergy-api/internal/organization"
	"github.com/username/ecoenergy-api/internal/user"
	"github.com/username/ecoenergy-api/internal/zone"
)

const OrganizationName = "EcoTech Solutions"

// Result reports what the run touched. Created lists only the new rows.
type Result struct {
	Organization organization.Organization
	Created      []string
	Counts       Counts
}

type Counts struct {
	Organizations int64
	Categories    int64
	Zones         int64
	Devices       int64
	Users         int64
}

type seeder struct {
	tx      *gorm.DB
	created []string
}

// firstOrCreate looks up an active row matching where and inserts v when none exists.
func (s *seeder) firstOrCreate(label string, v interface{}, where map[string]interface{}) error {
	where["state"] = model.StateActive
	res := s.tx.Where(where).Limit(1).Find(v)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if err := s.tx.Create(v).Error; err != nil {
		return fmt.Errorf("create %s: %w", label, err)
	}
	s.created = append(s.created, label)
	return nil
}

func (s *seeder) user(u *user.User, password string) error {
	var n int64
	if err := s.tx.Model(&user.User{}).Where("LOWER(email) = ?", strings.ToLower(u.Email)).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := user.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.Active = true
	if err := s.tx.Create(u).Error; err != nil {
		return fmt.Errorf("create user %s: %w", u.Email, err)
	}
	s.created = append(s.created, "user "+u.Email)
	return nil
}

// Run loads the demo data in one transaction.
func Run(ctx context.Context, db *gorm.DB, cfg config.SeedConfig, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := &Result{}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s := &seeder{tx: tx}

		org := organization.Organization{
			Name:    OrganizationName,
			Email:   "contacto@ecotech.cl",
			Phone:   "+56 2 2345 6789",
			Address: "Av. Providencia 1234, Santiago, Chile",
		}
		if err := s.firstOrCreate("organization "+org.Name, &org, map[string]interface{}{"name": org.Name}); err != nil {
			return err
		}

		climate := category.Category{Name: "Climatización", Description: "Equipos de AC", OrganizationID: org.ID}
		lighting := category.Category{Name: "Iluminación", Description: "Luces LED", OrganizationID: org.ID}
		for _, c := range []*category.Category{&climate, &lighting} {
			if err := s.firstOrCreate("category "+c.Name, c, map[string]interface{}{"name": c.Name, "organization_id": org.ID}); err != nil {
				return err
			}
		}

		office := zone.Zone{Name: "Oficina Principal", Description: "Piso 1", OrganizationID: org.ID}
		if err := s.firstOrCreate("zone "+office.Name, &office, map[string]interface{}{"name": office.Name, "organization_id": org.ID}); err != nil {
			return err
		}

		devices := []device.Device{
			{Name: "AC Oficina", MaxConsumption: decimal.RequireFromString("3.5"), CategoryID: climate.ID, ZoneID: office.ID, OrganizationID: org.ID},
			{Name: "Luces LED", MaxConsumption: decimal.RequireFromString("0.4"), CategoryID: lighting.ID, ZoneID: office.ID, OrganizationID: org.ID},
		}
		for i := range devices {
			d := &devices[i]
			if err := s.firstOrCreate("device "+d.Name, d, map[string]interface{}{"name": d.Name, "organization_id": org.ID}); err != nil {
				return err
			}
		}

		if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
			role := auth.OrgRoleAdmin
			admin := user.User{
				Email:          cfg.AdminEmail,
				FullName:       "Carlos Administrador",
				UserType:       auth.UserTypeOrgUser,
				OrganizationID: &org.ID,
				OrgRole:        &role,
				Position:       "Gerente General",
				Phone:          "+56 9 8888 8888",
			}
			if err := s.user(&admin, cfg.AdminPassword); err != nil {
				return err
			}
		}
		if cfg.SuperAdminEmail != "" && cfg.SuperPassword != "" {
			root := user.User{Email: cfg.SuperAdminEmail, FullName: "Super Admin", UserType: auth.UserTypeSuperAdmin}
			if err := s.user(&root, cfg.SuperPassword); err != nil {
				return err
			}
		}

		out.Organization = org
		out.Created = s.created
		return countAll(tx, &out.Counts)
	})
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	log.Info("seed finished",
		zap.String("organization", out.Organization.Name),
		zap.Int("created", len(out.Created)),
	)
	return out, nil
}

func countAll(tx *gorm.DB, c *Counts) error {
	active := func(m interface{}, n *int64) error {
		return tx.Model(m).Where("state = ?", model.StateActive).Count(n).Error
	}
	if err := active(&organization.Organization{}, &c.Organizations); err != nil {
		return err
	}
	if err := active(&category.Category{}, &c.Categories); err != nil {
		return err
	}
	if err := active(&zone.Zone{}, &c.Zones); err != nil {
		return err
	}
	if err := active(&device.Device{}, &c.Devices); err != nil {
		return err
	}
	return tx.Model(&user.User{}).Where("active = ?", true).Count(&c.Users).Error
}

// PrintRoles writes the role catalogue with the permissions of each role.
func PrintRoles(w io.Writer) {
	fmt.Fprintln(w, "Roles:")
	for _, r := range auth.Roles() {
		fmt.Fprintf(w, "  %-9s %-14s %2d permisos\n", r.Code, r.Label, len(r.Permissions))
		fmt.Fprintf(w, "            %s\n", strings.Join(r.Permissions, ", "))
	}
}

func PrintResult(w io.Writer, r *Result) {
	if len(r.Created) == 0 {
		fmt.Fprintln(w, "Nada nuevo: los datos de ejemplo ya existían.")
	}
	for _, c := range r.Created {
		fmt.Fprintf(w, "  + %s\n", c)
	}
	fmt.Fprintf(w, "Organizaciones: %d\nCategorías: %d\nZonas: %d\nDispositivos: %d\nUsuarios: %d\n",
		r.Counts.Organizations, r.Counts.Categories, r.Counts.Zones, r.Counts.Devices, r.Counts.Users)
}
