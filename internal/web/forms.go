package web

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/tenant"
)

// format input datetime-local
const dateTimeLocal = "2006-01-02T15:04"

type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Field is one form control rendered by the generic form template.
type Field struct {
	Name     string
	Label    string
	Type     string
	Value    string
	Step     string
	Required bool
	Options  []Option
	Error    string
}

// Form is the data of form.html.
type Form struct {
	Title    string
	Action   string
	Cancel   string
	Submit   string
	Fields   []Field
	Warnings []string
}

// Errors copies the localized messages of a validation error onto the fields.
// It reports false for any other error.
func (f *Form) Errors(c *gin.Context, err error) bool {
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	msgs := ve.Localized(c)
	for i := range f.Fields {
		if m, ok := msgs[f.Fields[i].Name]; ok {
			f.Fields[i].Error = m
			delete(msgs, f.Fields[i].Name)
		}
	}
	// error tanpa field yang cocok ditampilkan di atas form
	for _, m := range msgs {
		f.Warnings = append(f.Warnings, m)
	}
	return true
}

func formInt64(c *gin.Context, name string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(c.PostForm(name)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func formInt64Ptr(c *gin.Context, name string) *int64 {
	if n := formInt64(c, name); n > 0 {
		return &n
	}
	return nil
}

// formDecimal returns zero for an unparsable value; the services reject it as not positive.
func formDecimal(c *gin.Context, name string) decimal.Decimal {
	raw := strings.ReplaceAll(strings.TrimSpace(c.PostForm(name)), ",", ".")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// formTime parses a datetime-local value in the server time zone. Empty means now.
func formTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.PostForm(name))
	if raw == "" {
		return nil, true
	}
	t, err := time.ParseInLocation(dateTimeLocal, raw, time.Local)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func idString(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func idPtrString(id *int64) string {
	if id == nil {
		return ""
	}
	return idString(*id)
}

func options(selected int64, values []int64, labels []string) []Option {
	out := make([]Option, 0, len(values)+1)
	out = append(out, Option{Value: "", Label: "---------"})
	for i, v := range values {
		out = append(out, Option{Value: idString(v), Label: labels[i], Selected: v == selected})
	}
	return out
}

// organizationField is only shown to superusers, who pick the owner of a new row.
func (h *Handler) organizationField(c *gin.Context, selected *int64) (*Field, error) {
	cu, _ := auth.GetCurrentUser(c)
	if !cu.IsSuperAdmin() || h.Organizations == nil {
		return nil, nil
	}
	orgs, err := h.Organizations.Options(c.Request.Context(), tenant.All())
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(orgs))
	names := make([]string, len(orgs))
	for i, o := range orgs {
		ids[i], names[i] = o.ID, o.Name
	}
	var sel int64
	if selected != nil {
		sel = *selected
	}
	return &Field{
		Name:     "organization_id",
		Label:    "Organización",
		Type:     "select",
		Required: true,
		Options:  options(sel, ids, names),
	}, nil
}

func translateAll(c *gin.Context, msgs []i18n.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = i18n.T(c, m)
	}
	return out
}
