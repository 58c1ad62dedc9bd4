package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/session"
	"github.com/username/ecoenergy-api/internal/tenant"
	"github.com/username/ecoenergy-api/internal/zone"
)

// zoneFilters is what the zone list remembers between visits.
type zoneFilters struct {
	Search string `json:"search"`
}

// ListZones counts the visit, remembers the search term until clear_filters is sent
// and renders the page.
func (h *Handler) ListZones(c *gin.Context) {
	sess := session.FromContext(c)

	if c.Query("clear_filters") != "" {
		sess.Delete(session.KeyZoneFilters)
		h.flash(c, session.FlashInfo, i18n.M("ZoneFiltersCleared", nil))
		h.redirect(c, "/zones")
		return
	}

	visits := sess.GetInt(session.KeyZoneVisits, 0) + 1
	sess.SetInt(session.KeyZoneVisits, visits)

	r := zone.ListSpec.Parse(c, sess)
	if r.Search != "" {
		raw, _ := json.Marshal(zoneFilters{Search: r.Search})
		sess.Set(session.KeyZoneFilters, string(raw))
	} else if raw, ok := sess.Get(session.KeyZoneFilters); ok {
		var saved zoneFilters
		if json.Unmarshal([]byte(raw), &saved) == nil && saved.Search != "" {
			r.Search = saved.Search
			r.Query.Set("search", saved.Search)
		}
	}
	_, hasSaved := sess.Get(session.KeyZoneFilters)

	rows, page, err := h.Zones.Page(c.Request.Context(), tenant.FromContext(c), r)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "zones", gin.H{
		"Title":        "Zonas",
		"Rows":         rows,
		"Page":         page,
		"Visits":       visits,
		"SavedFilters": hasSaved,
	})
}

func (h *Handler) ShowZone(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	scope := tenant.FromContext(c)
	z, err := h.Zones.Summary(c.Request.Context(), scope, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	devices, err := h.Devices.All(c.Request.Context(), scope, device.Filter{ZoneID: id})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "catalog_detail", gin.H{
		"Title":    z.Name,
		"Kind":     "Zona",
		"Base":     "/zones",
		"Resource": "zone",
		"ID":       z.ID,
		"Item":     z.Zone,
		"Org":      z.OrganizationName,
		"Devices":  devices,
	})
}

func (h *Handler) zoneForm(c *gin.Context, in zone.Input, action, title string, create bool) (*Form, error) {
	f := &Form{
		Title:  title,
		Action: action,
		Cancel: "/zones",
		Submit: "Guardar",
		Fields: []Field{
			{Name: "name", Label: "Nombre", Type: "text", Value: in.Name, Required: true},
			{Name: "description", Label: "Descripción", Type: "textarea", Value: in.Description},
		},
	}
	if !create {
		return f, nil
	}
	org, err := h.organizationField(c, in.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org != nil {
		f.Fields = append(f.Fields, *org)
	}
	return f, nil
}

func zoneInput(c *gin.Context) zone.Input {
	return zone.Input{
		Name:           c.PostForm("name"),
		Description:    c.PostForm("description"),
		OrganizationID: formInt64Ptr(c, "organization_id"),
	}
}

func (h *Handler) NewZone(c *gin.Context) {
	f, err := h.zoneForm(c, zone.Input{}, "/zones/new", "Nueva zona", true)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "form", gin.H{"Title": f.Title, "Form": f})
}

func (h *Handler) CreateZone(c *gin.Context) {
	in := zoneInput(c)
	z, err := h.Zones.Create(c.Request.Context(), tenant.FromContext(c), in)
	if err != nil {
		h.formError(c, err, func() (*Form, error) { return h.zoneForm(c, in, "/zones/new", "Nueva zona", true) })
		return
	}
	h.flash(c, session.FlashSuccess, i18n.M("ZoneCreated", i18n.Data{"Name": z.Name}))
	h.redirect(c, "/zones/"+idString(z.ID))
}

func (h *Handler) EditZone(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	z, err := h.Zones.Get(c.Request.Context(), tenant.FromContext(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	f, err := h.zoneForm(c, z.Input(), "/zones/"+idString(id)+"/edit", "Editar zona", false)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "form", gin.H{"Title": f.Title, "Form": f})
}

func (h *Handler) UpdateZone(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	in := zoneInput(c)
	z, err := h.Zones.Update(c.Request.Context(), tenant.FromContext(c), id, in)
	if err != nil {
		h.formError(c, err, func() (*Form, error) {
			return h.zoneForm(c, in, "/zones/"+idString(id)+"/edit", "Editar zona", false)
		})
		return
	}
	h.flash(c, session.FlashSuccess, i18n.M("ZoneUpdated", i18n.Data{"Name": z.Name}))
	h.redirect(c, "/zones/"+idString(z.ID))
}

func (h *Handler) DeleteZone(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.ajaxResult(c, apperr.ErrNotFound, i18n.Message{})
		return
	}
	z, err := h.Zones.Delete(c.Request.Context(), tenant.FromContext(c), id)
	var name string
	if z != nil {
		name = z.Name
	}
	h.ajaxResult(c, err, i18n.M("ZoneDeleted", i18n.Data{"Name": name}))
}

// formError re-renders a form with its validation messages, or the error page.
func (h *Handler) formError(c *gin.Context, err error, build func() (*Form, error)) {
	f, ferr := build()
	if ferr != nil {
		h.fail(c, ferr)
		return
	}
	if !f.Errors(c, err) {
		h.fail(c, err)
		return
	}
	session.FromContext(c).AddFlash(session.FlashError, i18n.T(c, i18n.M("ValidationFailed", nil)))
	h.render(c, http.StatusBadRequest, "form", gin.H{"Title": f.Title, "Form": f})
}
