package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/category"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/session"
	"github.com/username/ecoenergy-api/internal/tenant"
)

func (h *Handler) ListCategories(c *gin.Context) {
	r := category.ListSpec.Parse(c, session.FromContext(c))
	rows, page, err := h.Categories.Page(c.Request.Context(), tenant.FromContext(c), r)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "categories", gin.H{"Title": "Categorías", "Rows": rows, "Page": page})
}

func (h *Handler) ShowCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	scope := tenant.FromContext(c)
	cat, err := h.Categories.Summary(c.Request.Context(), scope, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	devices, err := h.Devices.All(c.Request.Context(), scope, device.Filter{CategoryID: id})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "catalog_detail", gin.H{
		"Title":    cat.Name,
		"Kind":     "Categoría",
		"Base":     "/categories",
		"Resource": "category",
		"ID":       cat.ID,
		"Item":     cat.Category,
		"Org":      cat.OrganizationName,
		"Devices":  devices,
	})
}

func (h *Handler) categoryForm(c *gin.Context, in category.Input, action, title string, create bool) (*Form, error) {
	f := &Form{
		Title:  title,
		Action: action,
		Cancel: "/categories",
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

func categoryInput(c *gin.Context) category.Input {
	return category.Input{
		Name:           c.PostForm("name"),
		Description:    c.PostForm("description"),
		OrganizationID: formInt64Ptr(c, "organization_id"),
	}
}

func (h *Handler) NewCategory(c *gin.Context) {
	f, err := h.categoryForm(c, category.Input{}, "/categories/new", "Nueva categoría", true)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "form", gin.H{"Title": f.Title, "Form": f})
}

func (h *Handler) CreateCategory(c *gin.Context) {
	in := categoryInput(c)
	cat, err := h.Categories.Create(c.Request.Context(), tenant.FromContext(c), in)
	if err != nil {
		h.formError(c, err, func() (*Form, error) {
			return h.categoryForm(c, in, "/categories/new", "Nueva categoría", true)
		})
		return
	}
	h.flash(c, session.FlashSuccess, i18n.M("CategoryCreated", i18n.Data{"Name": cat.Name}))
	h.redirect(c, "/categories/"+idString(cat.ID))
}

func (h *Handler) EditCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	cat, err := h.Categories.Get(c.Request.Context(), tenant.FromContext(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	f, err := h.categoryForm(c, cat.Input(), "/categories/"+idString(id)+"/edit", "Editar categoría", false)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "form", gin.H{"Title": f.Title, "Form": f})
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.ErrNotFound)
		return
	}
	in := categoryInput(c)
	cat, err := h.Categories.Update(c.Request.Context(), tenant.FromContext(c), id, in)
	if err != nil {
		h.formError(c, err, func() (*Form, error) {
			return h.categoryForm(c, in, "/categories/"+idString(id)+"/edit", "Editar categoría", false)
		})
		return
	}
	h.flash(c, session.FlashSuccess, i18n.M("CategoryUpdated", i18n.Data{"Name": cat.Name}))
	h.redirect(c, "/categories/"+idString(cat.ID))
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.ajaxResult(c, apperr.ErrNotFound, i18n.Message{})
		return
	}
	cat, err := h.Categories.Delete(c.Request.Context(), tenant.FromContext(c), id)
	var name string
	if cat != nil {
		name = cat.Name
	}
	h.ajaxResult(c, err, i18n.M("CategoryDeleted", i18n.Data{"Name": name}))
}
