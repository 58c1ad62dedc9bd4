// Package web is the server-rendered back office: session login, dashboard,
// entity lists with search, sort and per-page preferences, forms, and the
// AJAX endpoints used by the list pages to delete or resolve rows.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/username/ecoenergy-api/internal/alert"
	"github.com/username/ecoenergy-api/internal/apperr"
	"github.com/username/ecoenergy-api/internal/auth"
	"github.com/username/ecoenergy-api/internal/category"
	"github.com/username/ecoenergy-api/internal/dashboard"
	"github.com/username/ecoenergy-api/internal/device"
	"github.com/username/ecoenergy-api/internal/export"
	"github.com/username/ecoenergy-api/internal/i18n"
	"github.com/username/ecoenergy-api/internal/measurement"
	"github.com/username/ecoenergy-api/internal/organization"
	"github.com/username/ecoenergy-api/internal/pagination"
	"github.com/username/ecoenergy-api/internal/session"
	"github.com/username/ecoenergy-api/internal/zone"
)

const (
	LoginPath = "/login"
	// halaman tujuan saat permission halaman ditolak
	deniedPath = "/zones"
)

//go:embed templates/*.html
var templateFS embed.FS

// Services are the domain services the pages read and write through.
type Services struct {
	Users         auth.Authenticator
	Organizations *organization.Service
	Zones         *zone.Service
	Categories    *category.Service
	Devices       *device.Service
	Measurements  *measurement.Service
	Alerts        *alert.Service
	Dashboard     *dashboard.Service
	// Export is optional; when set the workbook downloads are served to logged-in users too.
	Export *export.Handler
}

type Handler struct {
	Services
	Log   *zap.Logger
	pages map[string]*template.Template
}

func New(svc Services, log *zap.Logger) (*Handler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Handler{Services: svc, Log: log.Named("web"), pages: pages}, nil
}

func funcs() template.FuncMap {
	fm := sprig.FuncMap()
	fm["perm"] = func(resource, action string) auth.Permission {
		return auth.Perm(auth.Resource(resource), auth.Action(action))
	}
	fm["kw"] = func(v interface{}) string {
		switch d := v.(type) {
		case decimal.Decimal:
			return d.StringFixed(2)
		case decimal.NullDecimal:
			if !d.Valid {
				return "-"
			}
			return d.Decimal.StringFixed(2)
		default:
			return fmt.Sprint(v)
		}
	}
	fm["sortq"] = sortQuery
	fm["withq"] = withQuery
	fm["qurl"] = func(path string, p pagination.Page) string {
		if p.Querystring == "" {
			return path
		}
		return path + "?" + p.Querystring
	}
	fm["pageq"] = func(p pagination.Page, n int) string {
		if p.Querystring == "" {
			return fmt.Sprintf("?page=%d", n)
		}
		return fmt.Sprintf("?%s&page=%d", p.Querystring, n)
	}
	fm["roleLabel"] = func(cu auth.CurrentUser) string {
		if cu.IsSuperAdmin() {
			return "Super Admin"
		}
		if cu.OrgRole == nil {
			return ""
		}
		return auth.RoleLabel(*cu.OrgRole)
	}
	return fm
}

// parsePages builds one template set per page so every page can define "content".
func parsePages() (map[string]*template.Template, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	pages := map[string]*template.Template{}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".html")
		if name == "layout" {
			continue
		}
		t, err := template.New(name).Funcs(funcs()).ParseFS(templateFS, "templates/layout.html", "templates/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// withQuery replaces one parameter of the current list query and goes back to page one.
func withQuery(p pagination.Page, key, value string) string {
	q, _ := url.ParseQuery(p.Querystring)
	q.Set(key, value)
	q.Del("page")
	return "?" + q.Encode()
}

// sortQuery toggles key in the current list query: key, then -key.
func sortQuery(p pagination.Page, key string) string {
	if p.Sort == key {
		key = "-" + key
	}
	return withQuery(p, "sort", key)
}

func (h *Handler) render(c *gin.Context, status int, name string, data gin.H) {
	t, ok := h.pages[name]
	if !ok {
		h.Log.Error("unknown template", zap.String("name", name))
		c.String(http.StatusInternalServerError, "template %s not found", name)
		return
	}
	if data == nil {
		data = gin.H{}
	}
	cu, _ := auth.GetCurrentUser(c)
	data["User"] = cu
	data["Flashes"] = session.FromContext(c).Flashes()
	data["Path"] = c.Request.URL.Path

	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(c.Writer, "layout", data); err != nil {
		h.Log.Error("render failed", zap.String("template", name), zap.Error(err))
	}
}

func (h *Handler) flash(c *gin.Context, level string, msg i18n.Message) {
	session.FromContext(c).AddFlash(level, i18n.T(c, msg))
}

func (h *Handler) redirect(c *gin.Context, path string) {
	c.Redirect(http.StatusFound, path)
}

// fail renders the error page for a lookup or database error.
func (h *Handler) fail(c *gin.Context, err error) {
	status, id := http.StatusInternalServerError, "InternalError"
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status, id = http.StatusNotFound, "NotFound"
	case errors.Is(err, apperr.ErrNoOrganization):
		status, id = http.StatusForbidden, "NoOrganization"
	case errors.Is(err, apperr.ErrForbidden):
		status, id = http.StatusForbidden, "Forbidden"
	default:
		h.Log.Error("page failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	h.render(c, status, "error", gin.H{"Title": status, "Message": i18n.T(c, i18n.M(id, nil))})
}

// page guards a page with p: without it the user is sent back with a warning.
func page(r auth.Resource, a auth.Action) gin.HandlerFunc {
	p := auth.Perm(r, a)
	return func(c *gin.Context) {
		cu, _ := auth.GetCurrentUser(c)
		if cu.Can(p) {
			c.Next()
			return
		}
		session.FromContext(c).AddFlash(session.FlashWarning, i18n.T(c, i18n.M("Forbidden", nil)))
		target := deniedPath
		if c.Request.URL.Path == deniedPath {
			target = "/"
		}
		c.Redirect(http.StatusFound, target)
		c.Abort()
	}
}

// ajax guards a JSON endpoint: 401 without login, 403 without p, 400 for non-AJAX requests.
func ajax(r auth.Resource, a auth.Action) gin.HandlerFunc {
	p := auth.Perm(r, a)
	return func(c *gin.Context) {
		cu, ok := auth.GetCurrentUser(c)
		switch {
		case !ok:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": i18n.T(c, i18n.M("LoginRequired", nil))})
		case !cu.Can(p):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "error": i18n.T(c, i18n.M("AjaxForbidden", nil))})
		case c.GetHeader("X-Requested-With") != "XMLHttpRequest":
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": i18n.T(c, i18n.M("BadRequest", nil))})
		default:
			c.Next()
		}
	}
}

// ajaxResult writes the outcome of an AJAX action. Declined operations are
// not HTTP errors: the page shows the message.
func (h *Handler) ajaxResult(c *gin.Context, err error, okMsg i18n.Message) {
	var de *apperr.DeclinedError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": i18n.T(c, okMsg)})
	case errors.As(err, &de):
		c.JSON(http.StatusOK, gin.H{"ok": false, "message": i18n.T(c, de.Message)})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": i18n.T(c, i18n.M("NotFound", nil))})
	default:
		h.Log.Error("ajax action failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": i18n.T(c, i18n.M("InternalError", nil))})
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET(LoginPath, h.LoginForm)
	r.POST(LoginPath, h.Login)
	r.GET("/logout", h.Logout)
	r.POST("/logout", h.Logout)

	r.POST("/zones/:id/delete", ajax(auth.ResourceZone, auth.ActionDelete), h.DeleteZone)
	r.POST("/categories/:id/delete", ajax(auth.ResourceCategory, auth.ActionDelete), h.DeleteCategory)
	r.POST("/devices/:id/delete", ajax(auth.ResourceDevice, auth.ActionDelete), h.DeleteDevice)
	r.POST("/measurements/:id/delete", ajax(auth.ResourceMeasurement, auth.ActionDelete), h.DeleteMeasurement)
	r.POST("/alerts/:id/resolve", ajax(auth.ResourceAlert, auth.ActionChange), h.ResolveAlert)

	g := r.Group("/", auth.RequireSessionLogin(LoginPath))
	g.GET("/", h.Dashboard)

	g.GET("/zones", page(auth.ResourceZone, auth.ActionView), h.ListZones)
	g.GET("/zones/new", page(auth.ResourceZone, auth.ActionAdd), h.NewZone)
	g.POST("/zones/new", page(auth.ResourceZone, auth.ActionAdd), h.CreateZone)
	g.GET("/zones/:id", page(auth.ResourceZone, auth.ActionView), h.ShowZone)
	g.GET("/zones/:id/edit", page(auth.ResourceZone, auth.ActionChange), h.EditZone)
	g.POST("/zones/:id/edit", page(auth.ResourceZone, auth.ActionChange), h.UpdateZone)

	g.GET("/categories", page(auth.ResourceCategory, auth.ActionView), h.ListCategories)
	g.GET("/categories/new", page(auth.ResourceCategory, auth.ActionAdd), h.NewCategory)
	g.POST("/categories/new", page(auth.ResourceCategory, auth.ActionAdd), h.CreateCategory)
	g.GET("/categories/:id", page(auth.ResourceCategory, auth.ActionView), h.ShowCategory)
	g.GET("/categories/:id/edit", page(auth.ResourceCategory, auth.ActionChange), h.EditCategory)
	g.POST("/categories/:id/edit", page(auth.ResourceCategory, auth.ActionChange), h.UpdateCategory)

	g.GET("/devices", page(auth.ResourceDevice, auth.ActionView), h.ListDevices)
	g.GET("/devices/new", page(auth.ResourceDevice, auth.ActionAdd), h.NewDevice)
	g.POST("/devices/new", page(auth.ResourceDevice, auth.ActionAdd), h.CreateDevice)
	g.GET("/devices/:id", page(auth.ResourceDevice, auth.ActionView), h.ShowDevice)
	g.GET("/devices/:id/edit", page(auth.ResourceDevice, auth.ActionChange), h.EditDevice)
	g.POST("/devices/:id/edit", page(auth.ResourceDevice, auth.ActionChange), h.UpdateDevice)

	g.GET("/measurements", page(auth.ResourceMeasurement, auth.ActionView), h.ListMeasurements)
	g.GET("/measurements/new", page(auth.ResourceMeasurement, auth.ActionAdd), h.NewMeasurement)
	g.POST("/measurements/new", page(auth.ResourceMeasurement, auth.ActionAdd), h.CreateMeasurement)
	g.GET("/measurements/:id", page(auth.ResourceMeasurement, auth.ActionView), h.ShowMeasurement)
	g.GET("/measurements/:id/edit", page(auth.ResourceMeasurement, auth.ActionChange), h.EditMeasurement)
	g.POST("/measurements/:id/edit", page(auth.ResourceMeasurement, auth.ActionChange), h.UpdateMeasurement)

	g.GET("/alerts", page(auth.ResourceAlert, auth.ActionView), h.ListAlerts)

	if h.Export != nil {
		h.Export.RegisterRoutes(g)
	}
}
