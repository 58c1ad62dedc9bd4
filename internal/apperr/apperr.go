package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/username/ecoenergy-api/internal/i18n"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrNoOrganization = errors.New("user has no organization")
)

// FieldErrors maps a field name to its first validation message.
type FieldErrors map[string]i18n.Message

func (f FieldErrors) Add(field, id string, data i18n.Data) {
	if _, exists := f[field]; exists {
		return
	}
	f[field] = i18n.M(id, data)
}

func (f FieldErrors) Has(field string) bool {
	_, ok := f[field]
	return ok
}

// Err returns nil when no field failed.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// ValidationError is returned by services when input is rejected.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+i18n.Tr("en", e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Localized renders every field message for the request language.
func (e *ValidationError) Localized(c *gin.Context) map[string]string {
	out := make(map[string]string, len(e.Fields))
	for k, m := range e.Fields {
		out[k] = i18n.T(c, m)
	}
	return out
}

// Invalid is a shortcut for a single-field validation error.
func Invalid(field, id string, data i18n.Data) error {
	f := FieldErrors{}
	f.Add(field, id, data)
	return f.Err()
}

// DeclinedError reports an operation refused by a referential guard.
type DeclinedError struct {
	Message    i18n.Message
	Dependents int64
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("declined: %s (%d dependents)", e.Message.ID, e.Dependents)
}

func Declined(id string, name string, count int64) error {
	return &DeclinedError{
		Message:    i18n.M(id, i18n.Data{"Name": name, "Count": count}),
		Dependents: count,
	}
}

// Respond writes err as the API's JSON error body.
func Respond(c *gin.Context, err error) {
	var ve *ValidationError
	var de *DeclinedError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": i18n.T(c, i18n.M("ValidationFailed", nil)),
			"fields":  ve.Localized(c),
		})
	case errors.As(err, &de):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "has_dependents",
			"message":    i18n.T(c, de.Message),
			"dependents": de.Dependents,
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": i18n.T(c, i18n.M("NotFound", nil))})
	case errors.Is(err, ErrNoOrganization):
		c.JSON(http.StatusForbidden, gin.H{"error": "no_org_access", "message": i18n.T(c, i18n.M("NoOrganization", nil))})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": i18n.T(c, i18n.M("Forbidden", nil))})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db_error", "message": err.Error()})
	}
}

// FromDB maps gorm.ErrRecordNotFound to ErrNotFound and passes other errors through.
func FromDB(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ParamID reads a numeric path parameter; on failure it writes 400 and returns false.
func ParamID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, "InvalidID", nil)
		return 0, false
	}
	return id, true
}

// BadRequest writes a 400 with a translated message.
func BadRequest(c *gin.Context, id string, data i18n.Data) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": i18n.T(c, i18n.M(id, data))})
}
