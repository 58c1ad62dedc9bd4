package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Keys of the UI preferences kept in the session.
const (
	KeyZoneVisits  = "zone_visits"
	KeyZoneFilters = "zone_filters"

	keyFlash = "_flash"
	ctxKey   = "session"
)

// Flash levels, named after the bootstrap alert classes used by the templates.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashError   = "danger"
)

type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Session is the per-request view of the stored values.
type Session struct {
	id     string
	values map[string]string
	isNew  bool
	dirty  bool
}

func newSession() *Session {
	return &Session{id: uuid.NewString(), values: map[string]string{}, isNew: true}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) GetInt(key string, def int) int {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Session) Set(key, value string) {
	if cur, ok := s.values[key]; ok && cur == value {
		return
	}
	s.values[key] = value
	s.dirty = true
}

func (s *Session) SetInt(key string, n int) {
	s.Set(key, strconv.Itoa(n))
}

// Delete removes keys; missing keys are ignored.
func (s *Session) Delete(keys ...string) {
	for _, k := range keys {
		if _, ok := s.values[k]; ok {
			delete(s.values, k)
			s.dirty = true
		}
	}
}

// Clear drops every value, including the login identity.
func (s *Session) Clear() {
	if len(s.values) > 0 {
		s.values = map[string]string{}
		s.dirty = true
	}
}

func (s *Session) AddFlash(level, message string) {
	flashes := s.peekFlashes()
	flashes = append(flashes, Flash{Level: level, Message: message})
	raw, _ := json.Marshal(flashes)
	s.Set(keyFlash, string(raw))
}

// Flashes returns and consumes the pending flash messages.
func (s *Session) Flashes() []Flash {
	flashes := s.peekFlashes()
	s.Delete(keyFlash)
	return flashes
}

func (s *Session) peekFlashes() []Flash {
	raw, ok := s.values[keyFlash]
	if !ok {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal([]byte(raw), &flashes); err != nil {
		return nil
	}
	return flashes
}

// Options controls the session cookie.
type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Middleware loads the session named by the cookie and persists it after the handler ran.
func Middleware(store Store, opts Options, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("session")
	return func(c *gin.Context) {
		var s *Session
		if id, err := c.Cookie(opts.CookieName); err == nil && id != "" {
			values, err := store.Load(c.Request.Context(), id)
			switch {
			case err == nil:
				s = &Session{id: id, values: values}
			case errors.Is(err, ErrSessionNotFound):
			default:
				logger.Error("failed to load session", zap.Error(err))
			}
		}
		if s == nil {
			s = newSession()
		}

		// cookie ditulis sebelum handler supaya header belum terkirim
		if s.isNew {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(opts.CookieName, s.id, int(opts.TTL.Seconds()), "/", "", opts.Secure, true)
		}
		c.Set(ctxKey, s)

		c.Next()

		if !s.dirty {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var err error
		if len(s.values) == 0 {
			err = store.Delete(ctx, s.id)
		} else {
			err = store.Save(ctx, s.id, s.values, opts.TTL)
		}
		if err != nil {
			logger.Error("failed to persist session", zap.String("id", s.id), zap.Error(err))
		}
	}
}

// FromContext returns the request session, or a detached one when no middleware ran.
func FromContext(c *gin.Context) *Session {
	if v, ok := c.Get(ctxKey); ok {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	s := newSession()
	c.Set(ctxKey, s)
	return s
}
