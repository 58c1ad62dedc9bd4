package i18n

import (
	"embed"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/gin-gonic/gin"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// Data is the template data of a message.
type Data = map[string]interface{}

// Message is a translatable message id plus its template data.
type Message struct {
	ID   string
	Data Data
}

func M(id string, data Data) Message {
	return Message{ID: id, Data: data}
}

// Translator wraps a go-i18n bundle with the supported languages.
type Translator struct {
	bundle   *goi18n.Bundle
	matcher  language.Matcher
	fallback string
}

var (
	defaultMu sync.RWMutex
	defaultT  *Translator
)

// New loads the embedded catalogues. defaultLang is used when a request names no known language.
func New(defaultLang string) (*Translator, error) {
	fallback := language.Spanish
	if tag, err := language.Parse(defaultLang); err == nil {
		fallback = tag
	}

	bundle := goi18n.NewBundle(fallback)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+e.Name()); err != nil {
			return nil, err
		}
	}

	base, _ := fallback.Base()
	return &Translator{
		bundle:   bundle,
		matcher:  language.NewMatcher(bundle.LanguageTags()),
		fallback: base.String(),
	}, nil
}

// Default returns the process-wide translator, creating a Spanish one on first use.
func Default() *Translator {
	defaultMu.RLock()
	t := defaultT
	defaultMu.RUnlock()
	if t != nil {
		return t
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultT == nil {
		tr, err := New("es")
		if err != nil {
			// katalog di-embed, error di sini berarti build rusak
			panic(err)
		}
		defaultT = tr
	}
	return defaultT
}

// SetDefault replaces the process-wide translator.
func SetDefault(t *Translator) {
	defaultMu.Lock()
	defaultT = t
	defaultMu.Unlock()
}

// Translate renders msg in lang. Unknown ids render as the id itself.
func (t *Translator) Translate(lang string, msg Message) string {
	loc := goi18n.NewLocalizer(t.bundle, lang, t.fallback)
	out, err := loc.Localize(&goi18n.LocalizeConfig{
		MessageID:    msg.ID,
		TemplateData: msg.Data,
	})
	if err != nil {
		return msg.ID
	}
	return out
}

// Lang picks the request language from ?lang, X-Lang or Accept-Language.
func (t *Translator) Lang(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return t.fallback
	}
	candidates := []string{c.Query("lang"), c.GetHeader("X-Lang")}
	for _, v := range candidates {
		if v == "" {
			continue
		}
		if tag, err := language.Parse(v); err == nil {
			return t.match(tag)
		}
	}
	if accept := c.GetHeader("Accept-Language"); accept != "" {
		tags, _, err := language.ParseAcceptLanguage(accept)
		if err == nil && len(tags) > 0 {
			return t.match(tags...)
		}
	}
	return t.fallback
}

func (t *Translator) match(tags ...language.Tag) string {
	tag, _, conf := t.matcher.Match(tags...)
	if conf == language.No {
		return t.fallback
	}
	base, _ := tag.Base()
	return strings.ToLower(base.String())
}

// T translates msg for the language of the request.
func T(c *gin.Context, msg Message) string {
	t := Default()
	return t.Translate(t.Lang(c), msg)
}

// Tr translates msg for an explicit language.
func Tr(lang string, msg Message) string {
	return Default().Translate(lang, msg)
}

// DefaultLang is the fallback language of the process-wide translator.
func DefaultLang() string {
	return Default().fallback
}
