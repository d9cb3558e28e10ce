package store

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/lens-onboard/ports"
)

// CookieTemplate holds the attributes applied to every cookie written by CookieStore
type CookieTemplate struct {
	Path     string        `yaml:"path"`
	Domain   string        `yaml:"domain"`
	MaxAge   int           `yaml:"maxAge"`
	Secure   bool          `yaml:"secure"`
	HTTPOnly bool          `yaml:"httpOnly"`
	SameSite http.SameSite `yaml:"-"`
}

// DefaultCookieTemplate returns the template used when none is configured
func DefaultCookieTemplate() CookieTemplate {
	return CookieTemplate{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// CookieStore is a KeyValueStore over the cookies of one gin request/response pair.
// Writes are visible to later reads in the same request.
type CookieStore struct {
	c        *gin.Context
	template CookieTemplate
	written  map[string]*string
}

var _ ports.KeyValueStore = (*CookieStore)(nil)

// NewCookieStore binds a store to a request
func NewCookieStore(c *gin.Context, template CookieTemplate) *CookieStore {
	return &CookieStore{
		c:        c,
		template: template,
		written:  make(map[string]*string),
	}
}

// GetItem returns the cookie value for key
func (s *CookieStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	if v, ok := s.written[key]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}

	v, err := s.c.Cookie(key)
	if err != nil {
		return "", false, nil
	}
	return v, true, nil
}

// SetItem writes the cookie
func (s *CookieStore) SetItem(ctx context.Context, key, value string) error {
	s.set(key, value, s.template.MaxAge)
	s.written[key] = &value
	return nil
}

// RemoveItem expires the cookie
func (s *CookieStore) RemoveItem(ctx context.Context, key string) error {
	s.set(key, "", -1)
	s.written[key] = nil
	return nil
}

func (s *CookieStore) set(key, value string, maxAge int) {
	if s.template.SameSite != 0 {
		s.c.SetSameSite(s.template.SameSite)
	}
	s.c.SetCookie(key, value, maxAge, s.template.Path, s.template.Domain, s.template.Secure, s.template.HTTPOnly)
}
