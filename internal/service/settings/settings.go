// Package settings keeps the per-browser upstream configuration: endpoint, key and the two
// feature switches.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidConfig is returned by Save when a field fails validation.
var ErrInvalidConfig = errors.New("invalid settings")

// AppConfig uses the key names the browser stores under CHAT_API_CONFIG.
type AppConfig struct {
	APIURL           string `json:"API_URL" yaml:"API_URL"`
	APIKey           string `json:"API_KEY" yaml:"API_KEY"`
	EnableUploadFile bool   `json:"ENABLE_UPLOAD_FILE" yaml:"ENABLE_UPLOAD_FILE"`
	EnableSelectMode bool   `json:"ENABLE_SELECT_MODE" yaml:"ENABLE_SELECT_MODE"`
}

// Redacted returns a copy safe to log or send back to the browser.
func (c AppConfig) Redacted() AppConfig {
	if len(c.APIKey) > 4 {
		c.APIKey = strings.Repeat("*", len(c.APIKey)-4) + c.APIKey[len(c.APIKey)-4:]
	} else if c.APIKey != "" {
		c.APIKey = "****"
	}
	return c
}

// Validate mirrors the settings form: both fields are required and the URL must be absolute.
func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("%w: API_URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: API_URL must be an absolute http(s) URL", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: API_KEY is required", ErrInvalidConfig)
	}
	return nil
}

// Store persists settings per browser client.
type Store interface {
	Get(ctx context.Context, clientID string) (AppConfig, bool, error)
	Put(ctx context.Context, clientID string, cfg AppConfig) error
}

// Service resolves the settings a session starts with.
type Service struct {
	store        Store
	defaults     *Defaults
	allowedHosts map[string]struct{}
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithAllowedHosts limits the API_URL hosts a client may save. Without it any host is accepted.
func WithAllowedHosts(hosts ...string) ServiceOption {
	return func(s *Service) {
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				if s.allowedHosts == nil {
					s.allowedHosts = make(map[string]struct{})
				}
				s.allowedHosts[h] = struct{}{}
			}
		}
	}
}

func NewService(store Store, defaults *Defaults, opts ...ServiceOption) *Service {
	s := &Service{store: store, defaults: defaults}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stored returns only what the client saved itself, never the defaults.
func (s *Service) Stored(ctx context.Context, clientID string) (AppConfig, bool, error) {
	if clientID == "" {
		return AppConfig{}, false, nil
	}
	cfg, ok, err := s.store.Get(ctx, clientID)
	if err != nil {
		return AppConfig{}, false, fmt.Errorf("load settings: %w", err)
	}
	return cfg, ok, nil
}

// Resolve returns the client's saved settings, or the current defaults when nothing is saved.
func (s *Service) Resolve(ctx context.Context, clientID string) (AppConfig, error) {
	if clientID != "" {
		cfg, ok, err := s.store.Get(ctx, clientID)
		if err != nil {
			return AppConfig{}, fmt.Errorf("load settings: %w", err)
		}
		if ok {
			return cfg, nil
		}
	}
	return s.defaults.Current(), nil
}

// Save validates and stores the client's settings.
func (s *Service) Save(ctx context.Context, clientID string, cfg AppConfig) (AppConfig, error) {
	if clientID == "" {
		return AppConfig{}, fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	cfg.APIURL = strings.TrimSpace(cfg.APIURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	if err := s.checkHost(cfg.APIURL); err != nil {
		return AppConfig{}, err
	}
	if err := s.store.Put(ctx, clientID, cfg); err != nil {
		return AppConfig{}, fmt.Errorf("save settings: %w", err)
	}
	return cfg, nil
}

func (s *Service) checkHost(rawURL string) error {
	if len(s.allowedHosts) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: API_URL must be an absolute http(s) URL", ErrInvalidConfig)
	}
	if _, ok := s.allowedHosts[strings.ToLower(u.Hostname())]; !ok {
		return fmt.Errorf("%w: API_URL host %q is not allowed", ErrInvalidConfig, u.Hostname())
	}
	return nil
}
