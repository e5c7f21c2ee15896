package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/disaster-feed-service/internal/adapter/replay"
	"github.com/couchcryptid/disaster-feed-service/internal/adapter/twitter"
	"github.com/couchcryptid/disaster-feed-service/internal/config"
	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

// ProviderConfig describes one entry of the provider chain. Credentials are
// required only for enabled providers of the matching kind.
type ProviderConfig struct {
	Kind        string `json:"kind" validate:"required,oneof=official twitterapi_io replay synthetic"`
	BearerToken string `json:"bearer_token,omitempty" validate:"required_if=Kind official Disabled false"`
	APIKey      string `json:"api_key,omitempty" validate:"required_if=Kind twitterapi_io Disabled false"`
	FixturePath string `json:"fixture_path,omitempty" validate:"required_if=Kind replay Disabled false"`
	Disabled    bool   `json:"disabled,omitempty"`
}

// ProviderBuilder turns a validated config into a provider.
type ProviderBuilder func(ProviderConfig) (domain.Provider, error)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewProviderBuilder returns the builder used in production.
func NewProviderBuilder(timeout time.Duration, logger *slog.Logger) ProviderBuilder {
	return func(pc ProviderConfig) (domain.Provider, error) {
		switch pc.Kind {
		case config.ProviderOfficial:
			return twitter.NewOfficial(pc.BearerToken, timeout, logger), nil
		case config.ProviderTwitterAPIIO:
			return twitter.NewTwitterAPIIO(pc.APIKey, timeout, logger), nil
		case config.ProviderReplay:
			return replay.Load(pc.FixturePath)
		default:
			return nil, fmt.Errorf("no builder for provider kind %q", pc.Kind)
		}
	}
}

// ProviderConfigs derives the startup chain from the environment settings,
// keeping PROVIDER_ORDER and skipping disabled or unconfigured providers.
func ProviderConfigs(cfg *config.Config) []ProviderConfig {
	var out []ProviderConfig
	for _, kind := range cfg.ProviderOrder {
		switch kind {
		case config.ProviderOfficial:
			if cfg.TwitterOfficialEnabled {
				out = append(out, ProviderConfig{Kind: kind, BearerToken: cfg.TwitterBearerToken})
			}
		case config.ProviderTwitterAPIIO:
			if cfg.TwitterAPIIOEnabled {
				out = append(out, ProviderConfig{Kind: kind, APIKey: cfg.TwitterAPIIOKey})
			}
		case config.ProviderReplay:
			if cfg.ReplayFixturePath != "" {
				out = append(out, ProviderConfig{Kind: kind, FixturePath: cfg.ReplayFixturePath})
			}
		}
	}
	return out
}

// validateConfigs checks every entry before anything is built.
func validateConfigs(configs []ProviderConfig) error {
	var errs []error
	seen := make(map[string]bool, len(configs))
	for i := range configs {
		pc := &configs[i]
		pc.Kind = strings.ToLower(strings.TrimSpace(pc.Kind))
		if err := validate.Struct(pc); err != nil {
			errs = append(errs, describeValidation(i, pc.Kind, err))
			continue
		}
		if seen[pc.Kind] {
			errs = append(errs, fmt.Errorf("providers[%d]: %s listed more than once", i, pc.Kind))
		}
		seen[pc.Kind] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

func describeValidation(i int, kind string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("providers[%d]: %w", i, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required for %s", fieldName(fe.Field()), kind))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("unknown kind %q", fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is %s", fieldName(fe.Field()), fe.Tag()))
		}
	}
	return fmt.Errorf("providers[%d]: %s", i, strings.Join(msgs, "; "))
}

func fieldName(field string) string {
	switch field {
	case "BearerToken":
		return "bearer_token"
	case "APIKey":
		return "api_key"
	case "FixturePath":
		return "fixture_path"
	default:
		return strings.ToLower(field)
	}
}

// mergeConfigs overlays updates onto current by kind, keeping the current
// order and appending kinds that are new.
func mergeConfigs(current, updates []ProviderConfig) []ProviderConfig {
	out := append([]ProviderConfig(nil), current...)
	for _, u := range updates {
		replaced := false
		for i := range out {
			if out[i].Kind == u.Kind {
				out[i] = u
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, u)
		}
	}
	return out
}
