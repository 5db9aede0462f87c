package secrets

import (
	"context"
	"errors"
	"strings"

	"calllog-dashboard/internal/config"
)

// Overlay replaces secrets in cfg with the SSM parameters named in cfg.SSM.
// Unnamed parameters leave the env value untouched. Every failure is reported.
func Overlay(ctx context.Context, g Getter, cfg *config.Config) error {
	targets := []struct {
		param string
		dst   *string
	}{
		{cfg.SSM.WebhookSecretParam, &cfg.Webhook.Secret},
		{cfg.SSM.DashboardPasswordParam, &cfg.Auth.DashboardPassword},
		{cfg.SSM.JWTSecretParam, &cfg.Auth.JWTSecret},
	}

	var errs []error
	for _, t := range targets {
		if strings.TrimSpace(t.param) == "" {
			continue
		}
		v, err := g.GetParameter(ctx, t.param)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*t.dst = strings.TrimSpace(v)
	}
	return errors.Join(errs...)
}
