package email

import (
	"fmt"

	"github.com/smallbiznis/seatly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) (Provider, error) {
	switch cfg.Email.Provider {
	case "", "noop":
		return &NoOpProvider{}, nil
	case "smtp":
		if cfg.Email.SMTPHost == "" {
			return nil, fmt.Errorf("%w: SMTP_HOST is required", ErrInvalidConfig)
		}
		return NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		}), nil
	case "postmark":
		return NewPostmark(PostmarkConfig{
			ServerToken:  cfg.Email.PostmarkServerToken,
			AccountToken: cfg.Email.PostmarkAccountToken,
			From:         cfg.Email.From,
		})
	default:
		log.Warn("unknown email provider, falling back to noop", zap.String("provider", cfg.Email.Provider))
		return &NoOpProvider{}, nil
	}
}
