package payment

import (
	"github.com/smallbiznis/seatly/internal/payment/adapters"
	"github.com/smallbiznis/seatly/internal/payment/adapters/stripe"
	"github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/smallbiznis/seatly/internal/payment/repository"
	paymentservice "github.com/smallbiznis/seatly/internal/payment/service"
	"github.com/smallbiznis/seatly/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(stripe.NewProcessor, fx.As(new(domain.Processor))),
	),
	fx.Provide(stripe.NewVerifier),
	fx.Provide(func(v *stripe.Verifier) *adapters.Registry {
		return adapters.NewRegistry(v)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
