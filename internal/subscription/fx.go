package subscription

import (
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/smallbiznis/seatly/internal/subscription/repository"
	"github.com/smallbiznis/seatly/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(
			service.NewService,
			fx.As(new(domain.Service)),
			fx.As(new(domain.Reconciler)),
		),
	),
)
