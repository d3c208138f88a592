package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/seatly/internal/audit"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	"github.com/smallbiznis/seatly/internal/authorization"
	"github.com/smallbiznis/seatly/internal/config"
	"github.com/smallbiznis/seatly/internal/observability"
	obsmiddleware "github.com/smallbiznis/seatly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/seatly/internal/observability/metrics"
	obstracing "github.com/smallbiznis/seatly/internal/observability/tracing"
	"github.com/smallbiznis/seatly/internal/order"
	orderdomain "github.com/smallbiznis/seatly/internal/order/domain"
	"github.com/smallbiznis/seatly/internal/payment"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/smallbiznis/seatly/internal/plan"
	plandomain "github.com/smallbiznis/seatly/internal/plan/domain"
	"github.com/smallbiznis/seatly/internal/providers"
	"github.com/smallbiznis/seatly/internal/ratelimit"
	"github.com/smallbiznis/seatly/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/seatly/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	providers.Module,
	plan.Module,
	order.Module,
	subscription.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type ServerParams struct {
	fx.In

	Engine          *gin.Engine
	Config          config.Config
	DB              *gorm.DB
	Policy          *config.SeatPolicyHolder
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	PlanSvc         plandomain.Service
	OrderSvc        orderdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PaymentSvc      paymentdomain.Service
	Limiter         ratelimit.Limiter
	Metrics         *obsmetrics.Metrics `optional:"true"`
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	policy          *config.SeatPolicyHolder
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	planSvc         plandomain.Service
	orderSvc        orderdomain.Service
	subscriptionSvc subscriptiondomain.Service
	paymentSvc      paymentdomain.Service
	limiter         ratelimit.Limiter
	obsMetrics      *obsmetrics.Metrics
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Engine,
		cfg:             p.Config,
		db:              p.DB,
		policy:          p.Policy,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		planSvc:         p.PlanSvc,
		orderSvc:        p.OrderSvc,
		subscriptionSvc: p.SubscriptionSvc,
		paymentSvc:      p.PaymentSvc,
		limiter:         p.Limiter,
		obsMetrics:      p.Metrics,
	}

	s.registerWebhookRoutes()
	s.registerAPIRoutes()
	s.registerAdminRoutes()
	s.engine.GET("/readyz", s.Ready)
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/api/webhooks")
	webhooks.POST("/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorMiddleware())

	api.GET("/plans", s.ListActivePlans)
	api.GET("/plans/:id", s.GetPlan)

	authed := api.Group("", RequireActor())

	authed.POST("/checkout",
		s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutCreate),
		s.rateLimit("checkout", func(p config.SeatPolicy) int { return p.CheckoutPerMinute }),
		s.CreateCheckout,
	)

	authed.GET("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionOrderView), s.ListOrders)

	subscriptions := authed.Group("/subscriptions")
	{
		subscriptions.GET("", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
		subscriptions.GET("/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscription)
		subscriptions.PATCH("/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionUpdate), s.UpdateSubscription)

		subscriptions.GET("/:id/entitlements", s.authorize(authorization.ObjectEntitlement, authorization.ActionEntitlementView), s.ListEntitlements)
		subscriptions.POST("/:id/entitlements",
			s.authorize(authorization.ObjectEntitlement, authorization.ActionEntitlementAssign),
			s.rateLimit("assign", func(p config.SeatPolicy) int { return p.AssignPerMinute }),
			s.AssignSeat,
		)
		subscriptions.DELETE("/:id/entitlements/:entitlementId", s.authorize(authorization.ObjectEntitlement, authorization.ActionEntitlementUnassign), s.UnassignSeat)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(ActorMiddleware(), RequireActor())

	admin.GET("/subscriptions", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionAdmin), s.AdminListSubscriptions)
	admin.PATCH("/subscriptions/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionAdmin), s.AdminUpdateSubscription)
	admin.DELETE("/subscriptions/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionAdmin), s.AdminCancelSubscription)

	admin.GET("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionOrderAdmin), s.AdminListOrders)
	admin.GET("/audit", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	admin.GET("/providers", s.authorize(authorization.ObjectProvider, authorization.ActionProviderManage), s.AdminListProviders)
	admin.POST("/providers", s.authorize(authorization.ObjectProvider, authorization.ActionProviderManage), s.AdminCreateProvider)

	admin.GET("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionPlanManage), s.AdminListPlans)
	admin.POST("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionPlanManage), s.AdminCreatePlan)
	admin.PATCH("/plans/:id", s.authorize(authorization.ObjectPlan, authorization.ActionPlanManage), s.AdminUpdatePlan)
}
