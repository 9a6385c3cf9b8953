package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/affiliora/internal/affiliation"
	affiliationdomain "github.com/smallbiznis/affiliora/internal/affiliation/domain"
	"github.com/smallbiznis/affiliora/internal/audit"
	auditdomain "github.com/smallbiznis/affiliora/internal/audit/domain"
	"github.com/smallbiznis/affiliora/internal/auth"
	authdomain "github.com/smallbiznis/affiliora/internal/auth/domain"
	"github.com/smallbiznis/affiliora/internal/authorization"
	"github.com/smallbiznis/affiliora/internal/commission"
	"github.com/smallbiznis/affiliora/internal/config"
	"github.com/smallbiznis/affiliora/internal/ledger"
	"github.com/smallbiznis/affiliora/internal/notification"
	"github.com/smallbiznis/affiliora/internal/observability"
	obsmiddleware "github.com/smallbiznis/affiliora/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/affiliora/internal/observability/metrics"
	obstracing "github.com/smallbiznis/affiliora/internal/observability/tracing"
	"github.com/smallbiznis/affiliora/internal/order"
	orderdomain "github.com/smallbiznis/affiliora/internal/order/domain"
	"github.com/smallbiznis/affiliora/internal/payment"
	paymentdomain "github.com/smallbiznis/affiliora/internal/payment/domain"
	"github.com/smallbiznis/affiliora/internal/product"
	"github.com/smallbiznis/affiliora/internal/providers"
	"github.com/smallbiznis/affiliora/internal/ratelimit"
	"github.com/smallbiznis/affiliora/internal/sponsorship"
	"github.com/smallbiznis/affiliora/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/affiliora/internal/subscription/domain"
	"github.com/smallbiznis/affiliora/internal/user"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	auth.Module,
	user.Module,
	product.Module,
	sponsorship.Module,
	commission.Module,
	affiliation.Module,
	ledger.Module,
	order.Module,
	payment.Module,
	subscription.Module,
	providers.Module,
	notification.Module,
	ratelimit.Module,
	audit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	RegisterValidators()

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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
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
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	authsvc         authdomain.Service
	authzSvc        authorization.Service
	affiliationSvc  affiliationdomain.Service
	orderSvc        orderdomain.Service
	subscriptionSvc subscriptiondomain.Service
	reconciler      paymentdomain.Reconciler
	auditSvc        auditdomain.Service
	contactLimiter  contactLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	AuthService     authdomain.Service
	Authz           authorization.Service
	AffiliationSvc  affiliationdomain.Service
	OrderSvc        orderdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Reconciler      paymentdomain.Reconciler
	AuditSvc        auditdomain.Service       `optional:"true"`
	ContactLimiter  *ratelimit.ContactLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authsvc:         p.AuthService,
		authzSvc:        p.Authz,
		affiliationSvc:  p.AffiliationSvc,
		orderSvc:        p.OrderSvc,
		subscriptionSvc: p.SubscriptionSvc,
		reconciler:      p.Reconciler,
		auditSvc:        p.AuditSvc,
		obsMetrics:      p.ObsMetrics,
	}
	if p.ContactLimiter != nil {
		svc.contactLimiter = p.ContactLimiter
	}

	svc.registerPublicRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	s.engine.POST("/webhooks/payment", s.HandlePaymentWebhook)

	// Anonymous shoppers count too. Signed-in callers must hold the contact
	// grant so influencers cannot inflate their own counters.
	s.engine.POST("/affiliations/contact",
		s.ContactRateLimit(),
		s.AuthOptional(),
		s.Authorize(authorization.ObjectContact, authorization.ActionContactRecord),
		s.RecordContact,
	)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/", s.AuthRequired())

	orders := api.Group("/orders")
	{
		orders.POST("", s.Authorize(authorization.ObjectOrder, authorization.ActionOrderCreate), s.CreateOrder)
		orders.GET("", s.Authorize(authorization.ObjectOrder, authorization.ActionOrderRead), s.ListOrders)
		orders.GET("/:id", s.Authorize(authorization.ObjectOrder, authorization.ActionOrderRead), s.GetOrder)
		orders.PUT("/:id/cancel", s.Authorize(authorization.ObjectOrder, authorization.ActionOrderCancel), s.CancelOrder)
		orders.PUT("/:id/ship", s.Authorize(authorization.ObjectOrder, authorization.ActionOrderShip), s.ShipOrder)
		orders.PUT("/:id/deliver", s.Authorize(authorization.ObjectOrder, authorization.ActionOrderDeliver), s.DeliverOrder)
	}

	subscriptions := api.Group("/subscriptions")
	{
		subscriptions.POST("", s.Authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.CreateSubscriptionCheckout)
		subscriptions.GET("/current", s.Authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionRead), s.GetCurrentSubscription)
		subscriptions.PUT("/:id/cancel", s.Authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)
		subscriptions.PUT("/:id/upgrade", s.Authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionUpgrade), s.UpgradeSubscription)
	}

	affiliations := api.Group("/affiliations")
	{
		affiliations.POST("", s.Authorize(authorization.ObjectAffiliation, authorization.ActionAffiliationCreate), s.CreateAffiliation)
		affiliations.GET("", s.Authorize(authorization.ObjectAffiliation, authorization.ActionAffiliationList), s.ListAffiliations)
		affiliations.DELETE("/:id", s.Authorize(authorization.ObjectAffiliation, authorization.ActionAffiliationDelete), s.DeleteAffiliation)
	}

	api.GET("/activity", s.Authorize(authorization.ObjectActivity, authorization.ActionActivityList), s.ListActivity)
}
