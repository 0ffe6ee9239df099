// Package handlers exposes the billing engine over HTTP with gin.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"saascore/access"
	"saascore/auth"
	"saascore/billing"
	"saascore/ledger"
	"saascore/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Engine   *billing.Engine
	Store    *ledger.Store
	Guard    *access.Guard
	Tokens   *auth.TokenService
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Spans mirrors request and handler spans into a second tracer. Optional.
	Spans SpanStarter
}

type API struct {
	engine   *billing.Engine
	store    *ledger.Store
	guard    *access.Guard
	tokens   *auth.TokenService
	logger   *zap.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	mirror   SpanStarter
}

func NewAPI(d Deps) *API {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		engine:   d.Engine,
		store:    d.Store,
		guard:    d.Guard,
		tokens:   d.Tokens,
		logger:   logger,
		metrics:  d.Metrics,
		gatherer: d.Gatherer,
		mirror:   d.Spans,
	}
}

// Router builds the gin engine with middleware and every route.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Tracing())
	if a.mirror != nil {
		r.Use(RootSpan(a.mirror))
	}
	r.Use(Metrics(a.metrics), RequestLogger(a.logger))
	a.RegisterRoutes(r)
	return r
}

func (a *API) RegisterRoutes(r *gin.Engine) {
	r.POST("/users", a.CreateUser)
	r.POST("/login", a.Login)

	r.GET("/ping", func(c *gin.Context) {
		if err := a.store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if a.gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(a.gatherer)))
	}

	authRequired := r.Group("/")
	authRequired.Use(a.AuthMiddleware())
	{
		authRequired.GET("/me", a.Me)

		authRequired.POST("/orgs", a.CreateOrganization)
		authRequired.GET("/orgs", a.ListOrganizations)
		authRequired.GET("/orgs/by-slug/:slug", a.GetOrganizationBySlug)
		authRequired.PATCH("/orgs/:orgId", a.UpdateOrganization)
		authRequired.GET("/orgs/:orgId/subscription", a.GetSubscription)
		authRequired.GET("/orgs/:orgId/invoices", a.GetInvoices)

		authRequired.GET("/invoices/:id", a.GetInvoice)
		authRequired.POST("/invoices/:id/transactions", a.CreateTransaction)

		authRequired.GET("/admin/transactions/pending", a.GetPendingTransactions)
		authRequired.POST("/admin/transactions/:id/approve", a.ApproveTransaction)
		authRequired.POST("/admin/transactions/:id/reject", a.RejectTransaction)
		authRequired.POST("/admin/billing/run", a.RunBillingCycle)
	}
}

var kindStatus = map[billing.Kind]int{
	billing.KindForbidden:        http.StatusForbidden,
	billing.KindNotFound:         http.StatusNotFound,
	billing.KindInvalidInput:     http.StatusBadRequest,
	billing.KindConflict:         http.StatusConflict,
	billing.KindStoreUnavailable: http.StatusServiceUnavailable,
}

// respondError writes err as {"error", "kind", "retryable"}. Only billing errors
// carry a message meant for the caller; anything else is a 500.
func respondError(c *gin.Context, err error) {
	span := trace.SpanFromContext(c.Request.Context())
	span.RecordError(err)
	recordMirrorError(c, err)
	_ = c.Error(err)

	var be *billing.Error
	if !errors.As(err, &be) {
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "kind": "internal", "retryable": false})
		return
	}
	status, ok := kindStatus[be.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": be.Message, "kind": be.Kind, "retryable": billing.IsRetryable(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": billing.KindInvalidInput, "retryable": false})
}

func unavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error": "the billing store is unavailable, please retry", "kind": billing.KindStoreUnavailable, "retryable": true,
	})
}

// idParam parses a positive numeric path parameter, answering 400 when it is not one.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
