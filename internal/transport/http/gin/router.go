package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/nightjarlabs/boxoffice/internal/domain"
	redisrepo "github.com/nightjarlabs/boxoffice/internal/repository/redis"
	"github.com/nightjarlabs/boxoffice/internal/service"
	"github.com/nightjarlabs/boxoffice/internal/service/catalog"
	"github.com/nightjarlabs/boxoffice/internal/service/customers"
	"github.com/nightjarlabs/boxoffice/internal/service/orders"
	"github.com/nightjarlabs/boxoffice/internal/service/payments"
	"github.com/nightjarlabs/boxoffice/internal/service/tickets"
	"github.com/nightjarlabs/boxoffice/internal/service/webhook"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/events/:key", handleGetEvent(svcs))
	r.GET("/products/:key/availability", handleGetAvailability(svcs))

	r.POST("/orders", RateLimitMiddleware(limiter), handleCreateOrder(svcs, idem))
	r.GET("/orders/:reference", handleGetOrder(svcs))
	r.POST("/orders/:reference/assign", handleAssignOrder(svcs))
	r.POST("/orders/:reference/checkout", handleCheckout(svcs))
	r.POST("/orders/:reference/reservation", handlePlaceReservation(svcs))
	r.POST("/orders/:reference/cancel", handleCancelOrder(svcs))
	r.GET("/orders/:reference/tickets", handleListOrderTickets(svcs))
	r.POST("/tickets/:key/transfer", handleTransferTicket(svcs))

	r.POST("/payments/webhook", handlePaymentWebhook(svcs))

	// Admin API. Callers are authenticated by the identity-aware proxy
	// in front of the service.
	admin := r.Group("/admin")
	{
		admin.POST("/events", handleCreateEvent(svcs))
		admin.PUT("/events/:key", handleUpdateEvent(svcs))
		admin.DELETE("/events/:key", handleDeleteEvent(svcs))
		admin.POST("/events/:key/products", handleAddProduct(svcs))
		admin.DELETE("/products/:key", handleDeleteProduct(svcs))
		admin.POST("/webhooks", handleCreateWebhook(svcs))
		admin.GET("/webhooks/tasks", handleListWebhookTasks(svcs))
		admin.POST("/tickets/scan", handleScanTicket(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get event with products
// @Param    key  path  string  true  "Event key"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{key} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := svcs.Catalog.GetEvent(c.Request.Context(), c.Param("key"))
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=60", true)
	}
}

// @Summary  Get product availability counters
// @Param    key  path  string  true  "Product key"
// @Success  200  {object}  catalog.Availability
// @Router   /products/{key}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := svcs.Catalog.GetAvailability(c.Request.Context(), c.Param("key"))
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, a, "public, max-age=15", true)
	}
}

// @Summary  Create order (idempotent)
// @Param    req body  CreateOrderRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} OrderResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /orders [post]
func handleCreateOrder(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemOrder(idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		lines := make([]orders.Line, 0, len(req.Lines))
		for _, l := range req.Lines {
			lines = append(lines, orders.Line{ProductKey: l.ProductKey, Amount: l.Amount})
		}

		createdBy := req.CreatedBy
		if createdBy == "" {
			createdBy = "webshop"
		}

		o, err := svcs.Orders.Create(c.Request.Context(), lines, createdBy)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := toOrderResponse(o)

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Get order
// @Param    reference  path  string  true  "Order reference"
// @Success  200 {object} OrderResponse
// @Failure  404 {object} ErrorResponse
// @Router   /orders/{reference} [get]
func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svcs.Orders.GetByReference(c.Request.Context(), c.Param("reference"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// @Summary  Assign a customer to an order
// @Param    reference  path  string  true  "Order reference"
// @Param    req body  AssignOrderRequest true "payload"
// @Success  200 {object} OrderResponse
// @Failure  409 {object} ErrorResponse
// @Router   /orders/{reference}/assign [post]
func handleAssignOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssignOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		customer, err := svcs.Customers.GetOrCreateBySub(
			c.Request.Context(), req.Sub, req.Name, req.Email,
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		o, err := svcs.Orders.Assign(c.Request.Context(), c.Param("reference"), customer)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// @Summary  Start payment for an order
// @Param    reference  path  string  true  "Order reference"
// @Param    req body  CheckoutRequest true "payload"
// @Success  200 {object} CheckoutResponse
// @Failure  409 {object} ErrorResponse "sold out / invalid transition"
// @Failure  502 {object} ErrorResponse "payment provider failure"
// @Router   /orders/{reference}/checkout [post]
func handleCheckout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		o, url, err := svcs.Orders.Checkout(
			c.Request.Context(),
			c.Param("reference"),
			domain.PaymentMethod(req.Method),
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, CheckoutResponse{Order: toOrderResponse(o), CheckoutURL: url})
	}
}

// @Summary  Place a reservation for an order
// @Param    reference  path  string  true  "Order reference"
// @Success  200 {object} OrderResponse
// @Failure  409 {object} ErrorResponse
// @Router   /orders/{reference}/reservation [post]
func handlePlaceReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svcs.Orders.PlaceReservation(c.Request.Context(), c.Param("reference"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// @Summary  Cancel an order
// @Param    reference  path  string  true  "Order reference"
// @Success  200 {object} OrderResponse
// @Failure  409 {object} ErrorResponse
// @Router   /orders/{reference}/cancel [post]
func handleCancelOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svcs.Orders.Cancel(c.Request.Context(), c.Param("reference"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// @Summary  List order tickets
// @Param    reference  path  string  true  "Order reference"
// @Success  200 {array} TicketResponse
// @Router   /orders/{reference}/tickets [get]
func handleListOrderTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svcs.Orders.GetByReference(c.Request.Context(), c.Param("reference"))
		if err != nil {
			respondErr(c, err)
			return
		}

		ts, err := svcs.Tickets.ListByOrder(c.Request.Context(), o)
		if err != nil {
			respondErr(c, err)
			return
		}

		productKeys := make(map[int64]string, len(o.Products))
		for _, line := range o.Products {
			productKeys[line.ProductID] = line.ProductKey
		}

		c.JSON(http.StatusOK, toTicketResponses(ts, productKeys))
	}
}

// @Summary  Transfer a ticket to another customer
// @Param    key  path  string  true  "Ticket key"
// @Param    req body  TransferTicketRequest true "payload"
// @Success  200 {object} TicketResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "not transferable"
// @Router   /tickets/{key}/transfer [post]
func handleTransferTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransferTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		from, err := svcs.Customers.GetBySub(c.Request.Context(), req.FromSub)
		if err != nil {
			respondErr(c, err)
			return
		}

		to, err := svcs.Customers.GetOrCreateBySub(
			c.Request.Context(), req.ToSub, req.ToName, req.ToEmail,
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		t, err := svcs.Tickets.Transfer(c.Request.Context(), c.Param("key"), from, to)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, TicketResponse{
			Key:        t.Key,
			UniqueCode: t.UniqueCode,
			Status:     string(t.Status),
			Valid:      t.Valid,
		})
	}
}

// @Summary  Payment provider webhook
// @Param    req body  PaymentWebhookRequest true "payload"
// @Success  200 {object} OrderResponse
// @Router   /payments/webhook [post]
func handlePaymentWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		o, err := svcs.Orders.HandlePaymentUpdate(c.Request.Context(), req.Reference)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// @Summary  Create event with products
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} domain.Event
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		ends, err := parseRFC3339(req.EndsAt)
		if err != nil {
			badRequest(c, "invalid ends_at (RFC3339)")
			return
		}

		e := &domain.Event{
			Title:       req.Title,
			Description: req.Description,
			Location:    req.Location,
			OrganizedBy: req.OrganizedBy,
			Starts:      starts,
			Ends:        ends,
		}
		for _, p := range req.Products {
			e.Products = append(e.Products, domain.Product{
				Title:              p.Title,
				Description:        p.Description,
				CostCents:          p.CostCents,
				MaxSold:            p.MaxSold,
				MaxSoldPerCustomer: p.MaxSoldPerCustomer,
			})
		}

		if err := svcs.Catalog.CreateEvent(c.Request.Context(), e); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, e)
	}
}

// @Summary  Update event
// @Param    key  path  string  true  "Event key"
// @Param    req body  CreateEventRequest true "payload"
// @Success  200 {object} domain.Event
// @Router   /admin/events/{key} [put]
func handleUpdateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		ends, err := parseRFC3339(req.EndsAt)
		if err != nil {
			badRequest(c, "invalid ends_at (RFC3339)")
			return
		}

		e := &domain.Event{
			Key:         c.Param("key"),
			Title:       req.Title,
			Description: req.Description,
			Location:    req.Location,
			OrganizedBy: req.OrganizedBy,
			Starts:      starts,
			Ends:        ends,
		}

		if err := svcs.Catalog.UpdateEvent(c.Request.Context(), e); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, e)
	}
}

// @Summary  Delete event
// @Param    key  path  string  true  "Event key"
// @Success  204
// @Router   /admin/events/{key} [delete]
func handleDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Catalog.DeleteEvent(c.Request.Context(), c.Param("key")); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Add product to event
// @Param    key  path  string  true  "Event key"
// @Param    req body  CreateProductInput true "payload"
// @Success  201 {object} domain.Product
// @Router   /admin/events/{key}/products [post]
func handleAddProduct(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateProductInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		p := &domain.Product{
			Title:              req.Title,
			Description:        req.Description,
			CostCents:          req.CostCents,
			MaxSold:            req.MaxSold,
			MaxSoldPerCustomer: req.MaxSoldPerCustomer,
		}

		if err := svcs.Catalog.AddProduct(c.Request.Context(), c.Param("key"), p); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, p)
	}
}

// @Summary  Delete product
// @Param    key  path  string  true  "Product key"
// @Success  204
// @Router   /admin/products/{key} [delete]
func handleDeleteProduct(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Catalog.DeleteProduct(c.Request.Context(), c.Param("key")); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Register webhook
// @Param    req body  CreateWebhookRequest true "payload"
// @Success  201 {object} domain.Webhook
// @Router   /admin/webhooks [post]
func handleCreateWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateWebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		w := &domain.Webhook{
			PayloadURL: req.PayloadURL,
			Secret:     req.Secret,
			Active:     true,
		}
		for _, t := range req.Triggers {
			w.Triggers = append(w.Triggers, domain.WebhookTrigger(t))
		}

		if err := svcs.Webhooks.Register(c.Request.Context(), w); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, w)
	}
}

// @Summary  List recent webhook delivery tasks
// @Param    limit  query  int  false  "page size"
// @Success  200 {array} domain.WebhookTask
// @Router   /admin/webhooks/tasks [get]
func handleListWebhookTasks(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 50)
		tasks, err := svcs.Webhooks.RecentTasks(c.Request.Context(), limit)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, tasks)
	}
}

// @Summary  Scan a ticket
// @Param    req body  ScanTicketRequest true "payload"
// @Success  200 {object} TicketResponse
// @Failure  409 {object} ErrorResponse "already scanned"
// @Router   /admin/tickets/scan [post]
func handleScanTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScanTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		p, err := svcs.Catalog.GetProduct(c.Request.Context(), req.ProductKey)
		if err != nil {
			respondErr(c, err)
			return
		}

		t, err := svcs.Tickets.Scan(c.Request.Context(), p.ID, req.Code)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, TicketResponse{
			Key:        t.Key,
			ProductKey: p.Key,
			UniqueCode: t.UniqueCode,
			Status:     string(t.Status),
			Valid:      t.Valid,
		})
	}
}

// --- Helpers ---

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var invalid *orders.InvalidTransitionError
	var limit *orders.ExceedsCustomerLimitError

	switch {
	// orders service
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
	case errors.Is(err, orders.ErrProductNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "product not found"})
	case errors.Is(err, orders.ErrProductSoldOut):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "product sold out"})
	case errors.Is(err, orders.ErrOrderConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "order modified concurrently"})
	case errors.Is(err, orders.ErrCustomerRequired):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "order has no customer"})
	case errors.Is(err, orders.ErrOrderEmpty), errors.Is(err, orders.ErrOrderInvalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, ErrorResponse{Error: invalid.Error()})
	case errors.As(err, &limit):
		c.JSON(http.StatusConflict, ErrorResponse{Error: limit.Error()})
	// catalog service
	case errors.Is(err, catalog.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "product not found"})
	// customers service
	case errors.Is(err, customers.ErrCustomerNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "customer not found"})
	// tickets service
	case errors.Is(err, tickets.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
	case errors.Is(err, tickets.ErrTicketAlreadyScanned):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket already scanned"})
	case errors.Is(err, tickets.ErrTicketNotTransferable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket not transferable"})
	case errors.Is(err, tickets.ErrTicketInvalid):
		c.JSON(http.StatusGone, ErrorResponse{Error: "ticket no longer valid"})
	// webhook service
	case errors.Is(err, webhook.ErrFactoryNotFound):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown webhook trigger"})
	// payments adapter
	case errors.Is(err, payments.ErrPaymentsConnection), errors.Is(err, payments.ErrPaymentsInvalid):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment provider failure"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
