package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/auth"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/categories"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	"github.com/angelmondragon/marketplace-backend/internal/notifications"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/reviews"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/auth/session"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// redisStore is what the router needs from redis: rate limiting and idempotency.
type redisStore interface {
	pkgredis.RateLimiter
	pkgredis.IdempotencyStore
}

type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       redisStore
	RedisPinger controllers.Pinger
	Sessions    session.Checker
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	// UploadsDir is served under the storage public base URL when images are stored locally.
	UploadsDir string

	Auth          auth.Service
	Users         users.Service
	Products      product.Service
	Categories    categories.Service
	Cart          cart.Service
	Orders        orders.Service
	Reviews       reviews.Service
	Notifications notifications.Service
	Coupons       coupons.Service
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
		middleware.Logging(logg, p.HTTPMetrics),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	requireAuth := middleware.Auth(cfg.JWT, p.Sessions, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, p.Sessions, logg)
	maxUploadMB := cfg.Storage.MaxUploadMB
	idempotency := middleware.Idempotency(p.Redis, int64(maxUploadMB)<<20, logg)
	admin := middleware.RequireAdmin(logg)
	seller := middleware.RequireSeller(logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.RedisPinger,
		}))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	if p.UploadsDir != "" {
		prefix := "/" + strings.Trim(cfg.Storage.PublicBaseURL, "/")
		if strings.HasPrefix(cfg.Storage.PublicBaseURL, "/") && prefix != "/" {
			fs := http.StripPrefix(prefix, http.FileServer(http.Dir(p.UploadsDir)))
			r.Handle(prefix+"/*", fs)
		}
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, p.Redis, logg)).Post("/signup", controllers.AuthRegister(p.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.Auth, logg))
		r.With(requireAuth).Post("/logout", controllers.AuthLogout(p.Auth, logg))
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", controllers.UserMe(p.Users, logg))
		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Get("/", controllers.AdminListUsers(p.Users, logg))
			r.Post("/", controllers.AdminCreateUser(p.Users, logg))
			r.Get("/{id}", controllers.AdminGetUser(p.Users, logg))
			r.Delete("/{id}", controllers.AdminDeleteUser(p.Users, logg))
			r.Patch("/{id}/promote", controllers.AdminSetSeller(p.Users, true, logg))
			r.Patch("/{id}/demote", controllers.AdminSetSeller(p.Users, false, logg))
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", controllers.ListProducts(p.Products, logg))
		r.With(optionalAuth).Get("/{id}", controllers.GetProduct(p.Products, logg))
		r.Group(func(r chi.Router) {
			r.Use(requireAuth, seller, idempotency)
			r.Post("/", controllers.CreateProduct(p.Products, maxUploadMB, logg))
			r.Put("/{id}", controllers.UpdateProduct(p.Products, maxUploadMB, logg))
			r.Delete("/{id}", controllers.DeleteProduct(p.Products, logg))
			r.Patch("/{id}/activate", controllers.SetProductActive(p.Products, true, logg))
			r.Patch("/{id}/deactivate", controllers.SetProductActive(p.Products, false, logg))
		})
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", controllers.ListCategories(p.Categories, logg))
		r.Get("/{id}", controllers.GetCategory(p.Categories, logg))
		r.Group(func(r chi.Router) {
			r.Use(requireAuth, admin)
			r.Post("/", controllers.CreateCategory(p.Categories, logg))
			r.Put("/{id}", controllers.UpdateCategory(p.Categories, logg))
			r.Delete("/{id}", controllers.DeleteCategory(p.Categories, logg))
		})
	})

	r.Route("/carts", func(r chi.Router) {
		r.Use(requireAuth, idempotency)
		r.Post("/", controllers.CartAddItem(p.Cart, logg))
		r.Get("/", controllers.CartGet(p.Cart, logg))
		r.Delete("/", controllers.CartClear(p.Cart, logg))
		r.Put("/{productId}", controllers.CartUpdateItem(p.Cart, logg))
		r.Delete("/{productId}", controllers.CartRemoveItem(p.Cart, logg))
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(requireAuth, idempotency)
		r.Post("/", controllers.CreateOrder(p.Orders, logg))
		r.Get("/", controllers.ListOrders(p.Orders, logg))
		r.Put("/", controllers.UpdateOrderStock(p.Orders, logg))
		r.Post("/simulate-payment", controllers.SimulatePayment(p.Orders, logg))
		r.Get("/{orderId}", controllers.GetOrder(p.Orders, logg))
		r.With(admin).Put("/{orderId}/status", controllers.UpdateOrderStatus(p.Orders, logg))
	})

	r.Route("/product", func(r chi.Router) {
		r.Route("/review/{id}", func(r chi.Router) {
			r.Use(requireAuth, admin)
			r.Put("/", controllers.AdminUpdateReview(p.Reviews, logg))
			r.Delete("/", controllers.AdminDeleteReview(p.Reviews, logg))
		})
		r.Route("/{productId}/review", func(r chi.Router) {
			r.Get("/", controllers.ListReviews(p.Reviews, logg))
			r.Get("/{id}", controllers.GetReview(p.Reviews, logg))
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", controllers.CreateReview(p.Reviews, logg))
				r.Put("/{id}", controllers.UpdateReview(p.Reviews, logg))
				r.Delete("/{id}", controllers.DeleteReview(p.Reviews, logg))
			})
		})
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", controllers.ListNotifications(p.Notifications, logg))
		r.Patch("/read/all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
		r.Patch("/{id}/read", controllers.MarkNotificationRead(p.Notifications, logg))
		r.Delete("/{id}", controllers.DeleteNotification(p.Notifications, logg))
	})

	r.Route("/coupons", func(r chi.Router) {
		r.Use(requireAuth, admin)
		r.Post("/", controllers.CreateCoupon(p.Coupons, logg))
		r.Get("/", controllers.ListCoupons(p.Coupons, logg))
		r.Get("/{id}", controllers.GetCoupon(p.Coupons, logg))
		r.Put("/{id}", controllers.UpdateCoupon(p.Coupons, logg))
		r.Delete("/{id}", controllers.DeleteCoupon(p.Coupons, logg))
	})

	return r
}
