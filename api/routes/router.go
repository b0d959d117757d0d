package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/betadomot/storefront/api/controllers"
	"github.com/betadomot/storefront/api/middleware"
	"github.com/betadomot/storefront/internal/cart"
	checkoutsvc "github.com/betadomot/storefront/internal/checkout"
	"github.com/betadomot/storefront/internal/wishlist"
	"github.com/betadomot/storefront/pkg/config"
	"github.com/betadomot/storefront/pkg/logger"
	"github.com/betadomot/storefront/pkg/redis"
)

// Deps carries everything the HTTP surface calls into.
type Deps struct {
	Cart        cart.Service
	Wishlist    wishlist.Service
	Checkout    checkoutsvc.Service
	Idempotency redis.IdempotencyStore
	Ready       map[string]controllers.Pinger
	Metrics     prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(cfg.App.IsProd(), logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Get("/events", controllers.CartEvents(deps.Cart, logg))
			r.Route("/items", func(r chi.Router) {
				r.With(middleware.Idempotency(deps.Idempotency, middleware.CartIdempotencyTTL, logg)).Post("/", controllers.CartAddItem(deps.Cart, logg))
				r.Patch("/{productID}", controllers.CartUpdateItem(deps.Cart, logg))
				r.Delete("/{productID}", controllers.CartRemoveItem(deps.Cart, logg))
				r.With(middleware.Idempotency(deps.Idempotency, middleware.CartIdempotencyTTL, logg)).Post("/{productID}/wishlist", controllers.CartMoveToWishlist(deps.Cart, logg))
			})
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", controllers.WishlistList(deps.Wishlist, logg))
			r.Post("/", controllers.WishlistAdd(deps.Wishlist, logg))
			r.Delete("/", controllers.WishlistClear(deps.Wishlist, logg))
			r.Get("/{productID}", controllers.WishlistContains(deps.Wishlist, logg))
			r.Delete("/{productID}", controllers.WishlistRemove(deps.Wishlist, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", controllers.CheckoutBegin(deps.Checkout, logg))
			r.Get("/", controllers.CheckoutFetch(deps.Checkout, logg))
			r.Delete("/", controllers.CheckoutAbandon(deps.Checkout, logg))
			r.Patch("/form", controllers.CheckoutUpdateForm(deps.Checkout, logg))
			r.Post("/advance", controllers.CheckoutAdvance(deps.Checkout, logg))
			r.Post("/back", controllers.CheckoutBack(deps.Checkout, logg))
			r.With(middleware.Idempotency(deps.Idempotency, middleware.SubmitIdempotencyTTL, logg)).Post("/submit", controllers.CheckoutSubmit(deps.Checkout, logg))
		})
	})

	return r
}
