package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/betadomot/storefront/api/responses"
	"github.com/betadomot/storefront/api/validators"
	checkoutsvc "github.com/betadomot/storefront/internal/checkout"
	"github.com/betadomot/storefront/pkg/logger"
)

const idempotencyKeyHeader = "Idempotency-Key"

// CheckoutBegin starts a fresh checkout for the session. An empty cart is
// answered with PRECONDITION_REDIRECT pointing at the cart.
func CheckoutBegin(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(logg, http.StatusCreated, svc.Begin)
}

func CheckoutFetch(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(logg, http.StatusOK, svc.Get)
}

// CheckoutUpdateForm applies a partial form edit, e.g. {"email":"..."}.
func CheckoutUpdateForm(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		patch, err := validators.DecodeJSONObject(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.UpdateForm(r.Context(), sessionID, patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CheckoutAdvance(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(logg, http.StatusOK, svc.Advance)
}

func CheckoutBack(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(logg, http.StatusOK, svc.Back)
}

// CheckoutSubmit places the order. The Idempotency-Key header, when present,
// is forwarded to the order backend.
func CheckoutSubmit(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		checkoutAction(logg, http.StatusOK, func(ctx context.Context, sessionID string) (checkoutsvc.View, error) {
			return svc.Submit(ctx, sessionID, key)
		})(w, r)
	}
}

func CheckoutAbandon(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Abandon(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func checkoutAction(logg *logger.Logger, status int, fn func(context.Context, string) (checkoutsvc.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := sessionFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := fn(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, view)
	}
}
