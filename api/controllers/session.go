package controllers

import (
	"net/http"

	"github.com/betadomot/storefront/api/middleware"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
)

func sessionFrom(r *http.Request) (string, error) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "session context missing")
	}
	return sessionID, nil
}
