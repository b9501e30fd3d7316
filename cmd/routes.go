package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	authMiddleware := standardMiddleware.Append(app.requireUser)

	mux := pat.New()

	// Billing
	mux.Get("/billing/products", authMiddleware.ThenFunc(app.billingHandler.GetProducts))
	mux.Post("/billing/purchase", authMiddleware.ThenFunc(app.billingHandler.StartPurchase))
	mux.Get("/billing/entitlements", authMiddleware.ThenFunc(app.billingHandler.GetEntitlements))
	mux.Get("/billing/history", authMiddleware.ThenFunc(app.billingHandler.GetHistory))

	// Store bridge (device websocket)
	mux.Get("/billing/bridge", alice.New(app.recoverPanic, app.logRequest, app.requireUser).ThenFunc(app.bridge.HandleWS))

	return mux
}
