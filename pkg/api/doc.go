// Package api serves pricing quotes and subscription transitions over HTTP.
//
// Routes are registered on a gorilla/mux router under /v1. Quote routes are
// read only and resolve pricings through a QuoteService; subscription routes
// are scoped to an organization and change state through a
// SubscriptionService:
//
//	GET  /v1/pricings/{id}
//	GET  /v1/pricings/{id}/cost?quantity=N
//	GET  /v1/pricings/{id}/renewal-cost?quantity=N
//	GET  /v1/orgs/{org}/pricings
//	POST /v1/quotes/{initial-purchase,checkout,change-subscription,change-quantity,renewals}
//	POST /v1/orgs/{org}/subscriptions
//	GET  /v1/orgs/{org}/subscriptions/{id}
//	POST /v1/orgs/{org}/subscriptions/{id}/{renew,pause,unpause,cancel,change-plan,change-quantity}
//
// Amounts are encoded as decimal strings. Errors are returned as
// {"error": ..., "kind": ...} where kind is one of validation, charge_style,
// not_found, conflict or internal. Internal error messages are logged and
// never sent to the client.
package api
