// Package httputil provides HTTP utilities shared by the passbill API:
// JSON responses and errors, request parsing and middleware.
//
// # Responses
//
//	httputil.WriteSuccess(w, quote)
//	httputil.WriteKindError(w, http.StatusNotFound, "not_found", err)
//
// Every error body has the shape {"error": "...", "kind": "..."}.
//
// # Requests
//
//	var req checkoutRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.ContentTypeMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
