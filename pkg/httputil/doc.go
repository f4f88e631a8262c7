// Package httputil provides HTTP utilities shared by all handlers: the JSON
// response envelope, request parsing helpers, and common middleware.
//
// Response helpers:
//
//	httputil.WriteSuccess(w, payload)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteNotFound(w, "role not found")
//
// Request parsing:
//
//	var req GrantModuleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error envelope already written
//	}
//	module, ok := httputil.PathStringOrError(w, r, "module")
//
// Middleware:
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware(log),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
