// Package middleware provides the net/http middleware wrapped around the
// accessd API router.
//
// The chain, outermost first, is Recovery, RequestID, Logging, RateLimit
// and BodyLimit; the server adds tracing and metrics from the
// observability package around it.
//
//	handler := middleware.Recovery(logger, metrics)(
//	    middleware.RequestID()(
//	        middleware.Logging(logger, extractor)(router),
//	    ),
//	)
//
// Client addresses are resolved by a ClientIPExtractor, which only
// honors X-Forwarded-For when the direct peer is a trusted proxy.
package middleware
