// Package debughttp serves optional runtime diagnostics over HTTP:
// a liveness probe, a JSON status document and the net/http/pprof handlers.
package debughttp
