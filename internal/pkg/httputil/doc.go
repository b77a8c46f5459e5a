// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Trigger endpoints answer with the invoker envelope {statusCode, body};
// handlers use these helpers instead of writing raw http.ResponseWriter calls.
package httputil
