// Package httputil holds the JSON response helpers used by the admin API
// handlers so every endpoint shares one error envelope.
package httputil
