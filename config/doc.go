// Package config loads the server configuration from the environment.
//
// Recognized variables:
//
//	RKV_ENV                   dev or prod (default dev)
//	RKV_RESP_ADDR             RESP listen address, empty disables (default :6380)
//	RKV_RESP_PASSWORD         password required by AUTH
//	RKV_HTTP_ADDR             HTTP listen address, empty disables (default :8080)
//	RKV_RATE_LIMIT_RPM        HTTP requests per minute, 0 disables
//	RKV_CORS_ALLOWED_ORIGINS  comma separated list of allowed origins
//	RKV_HTTP_MAX_BODY         largest HTTP body or RESP bulk string (default 1MiB)
//	RKV_EXPIRY_WORKERS        expiry worker count, 1-16 (default 2)
//	RKV_EXPIRY_POLICY         versioned or blind (default versioned)
//	RKV_SHUTDOWN_TIMEOUT      graceful shutdown bound (default 10s)
package config
