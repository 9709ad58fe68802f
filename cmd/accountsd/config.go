package main

import (
	"os"
	"strconv"
	"strings"
)

// envConfig satisfies accounts.Config from environment variables with
// development-friendly defaults.
type envConfig struct{}

func (envConfig) GetSigningKey() string {
	return getenv("ACCOUNTS_SIGNING_KEY", "insecure-dev-signing-key")
}

func (envConfig) GetContextKey() string {
	return getenv("ACCOUNTS_COOKIE_NAME", "accounts_session")
}

func (envConfig) GetTokenExpiration() int {
	return getenvInt("ACCOUNTS_TOKEN_EXPIRATION_HOURS", 24)
}

func (envConfig) GetExtendedTokenDuration() int {
	return getenvInt("ACCOUNTS_EXTENDED_TOKEN_HOURS", 24*30)
}

func (envConfig) GetIssuer() string {
	return getenv("ACCOUNTS_TOKEN_ISSUER", "accountsd")
}

func (envConfig) GetAudience() []string {
	raw := getenv("ACCOUNTS_TOKEN_AUDIENCE", "accountsd")
	parts := strings.Split(raw, ",")
	audience := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			audience = append(audience, p)
		}
	}
	return audience
}

func (envConfig) GetRejectedRouteKey() string {
	return getenv("ACCOUNTS_REJECTED_ROUTE_KEY", "accounts_rejected_route")
}

func (envConfig) GetRejectedRouteDefault() string {
	return getenv("ACCOUNTS_REJECTED_ROUTE_DEFAULT", "/admin/accounts")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}
