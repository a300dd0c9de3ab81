package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	dal "github.com/nplanner/smm-publisher/dal"
	log "github.com/sirupsen/logrus"
)

// Inbound callers authenticate with their own CMS bearer token, verified
// against /users/me. Verified tokens are cached briefly so the CMS is not
// hit on every request.

const tokenCacheTTL = 5 * time.Minute

type tokenCacheEntry struct {
	expiresAt time.Time
}

var verifiedTokens sync.Map

func isAuthorized(client *dal.DirectusClient, r *http.Request) bool {
	token := bearerToken(r)
	if token == "" {
		return false
	}

	if cached, ok := verifiedTokens.Load(token); ok {
		entry := cached.(tokenCacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return true
		}
		verifiedTokens.Delete(token)
	}

	valid, err := client.ValidateUserToken(token)
	if err != nil {
		log.Printf("token validation against cms failed: %s", err)
		return false
	}
	if valid {
		verifiedTokens.Store(token, tokenCacheEntry{expiresAt: time.Now().Add(tokenCacheTTL)})
	}
	return valid
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
