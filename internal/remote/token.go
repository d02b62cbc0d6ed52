package remote

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// logTokenIdentity inspects the configured bearer token without verifying
// its signature (the server does that) and logs who the token claims to be
// and when it expires. An already-expired token gets a warning up front
// instead of a confusing auth failure on the first request.
func logTokenIdentity(logger *zerolog.Logger, token string) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		logger.Warn().Err(err).Msg("auth token is not a parsable JWT")
		return
	}

	ev := logger.Info()
	if sub, err := parsed.Claims.GetSubject(); err == nil && sub != "" {
		ev = ev.Str("subject", sub)
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err == nil && exp != nil {
		ev = ev.Time("expires_at", exp.Time)
		if exp.Before(time.Now()) {
			logger.Warn().Time("expired_at", exp.Time).Msg("auth token already expired")
		}
	}
	ev.Msg("using auth token")
}
