package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openpdv/pdvhost/internal/auth"
	"github.com/openpdv/pdvhost/internal/metrics"
	"github.com/openpdv/pdvhost/internal/model"
)

// DefaultMinAuthDuration is the minimum time spent rejecting a credential.
const DefaultMinAuthDuration = 200 * time.Millisecond

// Authorizer validates a credential for a role.
type Authorizer interface {
	Authorize(ctx context.Context, cred model.Credential, role string) (*model.Principal, error)
}

// AuthorizeConfig holds configuration for the authorization middleware.
type AuthorizeConfig struct {
	Logger  *slog.Logger
	Gate    Authorizer
	Metrics metrics.Recorder
	// Role every request must satisfy.
	Role string
	// MinDuration pads rejections so failure reasons cannot be told apart
	// by latency. Zero disables padding.
	MinDuration time.Duration
}

// Authorize returns a middleware that runs the gate before any handler
// and injects the principal into the request context. Rejected requests
// never reach the handler.
func Authorize(cfg AuthorizeConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			cred := auth.CredentialFromRequest(r)
			principal, err := cfg.Gate.Authorize(r.Context(), cred, cfg.Role)
			if errors.Is(err, auth.ErrUnavailable) {
				cfg.Logger.Error("authorization unavailable",
					slog.String("identifier", cred.Identifier),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("error", err.Error()),
				)
				w.Header().Set("Retry-After", "5")
				writeError(w, http.StatusServiceUnavailable, "unable to verify credential", "account lookup")
				return
			}
			if err != nil {
				status, kind, reason := http.StatusUnauthorized, auth.Unauthorized.String(), err.Error()
				var ae *auth.AuthError
				if errors.As(err, &ae) {
					kind, reason = ae.Kind.String(), ae.Reason
					if ae.Kind == auth.Forbidden {
						status = http.StatusForbidden
					}
				}

				cfg.Metrics.IncAuthFailure(kind)
				cfg.Logger.Warn("authorization failed",
					slog.String("kind", kind),
					slog.String("reason", reason),
					slog.String("identifier", cred.Identifier),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)

				if elapsed := time.Since(start); elapsed < cfg.MinDuration {
					time.Sleep(cfg.MinDuration - elapsed)
				}

				if status == http.StatusForbidden {
					writeError(w, status, "Access denied", "account is not allowed to sync")
				} else {
					w.Header().Set("WWW-Authenticate", `Basic realm="openpdv"`)
					writeError(w, status, "Invalid or missing credential", "")
				}
				return
			}

			cfg.Logger.Debug("authorization successful",
				slog.String("account_id", principal.AccountID),
				slog.String("role", principal.Role),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			annotateAccount(r.Context(), principal.AccountID)
			ctx := auth.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
