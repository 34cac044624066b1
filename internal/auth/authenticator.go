package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Dispatch request headers checked by the authenticator.
const (
	HeaderClientIdentity = "X-Client-Identity"
	HeaderQueueName      = "X-Queue-Name"
	HeaderServiceAccount = "X-Service-Account"
)

// Config holds the perimeter-check expectations.
type Config struct {
	// DispatcherSignature must appear in the client-identity header.
	DispatcherSignature string

	// AllowedQueues is the set of logical queue names accepted from the
	// dispatcher.
	AllowedQueues []string

	// ServiceAccountSuffix is the domain suffix a declared service-account
	// identity must carry.
	ServiceAccountSuffix string

	// Strict rejects requests that omit the service-account header. Local
	// development runs permissive.
	Strict bool
}

// Authenticator performs the coarse perimeter check on inbound dispatch
// requests. This is header validation of a claimed identity, not a
// cryptographic signature verification; it assumes the network perimeter
// strips these headers from untrusted traffic.
type Authenticator struct {
	signature     string
	allowedQueues map[string]struct{}
	saSuffix      string
	strict        bool
	logger        *slog.Logger
}

// New builds an authenticator from config.
func New(cfg *Config, logger *slog.Logger) *Authenticator {
	allowed := make(map[string]struct{}, len(cfg.AllowedQueues))
	for _, q := range cfg.AllowedQueues {
		q = strings.TrimSpace(q)
		if q != "" {
			allowed[q] = struct{}{}
		}
	}
	return &Authenticator{
		signature:     cfg.DispatcherSignature,
		allowedQueues: allowed,
		saSuffix:      cfg.ServiceAccountSuffix,
		strict:        cfg.Strict,
		logger:        logger,
	}
}

// Validate checks all perimeter rules against the request headers. Every
// failing rule is logged with diagnostic context before the aggregate result
// is returned, so operators see the full picture from one rejected request.
func (a *Authenticator) Validate(headers http.Header) bool {
	ok := true

	identity := headers.Get(HeaderClientIdentity)
	if a.signature == "" || !strings.Contains(identity, a.signature) {
		a.logger.Warn("Dispatch auth: client identity mismatch",
			slog.String("header", HeaderClientIdentity),
			slog.String("got", identity),
		)
		ok = false
	}

	queue := headers.Get(HeaderQueueName)
	if queue == "" {
		a.logger.Warn("Dispatch auth: queue name header missing",
			slog.String("header", HeaderQueueName),
		)
		ok = false
	} else if _, allowed := a.allowedQueues[queue]; !allowed {
		a.logger.Warn("Dispatch auth: queue not in allow-list",
			slog.String("header", HeaderQueueName),
			slog.String("queue", queue),
		)
		ok = false
	}

	serviceAccount := headers.Get(HeaderServiceAccount)
	switch {
	case serviceAccount == "" && a.strict:
		a.logger.Warn("Dispatch auth: service account header missing in strict mode",
			slog.String("header", HeaderServiceAccount),
		)
		ok = false
	case serviceAccount != "" && !strings.HasSuffix(serviceAccount, a.saSuffix):
		a.logger.Warn("Dispatch auth: service account suffix mismatch",
			slog.String("header", HeaderServiceAccount),
			slog.String("got", serviceAccount),
			slog.String("want_suffix", a.saSuffix),
		)
		ok = false
	}

	return ok
}
