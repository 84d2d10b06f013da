// Package credential decides which upstream store and token apply to a
// request. Sources are tried in a fixed order and the first complete
// credential wins.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ymmfilter/compat-service/internal/model"
)

// ErrUnresolved is returned when no source yields a usable credential.
// Callers treat it as unauthenticated and must not retry.
var ErrUnresolved = errors.New("no store credential could be resolved")

// ErrNoSession is returned by a Session when none is active.
var ErrNoSession = errors.New("no active session")

// Session exposes ambient session state. A session may know the store hash
// without holding its token.
type Session interface {
	StoreCredential() (model.StoreCredential, error)
}

// Sources is the explicit input bag of one resolution.
type Sources struct {
	StoreID     string // explicit store hash on the request
	AccessToken string // explicit token on the request
	APIBaseURL  string // explicit base URL, optional
	Session     Session
	StoreIDHint string // opaque id or hash to look up in the registry
}

// Strategy is one resolution source. ok is false when the source has
// nothing to offer; err is reserved for failures worth logging.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, src Sources) (cred model.StoreCredential, ok bool, err error)
}

// Resolver runs strategies in order.
type Resolver struct {
	strategies []Strategy
	baseURL    string // fmt template taking the store hash
	logger     *slog.Logger
}

// NewResolver returns a Resolver over the given strategies. baseURL is a
// fmt template such as "https://api.bigcommerce.com/stores/%s/v3" used when
// a strategy does not supply a base URL.
func NewResolver(baseURL string, logger *slog.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{strategies: strategies, baseURL: baseURL, logger: logger}
}

// Default returns the standard four-step order: explicit parameters,
// session, registry lookup by hint, token lookup by known hash.
func Default(reg Registry, baseURL string, logger *slog.Logger) *Resolver {
	return NewResolver(baseURL, logger,
		Explicit{},
		SessionStrategy{},
		RegistryLookup{Registry: reg, Logger: logger},
		HashTokenLookup{Registry: reg},
	)
}

// Admin returns the resolver for store-mutating requests: explicit
// parameters, then the token of the store named by a valid session. A store
// hash alone never resolves.
func Admin(reg Registry, baseURL string, logger *slog.Logger) *Resolver {
	return NewResolver(baseURL, logger,
		Explicit{},
		SessionStrategy{},
		HashTokenLookup{Registry: reg, SessionOnly: true},
	)
}

// Resolve returns the first complete credential. Strategy errors are logged
// and resolution continues; if every strategy comes up empty the result is
// ErrUnresolved with no partial credential.
func (r *Resolver) Resolve(ctx context.Context, src Sources) (model.StoreCredential, error) {
	for _, s := range r.strategies {
		cred, ok, err := s.Resolve(ctx, src)
		if err != nil {
			r.logger.Warn("credential strategy failed", "strategy", s.Name(), "err", err)
			continue
		}
		if !ok || !cred.Complete() {
			continue
		}
		if cred.APIBaseURL == "" {
			cred.APIBaseURL = fmt.Sprintf(r.baseURL, cred.StoreID)
		}
		return cred, nil
	}
	return model.StoreCredential{}, ErrUnresolved
}
