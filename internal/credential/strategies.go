package credential

import (
	"context"
	"errors"
	"log/slog"

	"ymmfilter/compat-service/internal/model"
)

// Explicit uses a store hash and token supplied directly with the request.
type Explicit struct{}

func (Explicit) Name() string { return "explicit" }

func (Explicit) Resolve(_ context.Context, src Sources) (model.StoreCredential, bool, error) {
	if src.StoreID == "" || src.AccessToken == "" {
		return model.StoreCredential{}, false, nil
	}
	return model.StoreCredential{
		StoreID:     src.StoreID,
		AccessToken: src.AccessToken,
		APIBaseURL:  src.APIBaseURL,
	}, true, nil
}

// SessionStrategy reads the ambient session. Any failure to access the
// session counts as "no session" and is not reported.
type SessionStrategy struct{}

func (SessionStrategy) Name() string { return "session" }

func (SessionStrategy) Resolve(_ context.Context, src Sources) (model.StoreCredential, bool, error) {
	if src.Session == nil {
		return model.StoreCredential{}, false, nil
	}
	cred, err := src.Session.StoreCredential()
	if err != nil {
		return model.StoreCredential{}, false, nil
	}
	return cred, cred.Complete(), nil
}

// RegistryLookup resolves an opaque store identifier against the registry,
// matching the public hash or the internal id of an active store. A hit
// touches the store's last-accessed timestamp.
type RegistryLookup struct {
	Registry Registry
	Logger   *slog.Logger
}

func (RegistryLookup) Name() string { return "registry" }

func (s RegistryLookup) Resolve(ctx context.Context, src Sources) (model.StoreCredential, bool, error) {
	if s.Registry == nil || src.StoreIDHint == "" {
		return model.StoreCredential{}, false, nil
	}

	st, err := s.Registry.FindActive(ctx, src.StoreIDHint)
	if errors.Is(err, ErrStoreNotFound) {
		return model.StoreCredential{}, false, nil
	}
	if err != nil {
		return model.StoreCredential{}, false, err
	}

	if err := s.Registry.TouchLastAccessed(ctx, st.ID); err != nil {
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("touch last_accessed_at failed", "store", st.ID, "err", err)
	}

	return model.StoreCredential{StoreID: st.Hash, AccessToken: st.AccessToken}, true, nil
}

// HashTokenLookup fills in the token when a store hash is known, from the
// request or the session, but no token came with it. With SessionOnly set
// the hash must come from a valid session; a bare hash on the request is
// ignored.
type HashTokenLookup struct {
	Registry    Registry
	SessionOnly bool
}

func (HashTokenLookup) Name() string { return "hash-token" }

func (s HashTokenLookup) Resolve(ctx context.Context, src Sources) (model.StoreCredential, bool, error) {
	if s.Registry == nil {
		return model.StoreCredential{}, false, nil
	}

	hash := src.StoreID
	if s.SessionOnly {
		hash = ""
	}
	if hash == "" && src.Session != nil {
		if sc, err := src.Session.StoreCredential(); err == nil {
			hash = sc.StoreID
		}
	}
	if hash == "" {
		return model.StoreCredential{}, false, nil
	}

	token, err := s.Registry.TokenByHash(ctx, hash)
	if errors.Is(err, ErrStoreNotFound) {
		return model.StoreCredential{}, false, nil
	}
	if err != nil {
		return model.StoreCredential{}, false, err
	}
	return model.StoreCredential{StoreID: hash, AccessToken: token, APIBaseURL: src.APIBaseURL}, true, nil
}
