// Package identity maps the caller presented by the identity provider onto
// an internal user.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"homewatch/models"
	"homewatch/storage"
	"homewatch/utils"
)

// ErrUnauthenticated means the request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// DefaultHeader carries the external user id set by the auth proxy.
const DefaultHeader = "X-User-ID"

// Provider extracts the external user id from a request.
type Provider interface {
	ExternalID(r *http.Request) (string, error)
}

// HeaderProvider trusts a header set by an upstream authenticating proxy.
type HeaderProvider struct {
	Header string
}

func (p HeaderProvider) ExternalID(r *http.Request) (string, error) {
	header := p.Header
	if header == "" {
		header = DefaultHeader
	}
	id := strings.TrimSpace(r.Header.Get(header))
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// Resolver turns external ids into internal users, creating the user on
// first sight.
type Resolver struct {
	store             storage.UserStore
	placeholderDomain string
	retry             utils.RetryConfig
}

// NewResolver creates a Resolver. New users get a placeholder address in
// placeholderDomain until they supply a real one.
func NewResolver(store storage.UserStore, placeholderDomain string, logger *utils.Logger) *Resolver {
	if placeholderDomain == "" {
		placeholderDomain = "example.com"
	}
	return &Resolver{
		store:             store,
		placeholderDomain: placeholderDomain,
		retry: utils.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			Logger:      logger,
		},
	}
}

// Resolve returns the internal user for externalID. Two concurrent first
// requests race on the unique external id; the loser retries and finds the
// winner's row.
func (r *Resolver) Resolve(ctx context.Context, externalID string) (*models.User, error) {
	if externalID == "" {
		return nil, ErrUnauthenticated
	}

	var user *models.User
	err := r.retry.Do(ctx, "resolve user "+externalID, func(ctx context.Context) error {
		u, err := r.store.FindUserByExternalID(ctx, externalID)
		if err == nil {
			user = u
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		id := uuid.NewString()
		u = &models.User{
			ID:         id,
			ExternalID: externalID,
			Email:      fmt.Sprintf("user-%s@%s", id, r.placeholderDomain),
		}
		if err := r.store.CreateUser(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
