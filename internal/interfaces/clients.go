// Package interfaces defines service contracts for Tickerwatch
package interfaces

import (
	"context"

	"github.com/bmcnabb/tickerwatch/internal/models"
)

// QuoteClient provides access to the upstream quote provider. The provider
// is rate-limited and has no documented SLA; zero/absent fields signal no
// data rather than an error.
type QuoteClient interface {
	// GetQuote retrieves the raw observation for one provider symbol string.
	// Transport errors and non-success statuses are retried internally with
	// bounded backoff; exhaustion surfaces a typed fetch failure.
	GetQuote(ctx context.Context, symbol string) (*models.ProviderQuote, error)
}

// IndexClient provides access to the official index-constituent source.
type IndexClient interface {
	// GetConstituents returns the member tickers of a named index. The
	// source may require a session/cookie handshake; availability is not
	// guaranteed.
	GetConstituents(ctx context.Context, indexCode string) ([]string, error)
}

// GenerativeClient provides access to the generative classifier. It is
// treated as low-confidence and last-resort only.
type GenerativeClient interface {
	// GenerateContent generates content from a prompt. Callers parse the
	// response per their own agreed schema.
	GenerateContent(ctx context.Context, prompt string) (string, error)
}
