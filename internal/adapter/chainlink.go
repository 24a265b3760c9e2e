package adapter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/treasuryd/treasuryd/internal/domain"
)

// FeedReader is the read-only contract-call surface a
// Chainlink-style direct publisher feed needs. No implementation ships
// in this repository; cmd/treasuryd does not construct a
// ChainlinkAdapter.
type FeedReader interface {
	// LatestRoundData returns the feed's most recent answer, its
	// decimals, the round id, and the epoch-seconds timestamp the
	// round was updated at.
	LatestRoundData(ctx context.Context, tokenID string) (answer *big.Int, decimals int, roundID *big.Int, updatedAt int64, err error)
}

// ChainlinkAdapter wraps a FeedReader and normalizes its answer into
// a Quote: decimals and at are taken verbatim from the feed.
type ChainlinkAdapter struct {
	Reader FeedReader
}

func NewChainlinkAdapter(reader FeedReader) *ChainlinkAdapter {
	return &ChainlinkAdapter{Reader: reader}
}

func (a *ChainlinkAdapter) Source() domain.SourceTag { return domain.SourceChainlink }

func (a *ChainlinkAdapter) Fetch(ctx context.Context, tok domain.TokenCfg) (domain.Quote, error) {
	answer, decimals, _, updatedAt, err := a.Reader.LatestRoundData(ctx, tok.TokenID)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	if answer == nil || answer.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("%w: non-positive answer", ErrNoData)
	}
	if updatedAt <= 0 {
		updatedAt = time.Now().Unix()
	}
	return domain.Quote{
		Source:   domain.SourceChainlink,
		Price:    new(big.Int).Set(answer),
		Decimals: decimals,
		At:       updatedAt,
	}, nil
}
