package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/treasuryd/treasuryd/internal/domain"
)

// HTTPDoer abstracts http.Client, the same seam the pack's other
// HTTP-backed oracle adapters (other_examples' NowPaymentsOracle /
// CoinGeckoOracle) use, so tests can substitute a fake transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PythAdapter fetches a publisher-aggregated price, with confidence,
// from a Hermes-style HTTP price-feed endpoint. meta.confidence is
// always populated.
type PythAdapter struct {
	Client   HTTPDoer
	Endpoint string
	// FeedIDs maps a tokenId to the upstream price-feed identifier.
	FeedIDs map[string]string
}

const defaultPythEndpoint = "https://hermes.pyth.network/v2/updates/price/latest"

func NewPythAdapter(client HTTPDoer, endpoint string, feedIDs map[string]string) *PythAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultPythEndpoint
	}
	return &PythAdapter{Client: client, Endpoint: ep, FeedIDs: feedIDs}
}

func (a *PythAdapter) Source() domain.SourceTag { return domain.SourcePyth }

type pythPriceResponse struct {
	Parsed []struct {
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int    `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

func (a *PythAdapter) Fetch(ctx context.Context, tok domain.TokenCfg) (domain.Quote, error) {
	feedID, ok := a.FeedIDs[tok.TokenID]
	if !ok || feedID == "" {
		return domain.Quote{}, fmt.Errorf("%w: unmapped feed for %s", ErrNoData, tok.TokenID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Endpoint, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	q := url.Values{}
	q.Add("ids[]", feedID)
	req.URL.RawQuery = q.Encode()

	resp, err := a.Client.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Quote{}, fmt.Errorf("%w: status %d: %s", ErrNoData, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload pythPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Quote{}, fmt.Errorf("%w: decode: %v", ErrNoData, err)
	}
	if len(payload.Parsed) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: empty response", ErrNoData)
	}
	p := payload.Parsed[0].Price

	price, ok := new(big.Int).SetString(strings.TrimPrefix(p.Price, "+"), 10)
	if !ok || price.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("%w: invalid price %q", ErrNoData, p.Price)
	}
	conf, ok := new(big.Int).SetString(strings.TrimPrefix(p.Conf, "+"), 10)
	if !ok || conf.Sign() < 0 {
		return domain.Quote{}, fmt.Errorf("%w: invalid confidence %q", ErrNoData, p.Conf)
	}
	if p.Expo > 0 {
		return domain.Quote{}, fmt.Errorf("%w: positive exponent unsupported", ErrNoData)
	}

	return domain.Quote{
		Source:   domain.SourcePyth,
		Price:    price,
		Decimals: -p.Expo,
		At:       p.PublishTime,
		Pyth:     &domain.PythMeta{Confidence: conf},
	}, nil
}
