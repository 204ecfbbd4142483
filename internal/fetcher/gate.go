package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const gateContractsPath = "/futures/usdt/contracts"

// GateOptions parameterise the Gate.io futures fetcher.
type GateOptions struct {
	BaseURL        string
	ContractSuffix string
	Timeout        time.Duration
	UserAgent      string
	// OnFailure observes fetch failures, e.g. for metrics.
	OnFailure func(error)
}

// Gate reads funding rates from the public Gate.io USDT futures contract list.
type Gate struct {
	opts    GateOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGate constructs a Gate.io fetcher.
func NewGate(opts GateOptions, logger zerolog.Logger) *Gate {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.gateio.ws/api/v4"
	}
	if opts.ContractSuffix == "" {
		opts.ContractSuffix = "_USDT"
	}

	return &Gate{
		opts:    opts,
		logger:  logger.With().Str("component", "gate_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchRates returns contract -> funding rate; failures collapse to an empty map.
func (g *Gate) FetchRates(ctx context.Context) map[string]float64 {
	rates, err := g.fetch(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("funding rate fetch failed")
		if g.opts.OnFailure != nil {
			g.opts.OnFailure(err)
		}
		return map[string]float64{}
	}
	g.logger.Debug().Int("contracts", len(rates)).Msg("funding rates fetched")
	return rates
}

func (g *Gate) fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+gateContractsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(g.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fundingwatch/1.0")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var contracts []contract
	if err := json.Unmarshal(payload, &contracts); err != nil {
		return nil, fmt.Errorf("decode contracts: %w", err)
	}

	rates := make(map[string]float64, len(contracts))
	for _, c := range contracts {
		if !strings.HasSuffix(c.Name, g.opts.ContractSuffix) {
			continue
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(c.FundingRate))
		if err != nil {
			g.logger.Debug().Str("contract", c.Name).Str("funding_rate", c.FundingRate).Msg("skip unparsable funding rate")
			continue
		}
		rates[c.Name] = rate.InexactFloat64()
	}
	return rates, nil
}

type contract struct {
	Name        string `json:"name"`
	FundingRate string `json:"funding_rate"`
}

type errorResponse struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("gate api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Label != "" {
			return fmt.Errorf("gate api error (%d): %s", status, apiErr.Label)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("gate api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("gate api error (%d)", status)
}

var _ RateSource = (*Gate)(nil)
