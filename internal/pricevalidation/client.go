package pricevalidation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// ErrTransport marks a failure to reach the pricing authority or to obtain a
// usable response from it. Callers fall back to local totals.
var ErrTransport = errors.New("pricevalidation: authority unreachable")

// ErrMalformedResponse marks a response that decoded but failed structural
// validation. It wraps ErrTransport: a reply the client cannot trust is
// handled the same way as no reply at all.
var ErrMalformedResponse = fmt.Errorf("pricevalidation: malformed authority response: %w", ErrTransport)

// Client submits expected line prices to the remote pricing authority.
type Client struct {
	HTTP     *resilience.HTTPClient
	BaseURL  string
	Validate *validator.Validate
}

// Check POSTs the expected lines and returns the authority's structurally
// validated response.
func (c *Client) Check(ctx context.Context, lines []ExpectedLine) (*Response, error) {
	if c == nil || c.HTTP == nil {
		return nil, errors.New("pricevalidation: client not configured")
	}
	items := make([]requestItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, requestItem{
			ProductID:                   l.ProductID,
			Quantity:                    l.Quantity,
			ExpectedUnitPriceMinorUnits: l.ExpectedUnitPriceMinor,
		})
	}
	body, err := json.Marshal(request{Items: items})
	if err != nil {
		return nil, fmt.Errorf("encode validation request: %w", err)
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/v1/prices/validate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if v := c.validate(); v != nil {
		if err := v.Struct(&out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	return &out, nil
}

func (c *Client) validate() *validator.Validate {
	if c.Validate != nil {
		return c.Validate
	}
	return defaultValidate
}

var defaultValidate = validator.New()
