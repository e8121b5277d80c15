package cow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kelsos/safe-swap/internal/async"
	"github.com/kelsos/safe-swap/internal/client"
	"github.com/kelsos/safe-swap/internal/logger"
	"github.com/kelsos/safe-swap/internal/models"
)

const apiPrefix = "/api/v1"

// Client talks to the CoW Protocol order book API
type Client struct {
	api   *client.APIClient
	retry async.RetryPolicy
}

// NewClient creates an order book client for baseURL (e.g. https://api.cow.fi/sepolia).
// Reads are retried with backoff on transport errors; order submission never is.
func NewClient(baseURL string, httpClient *http.Client, maxRetries int, retryDelay time.Duration) *Client {
	return &Client{
		api: client.NewAPIClient(baseURL, apiPrefix, httpClient),
		retry: async.RetryPolicy{
			MaxRetries: maxRetries,
			Delay:      retryDelay,
			Retryable:  IsRetryable,
		},
	}
}

// GetQuote prices req. The response is checked against the request's token pair and side.
func (c *Client) GetQuote(ctx context.Context, req *models.QuoteRequest) (*models.QuoteResponse, error) {
	if err := c.api.Validate(req); err != nil {
		return nil, fmt.Errorf("invalid quote request: %w", err)
	}

	resp, err := async.Retry(ctx, c.retry, "quote", func(ctx context.Context) (*models.QuoteResponse, error) {
		var resp models.QuoteResponse
		if err := c.api.Post(ctx, "/quote", req, &resp); err != nil {
			return nil, classify(err)
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	if err := CheckQuote(req, resp); err != nil {
		return nil, err
	}

	logger.Info("Quote %s: sell %s + fee %s of %s for %s of %s, valid until %d",
		quoteIDString(resp.ID), resp.Quote.SellAmount, resp.Quote.FeeAmount, resp.Quote.SellToken.Hex(),
		resp.Quote.BuyAmount, resp.Quote.BuyToken.Hex(), resp.Quote.ValidTo)
	return resp, nil
}

// PostOrder submits an order and returns its uid
func (c *Client) PostOrder(ctx context.Context, order *models.OrderCreation) (string, error) {
	if err := c.api.Validate(order); err != nil {
		return "", fmt.Errorf("invalid order: %w", err)
	}

	var uid string
	if err := c.api.Post(ctx, "/orders", order, &uid); err != nil {
		return "", fmt.Errorf("failed to post order: %w", classify(err))
	}

	logger.Info("Order %s accepted by the order book", uid)
	return uid, nil
}

// GetOrder fetches an order by uid
func (c *Client) GetOrder(ctx context.Context, uid string) (*models.Order, error) {
	order, err := async.Retry(ctx, c.retry, "order "+uid, func(ctx context.Context) (*models.Order, error) {
		var order models.Order
		if err := c.api.Get(ctx, "/orders/"+url.PathEscape(uid), &order); err != nil {
			return nil, classify(err)
		}
		return &order, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", uid, err)
	}
	return order, nil
}

// GetTrades fetches the trades that filled an order
func (c *Client) GetTrades(ctx context.Context, uid string) ([]models.Trade, error) {
	endpoint := client.BuildURLWithParams("/trades", map[string]string{"orderUid": uid})
	trades, err := async.Retry(ctx, c.retry, "trades "+uid, func(ctx context.Context) ([]models.Trade, error) {
		var trades []models.Trade
		if err := c.api.Get(ctx, endpoint, &trades); err != nil {
			return nil, classify(err)
		}
		return trades, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get trades for %s: %w", uid, err)
	}
	return trades, nil
}

func quoteIDString(id *int64) string {
	if id == nil {
		return "(no id)"
	}
	return fmt.Sprintf("#%d", *id)
}
