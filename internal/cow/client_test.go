package cow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/safe-swap/internal/models"
	"github.com/kelsos/safe-swap/internal/testutil"
)

func newTestClient(t *testing.T, ob *testutil.MockOrderBook) *Client {
	t.Helper()
	return NewClient(ob.URL, ob.Client(), 3, time.Millisecond)
}

func quoteRequest(t *testing.T) *models.QuoteRequest {
	t.Helper()
	doc, hash, err := NewAppData("swap-n-bridge")
	require.NoError(t, err)

	req := sellRequest()
	req.AppData = doc
	req.AppDataHash = &hash
	return req
}

func postQuotedOrder(t *testing.T, c *Client, scheme models.SigningScheme) (string, []byte) {
	t.Helper()
	ctx := context.Background()

	req := quoteRequest(t)
	resp, err := c.GetQuote(ctx, req)
	require.NoError(t, err)

	order, err := OrderFromQuote(req, resp, *req.AppDataHash, 50)
	require.NoError(t, err)

	uid, err := c.PostOrder(ctx, order.Creation(req.AppData, testutil.SafeAddress, scheme,
		PresignSignature(testutil.SafeAddress), resp.ID))
	require.NoError(t, err)
	return uid, order.UID(testutil.ChainID, testutil.Settlement, testutil.SafeAddress)
}

func TestGetQuote(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	c := newTestClient(t, ob)

	resp, err := c.GetQuote(context.Background(), quoteRequest(t))
	require.NoError(t, err)

	assert.Equal(t, "19900000000000000", resp.Quote.SellAmount)
	assert.Equal(t, "100000000000000", resp.Quote.FeeAmount)
	assert.Equal(t, "55000000", resp.Quote.BuyAmount)
	require.NotNil(t, resp.ID)
	assert.False(t, resp.Expired(time.Now()))
	assert.True(t, resp.Expired(time.Now().Add(time.Hour)))
}

func TestGetQuoteMismatch(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	ob.TamperQuote = func(resp map[string]interface{}) {
		resp["quote"].(map[string]interface{})["buyToken"] = testutil.WETH.Hex()
	}
	c := newTestClient(t, ob)

	_, err := c.GetQuote(context.Background(), quoteRequest(t))
	require.ErrorIs(t, err, ErrQuoteMismatch)
}

func TestGetQuoteInvalidResponse(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	ob.TamperQuote = func(resp map[string]interface{}) {
		resp["quote"].(map[string]interface{})["sellAmount"] = "not a number"
	}
	c := NewClient(ob.URL, ob.Client(), 0, time.Millisecond)

	_, err := c.GetQuote(context.Background(), quoteRequest(t))
	require.ErrorIs(t, err, ErrTransport)
}

func TestGetQuoteRejected(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	c := newTestClient(t, ob)

	req := quoteRequest(t)
	req.SellAmountBeforeFee = "1"

	_, err := c.GetQuote(context.Background(), req)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Equal(t, "SellAmountDoesNotCoverFee", apiErr.ErrorType)
	assert.False(t, apiErr.QuoteExpired())
	assert.False(t, errors.Is(err, ErrTransport))
	assert.Equal(t, 1, ob.Requests(testutil.RouteQuote), "rejections are not retried")
}

func TestPostOrderPresign(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	c := newTestClient(t, ob)

	uid, expected := postQuotedOrder(t, c, models.SigningSchemePresign)

	require.NoError(t, CheckUID(uid, expected))
	assert.Equal(t, "presignaturePending", ob.OrderStatus(uid))

	order, err := c.GetOrder(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPresignaturePending, order.Status)
	assert.Equal(t, testutil.SafeAddress, order.Owner)
	assert.Equal(t, testutil.WrapAmount.String(), order.SellAmount)
}

func TestPostOrderQuoteExpired(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	ob.ExpireOrders = 1
	c := newTestClient(t, ob)
	ctx := context.Background()

	req := quoteRequest(t)
	resp, err := c.GetQuote(ctx, req)
	require.NoError(t, err)
	order, err := OrderFromQuote(req, resp, *req.AppDataHash, 50)
	require.NoError(t, err)

	_, err = c.PostOrder(ctx, order.Creation(req.AppData, testutil.SafeAddress, models.SigningSchemePresign,
		PresignSignature(testutil.SafeAddress), resp.ID))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.QuoteExpired())
	assert.ErrorIs(t, err, ErrQuoteExpired)
}

func TestPostOrderIsNotRetried(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	c := newTestClient(t, ob)
	ctx := context.Background()

	req := quoteRequest(t)
	resp, err := c.GetQuote(ctx, req)
	require.NoError(t, err)
	order, err := OrderFromQuote(req, resp, *req.AppDataHash, 50)
	require.NoError(t, err)

	ob.Unavailable[testutil.RoutePost] = 1
	_, err = c.PostOrder(ctx, order.Creation(req.AppData, testutil.SafeAddress, models.SigningSchemePresign,
		PresignSignature(testutil.SafeAddress), resp.ID))

	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, ob.Requests(testutil.RoutePost))
}

func TestPostOrderValidatesBody(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	c := newTestClient(t, ob)

	_, err := c.PostOrder(context.Background(), &models.OrderCreation{})
	require.Error(t, err)
	assert.Zero(t, ob.TotalRequests())
}

func TestGetOrderRetriesTransportErrors(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	c := newTestClient(t, ob)

	uid, _ := postQuotedOrder(t, c, models.SigningSchemeEIP1271)
	ob.Unavailable[testutil.RouteGetOrder] = 2

	order, err := c.GetOrder(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusOpen, order.Status)
	assert.Equal(t, 3, ob.Requests(testutil.RouteGetOrder))
}

func TestGetOrderGivesUp(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	c := NewClient(ob.URL, ob.Client(), 1, time.Millisecond)

	uid, _ := postQuotedOrder(t, c, models.SigningSchemeEIP1271)
	ob.Unavailable[testutil.RouteGetOrder] = 5

	_, err := c.GetOrder(context.Background(), uid)
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 2, ob.Requests(testutil.RouteGetOrder))
}

func TestGetOrderNotFound(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	c := newTestClient(t, ob)

	_, err := c.GetOrder(context.Background(), hexutil.Encode(make([]byte, UIDLength)))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.True(t, apiErr.NotFound())
	assert.False(t, errors.Is(err, ErrQuoteExpired))
	assert.Equal(t, 1, ob.Requests(testutil.RouteGetOrder))
}

func TestGetTrades(t *testing.T) {
	ob := testutil.NewMockOrderBook(t, nil)
	c := newTestClient(t, ob)

	uid, _ := postQuotedOrder(t, c, models.SigningSchemeEIP1271)

	trades, err := c.GetTrades(context.Background(), uid)
	require.NoError(t, err)
	assert.Empty(t, trades)

	ob.FillOrders = true
	trades, err = c.GetTrades(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uid, trades[0].OrderUID)
	assert.Equal(t, testutil.WrapAmount.String(), trades[0].SellAmount)
}
