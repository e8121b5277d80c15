package testutil

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Order book routes, as counted by Requests
const (
	RouteQuote    = "POST /api/v1/quote"
	RoutePost     = "POST /api/v1/orders"
	RouteGetOrder = "GET /api/v1/orders"
	RouteTrades   = "GET /api/v1/trades"
)

type quoteRequestBody struct {
	SellToken           common.Address  `json:"sellToken"`
	BuyToken            common.Address  `json:"buyToken"`
	Receiver            *common.Address `json:"receiver"`
	From                common.Address  `json:"from"`
	Kind                string          `json:"kind"`
	SellAmountBeforeFee string          `json:"sellAmountBeforeFee"`
	BuyAmountAfterFee   string          `json:"buyAmountAfterFee"`
	SigningScheme       string          `json:"signingScheme"`
	AppData             string          `json:"appData"`
	AppDataHash         *common.Hash    `json:"appDataHash"`
}

type orderRequestBody struct {
	SellToken         common.Address  `json:"sellToken"`
	BuyToken          common.Address  `json:"buyToken"`
	Receiver          *common.Address `json:"receiver"`
	SellAmount        string          `json:"sellAmount"`
	BuyAmount         string          `json:"buyAmount"`
	ValidTo           uint32          `json:"validTo"`
	AppData           string          `json:"appData"`
	AppDataHash       *common.Hash    `json:"appDataHash"`
	FeeAmount         string          `json:"feeAmount"`
	Kind              string          `json:"kind"`
	PartiallyFillable bool            `json:"partiallyFillable"`
	SellTokenBalance  string          `json:"sellTokenBalance"`
	BuyTokenBalance   string          `json:"buyTokenBalance"`
	SigningScheme     string          `json:"signingScheme"`
	Signature         hexutil.Bytes   `json:"signature"`
	From              common.Address  `json:"from"`
	QuoteID           *int64          `json:"quoteId"`
}

type storedOrder struct {
	uid     string
	body    orderRequestBody
	status  string
	created time.Time
}

// MockOrderBook is an httptest CoW order book. With a MockChain attached, presigned
// orders open once the chain holds their pre-signature and EIP-1271 signatures are
// checked against the Safe owners.
type MockOrderBook struct {
	*httptest.Server

	mu    sync.Mutex
	chain *MockChain

	// BuyAmount is quoted for any sell order
	BuyAmount *big.Int
	// FeeAmount is carved out of the sell amount of every quote
	FeeAmount *big.Int
	// QuoteValidity sets validTo and expiration of quotes relative to now
	QuoteValidity time.Duration
	// ExpireOrders rejects that many order submissions as placed on an expired quote
	ExpireOrders int
	// FillOrders turns open orders into fulfilled ones with a trade
	FillOrders bool
	// CancelOrders turns every stored order into a cancelled one
	CancelOrders bool
	// HideOrders answers that many lookups of stored orders with 404, as an order book
	// that has not indexed a fresh order yet does
	HideOrders int
	// TamperQuote may rewrite a quote response before it is sent
	TamperQuote func(resp map[string]interface{})
	// Unavailable makes that many requests per route answer 503
	Unavailable map[string]int

	requests map[string]int
	orders   map[string]*storedOrder
	quoteID  int64
}

// NewMockOrderBook starts an order book server that is closed when the test ends
func NewMockOrderBook(t testing.TB, chain *MockChain) *MockOrderBook {
	ob := &MockOrderBook{
		chain:         chain,
		BuyAmount:     big.NewInt(55_000_000),
		FeeAmount:     big.NewInt(100_000_000_000_000),
		QuoteValidity: 30 * time.Minute,
		Unavailable:   make(map[string]int),
		requests:      make(map[string]int),
		orders:        make(map[string]*storedOrder),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/quote", ob.route(RouteQuote, ob.handleQuote))
	mux.HandleFunc("POST /api/v1/orders", ob.route(RoutePost, ob.handlePostOrder))
	mux.HandleFunc("GET /api/v1/orders/{uid}", ob.route(RouteGetOrder, ob.handleGetOrder))
	mux.HandleFunc("GET /api/v1/trades", ob.route(RouteTrades, ob.handleTrades))

	ob.Server = httptest.NewServer(mux)
	t.Cleanup(ob.Server.Close)
	return ob
}

// Requests returns how many requests hit route
func (ob *MockOrderBook) Requests(route string) int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.requests[route]
}

// TotalRequests returns how many requests the order book served
func (ob *MockOrderBook) TotalRequests() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	total := 0
	for _, n := range ob.requests {
		total += n
	}
	return total
}

// OrderStatus returns the stored status of uid
func (ob *MockOrderBook) OrderStatus(uid string) string {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if o, ok := ob.orders[strings.ToLower(uid)]; ok {
		return ob.statusOf(o)
	}
	return ""
}

func (ob *MockOrderBook) route(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ob.mu.Lock()
		ob.requests[name]++
		if ob.Unavailable[name] > 0 {
			ob.Unavailable[name]--
			ob.mu.Unlock()
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
			return
		}
		ob.mu.Unlock()
		handler(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, status int, errorType, description string) {
	writeJSON(w, status, map[string]string{"errorType": errorType, "description": description})
}

func (ob *MockOrderBook) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "InvalidQuoteRequest", err.Error())
		return
	}
	if req.From == (common.Address{}) || (req.Kind != "sell" && req.Kind != "buy") {
		writeAPIError(w, http.StatusBadRequest, "InvalidQuoteRequest", "from and kind are required")
		return
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	sellAmount, buyAmount := new(big.Int), new(big.Int)
	switch req.Kind {
	case "sell":
		amount, ok := new(big.Int).SetString(req.SellAmountBeforeFee, 10)
		if !ok || amount.Cmp(ob.FeeAmount) <= 0 {
			writeAPIError(w, http.StatusBadRequest, "SellAmountDoesNotCoverFee", "sell amount does not cover fee")
			return
		}
		sellAmount.Sub(amount, ob.FeeAmount)
		buyAmount.Set(ob.BuyAmount)
	case "buy":
		amount, ok := new(big.Int).SetString(req.BuyAmountAfterFee, 10)
		if !ok {
			writeAPIError(w, http.StatusBadRequest, "InvalidQuoteRequest", "bad buy amount")
			return
		}
		buyAmount.Set(amount)
		sellAmount.Set(WrapAmount)
	}

	receiver := req.From
	if req.Receiver != nil {
		receiver = *req.Receiver
	}

	ob.quoteID++
	now := time.Now()
	resp := map[string]interface{}{
		"quote": map[string]interface{}{
			"sellToken":         req.SellToken.Hex(),
			"buyToken":          req.BuyToken.Hex(),
			"receiver":          receiver.Hex(),
			"sellAmount":        sellAmount.String(),
			"buyAmount":         buyAmount.String(),
			"validTo":           now.Add(ob.QuoteValidity).Unix(),
			"appData":           req.AppData,
			"feeAmount":         ob.FeeAmount.String(),
			"kind":              req.Kind,
			"partiallyFillable": false,
			"sellTokenBalance":  "erc20",
			"buyTokenBalance":   "erc20",
			"signingScheme":     req.SigningScheme,
		},
		"from":       req.From.Hex(),
		"expiration": now.Add(ob.QuoteValidity).UTC().Format(time.RFC3339),
		"id":         ob.quoteID,
		"verified":   true,
	}
	if ob.TamperQuote != nil {
		ob.TamperQuote(resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (ob *MockOrderBook) handlePostOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "InvalidOrder", err.Error())
		return
	}

	ob.mu.Lock()
	if ob.ExpireOrders > 0 {
		ob.ExpireOrders--
		ob.mu.Unlock()
		writeAPIError(w, http.StatusBadRequest, "QuoteNotFound", "could not find quote with the provided id")
		return
	}
	ob.mu.Unlock()

	if int64(req.ValidTo) <= time.Now().Unix() {
		writeAPIError(w, http.StatusBadRequest, "InsufficientValidTo", "validTo is too far into the past")
		return
	}

	appDataHash := crypto.Keccak256Hash([]byte(req.AppData))
	if req.AppDataHash != nil {
		if *req.AppDataHash != appDataHash {
			writeAPIError(w, http.StatusBadRequest, "AppDataHashMismatch", "appData does not hash to appDataHash")
			return
		}
	}

	sellAmount, ok1 := new(big.Int).SetString(req.SellAmount, 10)
	buyAmount, ok2 := new(big.Int).SetString(req.BuyAmount, 10)
	feeAmount, ok3 := new(big.Int).SetString(req.FeeAmount, 10)
	if !ok1 || !ok2 || !ok3 {
		writeAPIError(w, http.StatusBadRequest, "InvalidOrder", "amounts must be decimal integers")
		return
	}

	var receiver common.Address
	if req.Receiver != nil {
		receiver = *req.Receiver
	}
	digest := OrderDigest(ChainID, Settlement, GPv2Order{
		SellToken:         req.SellToken,
		BuyToken:          req.BuyToken,
		Receiver:          receiver,
		SellAmount:        sellAmount,
		BuyAmount:         buyAmount,
		ValidTo:           req.ValidTo,
		AppData:           appDataHash,
		FeeAmount:         feeAmount,
		Kind:              req.Kind,
		PartiallyFillable: req.PartiallyFillable,
		SellTokenBalance:  req.SellTokenBalance,
		BuyTokenBalance:   req.BuyTokenBalance,
	})

	var status string
	switch req.SigningScheme {
	case "presign":
		if common.BytesToAddress(req.Signature) != req.From || len(req.Signature) != 20 {
			writeAPIError(w, http.StatusBadRequest, "InvalidSignature", "presign signature must be the owner address")
			return
		}
		status = "presignaturePending"
	case "eip1271":
		if ob.chain != nil && !ob.chain.IsValidSignature(digest.Bytes(), req.Signature) {
			writeAPIError(w, http.StatusBadRequest, "InvalidEip1271Signature", "isValidSignature rejected the signature")
			return
		}
		status = "open"
	default:
		writeAPIError(w, http.StatusBadRequest, "UnsupportedSignature", "unsupported signing scheme")
		return
	}

	uid := hexutil.Encode(OrderUID(digest, req.From, req.ValidTo))

	ob.mu.Lock()
	ob.orders[uid] = &storedOrder{uid: uid, body: req, status: status, created: time.Now()}
	ob.mu.Unlock()

	writeJSON(w, http.StatusCreated, uid)
}

func (ob *MockOrderBook) statusOf(o *storedOrder) string {
	status := o.status
	if status == "presignaturePending" && ob.chain != nil {
		if uid, err := hexutil.Decode(o.uid); err == nil && ob.chain.IsPresigned(uid) {
			status = "open"
		}
	}
	if status == "open" && ob.FillOrders {
		status = "fulfilled"
	}
	if ob.CancelOrders {
		status = "cancelled"
	}
	return status
}

func (ob *MockOrderBook) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	o, ok := ob.orders[strings.ToLower(r.PathValue("uid"))]
	if ok && ob.HideOrders > 0 {
		ob.HideOrders--
		ok = false
	}
	if !ok {
		writeAPIError(w, http.StatusNotFound, "NotFound", "order was not found")
		return
	}

	status := ob.statusOf(o)
	executedSell, executedBuy := "0", "0"
	if status == "fulfilled" {
		executedSell, executedBuy = o.body.SellAmount, o.body.BuyAmount
	}

	receiver := o.body.From
	if o.body.Receiver != nil {
		receiver = *o.body.Receiver
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uid":                o.uid,
		"owner":              o.body.From.Hex(),
		"creationDate":       o.created.UTC().Format(time.RFC3339),
		"status":             status,
		"sellToken":          o.body.SellToken.Hex(),
		"buyToken":           o.body.BuyToken.Hex(),
		"receiver":           receiver.Hex(),
		"sellAmount":         o.body.SellAmount,
		"buyAmount":          o.body.BuyAmount,
		"validTo":            o.body.ValidTo,
		"appData":            o.body.AppData,
		"feeAmount":          o.body.FeeAmount,
		"kind":               o.body.Kind,
		"partiallyFillable":  o.body.PartiallyFillable,
		"sellTokenBalance":   o.body.SellTokenBalance,
		"buyTokenBalance":    o.body.BuyTokenBalance,
		"signingScheme":      o.body.SigningScheme,
		"signature":          o.body.Signature.String(),
		"executedSellAmount": executedSell,
		"executedBuyAmount":  executedBuy,
	})
}

func (ob *MockOrderBook) handleTrades(w http.ResponseWriter, r *http.Request) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	trades := []map[string]interface{}{}
	uid := strings.ToLower(r.URL.Query().Get("orderUid"))
	if o, ok := ob.orders[uid]; ok && ob.statusOf(o) == "fulfilled" {
		trades = append(trades, map[string]interface{}{
			"blockNumber": 101,
			"logIndex":    0,
			"orderUid":    o.uid,
			"owner":       o.body.From.Hex(),
			"sellToken":   o.body.SellToken.Hex(),
			"buyToken":    o.body.BuyToken.Hex(),
			"sellAmount":  o.body.SellAmount,
			"buyAmount":   o.body.BuyAmount,
			"txHash":      crypto.Keccak256Hash([]byte(o.uid)).Hex(),
		})
	}
	writeJSON(w, http.StatusOK, trades)
}
