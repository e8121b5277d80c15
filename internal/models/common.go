package models

// OrderKind is the fixed side of an order
type OrderKind string

const (
	OrderKindSell OrderKind = "sell"
	OrderKindBuy  OrderKind = "buy"
)

// SigningScheme is how the order owner authorizes the order
type SigningScheme string

const (
	SigningSchemeEIP712  SigningScheme = "eip712"
	SigningSchemeEthSign SigningScheme = "ethsign"
	SigningSchemePresign SigningScheme = "presign"
	SigningSchemeEIP1271 SigningScheme = "eip1271"
)

// TokenBalance is where the settlement takes or puts the tokens
type TokenBalance string

const (
	TokenBalanceERC20    TokenBalance = "erc20"
	TokenBalanceExternal TokenBalance = "external"
	TokenBalanceInternal TokenBalance = "internal"
)

// PriceQuality trades quote speed for accuracy
type PriceQuality string

const (
	PriceQualityFast     PriceQuality = "fast"
	PriceQualityOptimal  PriceQuality = "optimal"
	PriceQualityVerified PriceQuality = "verified"
)

// ErrorResponse is the body the order book returns with 4xx responses
type ErrorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
}
