package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// QuoteRequest asks the order book to price a trade.
// Exactly one of SellAmountBeforeFee (sell orders) and BuyAmountAfterFee (buy orders) is set.
type QuoteRequest struct {
	SellToken           common.Address  `json:"sellToken" validate:"required"`
	BuyToken            common.Address  `json:"buyToken" validate:"required"`
	Receiver            *common.Address `json:"receiver,omitempty"`
	AppData             string          `json:"appData,omitempty"`
	AppDataHash         *common.Hash    `json:"appDataHash,omitempty"`
	SellTokenBalance    TokenBalance    `json:"sellTokenBalance"`
	BuyTokenBalance     TokenBalance    `json:"buyTokenBalance"`
	From                common.Address  `json:"from" validate:"required"`
	PriceQuality        PriceQuality    `json:"priceQuality"`
	SigningScheme       SigningScheme   `json:"signingScheme" validate:"required"`
	OnchainOrder        bool            `json:"onchainOrder"`
	Kind                OrderKind       `json:"kind" validate:"required,oneof=sell buy"`
	SellAmountBeforeFee string          `json:"sellAmountBeforeFee,omitempty" validate:"omitempty,number"`
	BuyAmountAfterFee   string          `json:"buyAmountAfterFee,omitempty" validate:"omitempty,number"`
}

// Quote is the priced order the order book proposes
type Quote struct {
	SellToken         common.Address  `json:"sellToken" validate:"required"`
	BuyToken          common.Address  `json:"buyToken" validate:"required"`
	Receiver          *common.Address `json:"receiver"`
	SellAmount        string          `json:"sellAmount" validate:"required,number"`
	BuyAmount         string          `json:"buyAmount" validate:"required,number"`
	ValidTo           uint32          `json:"validTo" validate:"required"`
	AppData           string          `json:"appData"`
	FeeAmount         string          `json:"feeAmount" validate:"required,number"`
	Kind              OrderKind       `json:"kind" validate:"required,oneof=sell buy"`
	PartiallyFillable bool            `json:"partiallyFillable"`
	SellTokenBalance  TokenBalance    `json:"sellTokenBalance" validate:"omitempty,oneof=erc20 external internal"`
	BuyTokenBalance   TokenBalance    `json:"buyTokenBalance" validate:"omitempty,oneof=erc20 internal"`
	SigningScheme     SigningScheme   `json:"signingScheme"`
}

// QuoteResponse wraps a quote with its metadata. A quote is a point-in-time
// estimate and binds nobody.
type QuoteResponse struct {
	Quote      Quote          `json:"quote"`
	From       common.Address `json:"from"`
	Expiration time.Time      `json:"expiration"`
	ID         *int64         `json:"id"`
	Verified   bool           `json:"verified"`
}

// Expired reports whether the quote can no longer back an order at now
func (q *QuoteResponse) Expired(now time.Time) bool {
	if int64(q.Quote.ValidTo) <= now.Unix() {
		return true
	}
	return !q.Expiration.IsZero() && !now.Before(q.Expiration)
}
