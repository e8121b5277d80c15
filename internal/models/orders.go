package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// OrderStatus is the order book's view of an order's lifecycle
type OrderStatus string

const (
	OrderStatusPresignaturePending OrderStatus = "presignaturePending"
	OrderStatusOpen                OrderStatus = "open"
	OrderStatusFulfilled           OrderStatus = "fulfilled"
	OrderStatusCancelled           OrderStatus = "cancelled"
	OrderStatusExpired             OrderStatus = "expired"
)

// Final reports whether the order can no longer change
func (s OrderStatus) Final() bool {
	return s == OrderStatusFulfilled || s == OrderStatusCancelled || s == OrderStatusExpired
}

// OrderCreation is the body posted to create an order
type OrderCreation struct {
	SellToken         common.Address  `json:"sellToken" validate:"required"`
	BuyToken          common.Address  `json:"buyToken" validate:"required"`
	Receiver          *common.Address `json:"receiver"`
	SellAmount        string          `json:"sellAmount" validate:"required,number"`
	BuyAmount         string          `json:"buyAmount" validate:"required,number"`
	ValidTo           uint32          `json:"validTo" validate:"required"`
	AppData           string          `json:"appData" validate:"required"`
	AppDataHash       common.Hash     `json:"appDataHash"`
	FeeAmount         string          `json:"feeAmount" validate:"required,number"`
	Kind              OrderKind       `json:"kind" validate:"required,oneof=sell buy"`
	PartiallyFillable bool            `json:"partiallyFillable"`
	SellTokenBalance  TokenBalance    `json:"sellTokenBalance" validate:"required"`
	BuyTokenBalance   TokenBalance    `json:"buyTokenBalance" validate:"required"`
	SigningScheme     SigningScheme   `json:"signingScheme" validate:"required,oneof=eip712 ethsign presign eip1271"`
	Signature         hexutil.Bytes   `json:"signature" validate:"required"`
	From              common.Address  `json:"from" validate:"required"`
	QuoteID           *int64          `json:"quoteId,omitempty"`
}

// Order is an order as stored by the order book
type Order struct {
	UID                string          `json:"uid" validate:"required"`
	Owner              common.Address  `json:"owner" validate:"required"`
	CreationDate       time.Time       `json:"creationDate"`
	Status             OrderStatus     `json:"status" validate:"required,oneof=presignaturePending open fulfilled cancelled expired"`
	SellToken          common.Address  `json:"sellToken" validate:"required"`
	BuyToken           common.Address  `json:"buyToken" validate:"required"`
	Receiver           *common.Address `json:"receiver"`
	SellAmount         string          `json:"sellAmount" validate:"required,number"`
	BuyAmount          string          `json:"buyAmount" validate:"required,number"`
	ValidTo            uint32          `json:"validTo"`
	FeeAmount          string          `json:"feeAmount" validate:"omitempty,number"`
	Kind               OrderKind       `json:"kind" validate:"required,oneof=sell buy"`
	PartiallyFillable  bool            `json:"partiallyFillable"`
	SigningScheme      SigningScheme   `json:"signingScheme"`
	Signature          string          `json:"signature"`
	ExecutedSellAmount string          `json:"executedSellAmount" validate:"omitempty,number"`
	ExecutedBuyAmount  string          `json:"executedBuyAmount" validate:"omitempty,number"`
}

// Trade is one settlement of (part of) an order
type Trade struct {
	BlockNumber uint64         `json:"blockNumber"`
	LogIndex    uint64         `json:"logIndex"`
	OrderUID    string         `json:"orderUid" validate:"required"`
	Owner       common.Address `json:"owner"`
	SellToken   common.Address `json:"sellToken" validate:"required"`
	BuyToken    common.Address `json:"buyToken" validate:"required"`
	SellAmount  string         `json:"sellAmount" validate:"required,number"`
	BuyAmount   string         `json:"buyAmount" validate:"required,number"`
	TxHash      *common.Hash   `json:"txHash"`
}
