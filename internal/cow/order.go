package cow

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kelsos/safe-swap/internal/models"
	"github.com/kelsos/safe-swap/internal/utils"
)

// UIDLength is digest(32) | owner(20) | validTo(4)
const UIDLength = 56

const bpsDenominator = 10_000

var (
	domainTypehash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	domainName     = crypto.Keccak256Hash([]byte("Gnosis Protocol"))
	domainVersion  = crypto.Keccak256Hash([]byte("v2"))

	// OrderTypehash is GPv2Order.TYPE_HASH
	OrderTypehash = crypto.Keccak256Hash([]byte("Order(address sellToken,address buyToken,address receiver,uint256 sellAmount,uint256 buyAmount,uint32 validTo,bytes32 appData,uint256 feeAmount,string kind,bool partiallyFillable,string sellTokenBalance,string buyTokenBalance)"))
)

// Order is the struct the settlement contract hashes and verifies
type Order struct {
	SellToken         common.Address
	BuyToken          common.Address
	Receiver          common.Address
	SellAmount        *big.Int
	BuyAmount         *big.Int
	ValidTo           uint32
	AppData           common.Hash
	FeeAmount         *big.Int
	Kind              models.OrderKind
	PartiallyFillable bool
	SellTokenBalance  models.TokenBalance
	BuyTokenBalance   models.TokenBalance
}

// DomainSeparator returns the settlement contract's EIP-712 domain on chainID
func DomainSeparator(chainID *big.Int, settlement common.Address) common.Hash {
	return crypto.Keccak256Hash(
		domainTypehash.Bytes(),
		domainName.Bytes(),
		domainVersion.Bytes(),
		word(chainID),
		common.LeftPadBytes(settlement.Bytes(), 32),
	)
}

// Digest returns the EIP-712 hash the owner authorizes
func (o *Order) Digest(chainID *big.Int, settlement common.Address) common.Hash {
	partiallyFillable := new(big.Int)
	if o.PartiallyFillable {
		partiallyFillable.SetUint64(1)
	}
	structHash := crypto.Keccak256Hash(
		OrderTypehash.Bytes(),
		common.LeftPadBytes(o.SellToken.Bytes(), 32),
		common.LeftPadBytes(o.BuyToken.Bytes(), 32),
		common.LeftPadBytes(o.Receiver.Bytes(), 32),
		word(o.SellAmount),
		word(o.BuyAmount),
		word(new(big.Int).SetUint64(uint64(o.ValidTo))),
		o.AppData.Bytes(),
		word(o.FeeAmount),
		crypto.Keccak256([]byte(o.Kind)),
		word(partiallyFillable),
		crypto.Keccak256([]byte(o.SellTokenBalance)),
		crypto.Keccak256([]byte(o.BuyTokenBalance)),
	)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, DomainSeparator(chainID, settlement).Bytes(), structHash.Bytes())
}

// UID returns the order's unique identifier for owner
func (o *Order) UID(chainID *big.Int, settlement, owner common.Address) []byte {
	return PackUID(o.Digest(chainID, settlement), owner, o.ValidTo)
}

// PackUID packs digest | owner | validTo (big-endian)
func PackUID(digest common.Hash, owner common.Address, validTo uint32) []byte {
	uid := make([]byte, 0, UIDLength)
	uid = append(uid, digest.Bytes()...)
	uid = append(uid, owner.Bytes()...)
	return binary.BigEndian.AppendUint32(uid, validTo)
}

// ParseUID decodes a hex order uid and splits it into its parts
func ParseUID(uid string) ([]byte, common.Hash, common.Address, uint32, error) {
	raw, err := hexutil.Decode(uid)
	if err != nil {
		return nil, common.Hash{}, common.Address{}, 0, fmt.Errorf("invalid order uid %q: %w", uid, err)
	}
	if len(raw) != UIDLength {
		return nil, common.Hash{}, common.Address{}, 0, fmt.Errorf("invalid order uid %q: %d bytes, want %d", uid, len(raw), UIDLength)
	}
	return raw, common.BytesToHash(raw[:32]), common.BytesToAddress(raw[32:52]), binary.BigEndian.Uint32(raw[52:]), nil
}

// CheckUID compares the uid the order book returned with the one computed locally
func CheckUID(got string, want []byte) error {
	if !strings.EqualFold(got, hexutil.Encode(want)) {
		return fmt.Errorf("%w: order book returned %s, expected %s", ErrUIDMismatch, got, hexutil.Encode(want))
	}
	return nil
}

// CheckQuote verifies that resp prices exactly what req asked for
func CheckQuote(req *models.QuoteRequest, resp *models.QuoteResponse) error {
	q := resp.Quote
	if q.SellToken != req.SellToken || q.BuyToken != req.BuyToken {
		return fmt.Errorf("%w: quoted pair %s/%s, requested %s/%s", ErrQuoteMismatch,
			q.SellToken.Hex(), q.BuyToken.Hex(), req.SellToken.Hex(), req.BuyToken.Hex())
	}
	if q.Kind != req.Kind {
		return fmt.Errorf("%w: quoted a %s order, requested %s", ErrQuoteMismatch, q.Kind, req.Kind)
	}
	if q.Receiver != nil && *q.Receiver != receiverOf(req) {
		return fmt.Errorf("%w: quoted receiver %s, requested %s", ErrQuoteMismatch, q.Receiver.Hex(), receiverOf(req).Hex())
	}

	sellAmount, buyAmount, feeAmount, err := quoteAmounts(q)
	if err != nil {
		return err
	}
	switch req.Kind {
	case models.OrderKindSell:
		requested, ok := new(big.Int).SetString(req.SellAmountBeforeFee, 10)
		if !ok {
			return fmt.Errorf("%w: invalid requested sell amount %q", ErrQuoteMismatch, req.SellAmountBeforeFee)
		}
		if total := new(big.Int).Add(sellAmount, feeAmount); total.Cmp(requested) != 0 {
			return fmt.Errorf("%w: quoted sell amount %s + fee %s, requested %s", ErrQuoteMismatch, sellAmount, feeAmount, requested)
		}
	case models.OrderKindBuy:
		requested, ok := new(big.Int).SetString(req.BuyAmountAfterFee, 10)
		if !ok {
			return fmt.Errorf("%w: invalid requested buy amount %q", ErrQuoteMismatch, req.BuyAmountAfterFee)
		}
		if buyAmount.Cmp(requested) != 0 {
			return fmt.Errorf("%w: quoted buy amount %s, requested %s", ErrQuoteMismatch, buyAmount, requested)
		}
	}
	return nil
}

// OrderFromQuote turns a quote into a signable order.
// The fee is folded into the sell amount (fee 0 on the order) and the non-fixed side gets
// slippageBps of tolerance: less to buy on sell orders, more to sell on buy orders.
func OrderFromQuote(req *models.QuoteRequest, resp *models.QuoteResponse, appData common.Hash, slippageBps uint32) (*Order, error) {
	if slippageBps >= bpsDenominator {
		return nil, fmt.Errorf("slippage of %d bps leaves nothing to trade", slippageBps)
	}
	if err := CheckQuote(req, resp); err != nil {
		return nil, err
	}

	q := resp.Quote
	sellAmount, buyAmount, feeAmount, err := quoteAmounts(q)
	if err != nil {
		return nil, err
	}
	sellAmount.Add(sellAmount, feeAmount)

	switch q.Kind {
	case models.OrderKindSell:
		buyAmount = applyBps(buyAmount, bpsDenominator-int64(slippageBps))
	case models.OrderKindBuy:
		sellAmount = applyBps(sellAmount, bpsDenominator+int64(slippageBps))
	}

	sellBalance, buyBalance := q.SellTokenBalance, q.BuyTokenBalance
	if sellBalance == "" {
		sellBalance = models.TokenBalanceERC20
	}
	if buyBalance == "" {
		buyBalance = models.TokenBalanceERC20
	}

	return &Order{
		SellToken:         q.SellToken,
		BuyToken:          q.BuyToken,
		Receiver:          receiverOf(req),
		SellAmount:        sellAmount,
		BuyAmount:         buyAmount,
		ValidTo:           q.ValidTo,
		AppData:           appData,
		FeeAmount:         new(big.Int),
		Kind:              q.Kind,
		PartiallyFillable: q.PartiallyFillable,
		SellTokenBalance:  sellBalance,
		BuyTokenBalance:   buyBalance,
	}, nil
}

// Creation builds the body posted to the order book
func (o *Order) Creation(appData string, from common.Address, scheme models.SigningScheme, signature []byte, quoteID *int64) *models.OrderCreation {
	receiver := o.Receiver
	return &models.OrderCreation{
		SellToken:         o.SellToken,
		BuyToken:          o.BuyToken,
		Receiver:          &receiver,
		SellAmount:        o.SellAmount.String(),
		BuyAmount:         o.BuyAmount.String(),
		ValidTo:           o.ValidTo,
		AppData:           appData,
		AppDataHash:       o.AppData,
		FeeAmount:         o.FeeAmount.String(),
		Kind:              o.Kind,
		PartiallyFillable: o.PartiallyFillable,
		SellTokenBalance:  o.SellTokenBalance,
		BuyTokenBalance:   o.BuyTokenBalance,
		SigningScheme:     scheme,
		Signature:         signature,
		From:              from,
		QuoteID:           quoteID,
	}
}

func receiverOf(req *models.QuoteRequest) common.Address {
	if req.Receiver != nil {
		return *req.Receiver
	}
	return req.From
}

func quoteAmounts(q models.Quote) (sell, buy, fee *big.Int, err error) {
	if sell, err = utils.ParseBaseUnits(q.SellAmount); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: quoted sell amount: %v", ErrQuoteMismatch, err)
	}
	if buy, err = utils.ParseBaseUnits(q.BuyAmount); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: quoted buy amount: %v", ErrQuoteMismatch, err)
	}
	if fee, err = utils.ParseBaseUnits(q.FeeAmount); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: quoted fee: %v", ErrQuoteMismatch, err)
	}
	return sell, buy, fee, nil
}

func applyBps(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

func word(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}
