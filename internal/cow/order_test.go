package cow

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/safe-swap/internal/models"
	"github.com/kelsos/safe-swap/internal/testutil"
)

func sellRequest() *models.QuoteRequest {
	receiver := testutil.SafeAddress
	return &models.QuoteRequest{
		SellToken:           testutil.WETH,
		BuyToken:            testutil.BuyToken,
		Receiver:            &receiver,
		From:                testutil.SafeAddress,
		Kind:                models.OrderKindSell,
		SellAmountBeforeFee: testutil.WrapAmount.String(),
		SigningScheme:       models.SigningSchemePresign,
	}
}

func sellQuote() *models.QuoteResponse {
	return &models.QuoteResponse{
		Quote: models.Quote{
			SellToken:        testutil.WETH,
			BuyToken:         testutil.BuyToken,
			SellAmount:       "19900000000000000",
			BuyAmount:        "55000000",
			FeeAmount:        "100000000000000",
			ValidTo:          1_900_000_000,
			Kind:             models.OrderKindSell,
			SellTokenBalance: models.TokenBalanceERC20,
			BuyTokenBalance:  models.TokenBalanceERC20,
		},
	}
}

func TestTypehashes(t *testing.T) {
	assert.Equal(t, "0xd5a25ba2e97094ad7d83dc28a6572da797d6b3e7fc6663bd93efb789fc17e489", OrderTypehash.Hex())
	assert.Equal(t, "0xf3b277728b3fee749481eb3e0b3b48980dbbab78658fc419025cb16eee346775", crypto.Keccak256Hash([]byte(models.OrderKindSell)).Hex())
	assert.Equal(t, "0x6ed88e868af0a1983e3886d5f3e95a2fafbd6c3450bc229e27342283dc429ccc", crypto.Keccak256Hash([]byte(models.OrderKindBuy)).Hex())
	assert.Equal(t, "0x5a28e9363bb942b639270062aa6bb295f434bcdfc42c97267bf003f272060dc9", crypto.Keccak256Hash([]byte(models.TokenBalanceERC20)).Hex())
}

func TestOrderDigestMatchesIndependentEncoding(t *testing.T) {
	_, appDataHash, err := NewAppData("swap-n-bridge")
	require.NoError(t, err)

	tests := []struct {
		name  string
		order Order
	}{
		{
			name: "sell order",
			order: Order{
				SellToken: testutil.WETH, BuyToken: testutil.BuyToken, Receiver: testutil.SafeAddress,
				SellAmount: testutil.WrapAmount, BuyAmount: big.NewInt(54_725_000), ValidTo: 1_900_000_000,
				AppData: appDataHash, FeeAmount: new(big.Int), Kind: models.OrderKindSell,
				SellTokenBalance: models.TokenBalanceERC20, BuyTokenBalance: models.TokenBalanceERC20,
			},
		},
		{
			name: "partially fillable buy order",
			order: Order{
				SellToken: testutil.WETH, BuyToken: testutil.BuyToken,
				SellAmount: testutil.OneEther, BuyAmount: big.NewInt(1_000_000), ValidTo: 1,
				FeeAmount: big.NewInt(7), Kind: models.OrderKindBuy, PartiallyFillable: true,
				SellTokenBalance: models.TokenBalanceExternal, BuyTokenBalance: models.TokenBalanceInternal,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.order
			want := testutil.OrderDigest(testutil.ChainID, testutil.Settlement, testutil.GPv2Order{
				SellToken: o.SellToken, BuyToken: o.BuyToken, Receiver: o.Receiver,
				SellAmount: o.SellAmount, BuyAmount: o.BuyAmount, ValidTo: o.ValidTo,
				AppData: o.AppData, FeeAmount: o.FeeAmount, Kind: string(o.Kind),
				PartiallyFillable: o.PartiallyFillable,
				SellTokenBalance:  string(o.SellTokenBalance), BuyTokenBalance: string(o.BuyTokenBalance),
			})
			assert.Equal(t, want, o.Digest(testutil.ChainID, testutil.Settlement))

			other := o.Digest(big.NewInt(1), testutil.Settlement)
			assert.NotEqual(t, want, other, "digest must be bound to the chain")
		})
	}
}

func TestOrderUID(t *testing.T) {
	order, err := OrderFromQuote(sellRequest(), sellQuote(), common.Hash{}, 50)
	require.NoError(t, err)

	uid := order.UID(testutil.ChainID, testutil.Settlement, testutil.SafeAddress)
	digest := order.Digest(testutil.ChainID, testutil.Settlement)
	require.Len(t, uid, UIDLength)
	assert.Equal(t, testutil.OrderUID(digest, testutil.SafeAddress, order.ValidTo), uid)

	raw, gotDigest, owner, validTo, err := ParseUID(hexutil.Encode(uid))
	require.NoError(t, err)
	assert.Equal(t, uid, raw)
	assert.Equal(t, digest, gotDigest)
	assert.Equal(t, testutil.SafeAddress, owner)
	assert.Equal(t, order.ValidTo, validTo)

	_, _, _, _, err = ParseUID("0x1234")
	assert.Error(t, err)

	require.NoError(t, CheckUID(hexutil.Encode(uid), uid))
	assert.ErrorIs(t, CheckUID(hexutil.Encode(make([]byte, UIDLength)), uid), ErrUIDMismatch)
}

func TestOrderFromQuoteSell(t *testing.T) {
	_, appDataHash, err := NewAppData("swap-n-bridge")
	require.NoError(t, err)

	order, err := OrderFromQuote(sellRequest(), sellQuote(), appDataHash, 50)
	require.NoError(t, err)

	assert.Equal(t, testutil.WrapAmount, order.SellAmount, "fee is folded into the sell amount")
	assert.Equal(t, big.NewInt(54_725_000), order.BuyAmount, "buy amount reduced by 0.5%")
	assert.Equal(t, int64(0), order.FeeAmount.Int64())
	assert.Equal(t, testutil.SafeAddress, order.Receiver)
	assert.Equal(t, uint32(1_900_000_000), order.ValidTo)
	assert.Equal(t, appDataHash, order.AppData)
	assert.Equal(t, models.OrderKindSell, order.Kind)
}

func TestOrderFromQuoteBuy(t *testing.T) {
	req := sellRequest()
	req.Kind = models.OrderKindBuy
	req.SellAmountBeforeFee = ""
	req.BuyAmountAfterFee = "55000000"

	resp := sellQuote()
	resp.Quote.Kind = models.OrderKindBuy

	order, err := OrderFromQuote(req, resp, common.Hash{}, 100)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(20_200_000_000_000_000), order.SellAmount, "sell amount plus fee raised by 1%")
	assert.Equal(t, big.NewInt(55_000_000), order.BuyAmount)
	assert.Equal(t, int64(0), order.FeeAmount.Int64())
}

func TestOrderFromQuoteMismatch(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(*models.QuoteResponse)
	}{
		{"buy token", func(r *models.QuoteResponse) { r.Quote.BuyToken = testutil.WETH }},
		{"sell token", func(r *models.QuoteResponse) { r.Quote.SellToken = testutil.BuyToken }},
		{"kind", func(r *models.QuoteResponse) { r.Quote.Kind = models.OrderKindBuy }},
		{"sell amount", func(r *models.QuoteResponse) { r.Quote.SellAmount = "1" }},
		{"receiver", func(r *models.QuoteResponse) { addr := testutil.SignerAddress; r.Quote.Receiver = &addr }},
		{"garbage amount", func(r *models.QuoteResponse) { r.Quote.BuyAmount = "lots" }},
		{"negative fee", func(r *models.QuoteResponse) { r.Quote.FeeAmount = "-100000000000000" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := sellQuote()
			tt.tamper(resp)

			order, err := OrderFromQuote(sellRequest(), resp, common.Hash{}, 50)
			require.ErrorIs(t, err, ErrQuoteMismatch)
			assert.Nil(t, order)
		})
	}
}

func TestOrderFromQuoteRejectsFullSlippage(t *testing.T) {
	_, err := OrderFromQuote(sellRequest(), sellQuote(), common.Hash{}, 10_000)
	assert.Error(t, err)
}

func TestAppData(t *testing.T) {
	doc, hash, err := NewAppData("swap-n-bridge")
	require.NoError(t, err)

	assert.Equal(t, `{"appCode":"swap-n-bridge","metadata":{},"version":"1.1.0"}`, doc)
	assert.Equal(t, crypto.Keccak256Hash([]byte(doc)), hash)
}

func TestEncodeSetPreSignature(t *testing.T) {
	uid := make([]byte, UIDLength)
	uid[0] = 0xab

	data, err := EncodeSetPreSignature(uid, true)
	require.NoError(t, err)

	assert.Equal(t, crypto.Keccak256([]byte("setPreSignature(bytes,bool)"))[:4], data[:4])
	// head: offset, bool; tail: length, uid padded to two words
	require.Len(t, data, 4+32*5)
	assert.Equal(t, big.NewInt(64), new(big.Int).SetBytes(data[4:36]))
	assert.Equal(t, big.NewInt(1), new(big.Int).SetBytes(data[36:68]))
	assert.Equal(t, big.NewInt(UIDLength), new(big.Int).SetBytes(data[68:100]))
	assert.Equal(t, uid, data[100:100+UIDLength])

	_, err = EncodeSetPreSignature(uid[:20], true)
	assert.Error(t, err)
}

func TestPresignSignature(t *testing.T) {
	assert.Equal(t, testutil.SafeAddress.Bytes(), PresignSignature(testutil.SafeAddress))
}
