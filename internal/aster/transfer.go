package aster

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/asterbot/internal/apperr"
)

type Transfer struct {
	TransactionID string
	ClientTranID  string
	Status        string
}

// TransferSpotToFutures moves asset from the spot to the futures wallet.
// Every call carries a fresh clientTranId so the exchange can drop
// duplicates.
func (c *Client) TransferSpotToFutures(ctx context.Context, creds Credentials, asset string, amount decimal.Decimal) (*Transfer, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return nil, apperr.Invalid("transfer", "asset is required")
	}
	if !amount.IsPositive() {
		return nil, apperr.Invalid("transfer", "amount must be positive")
	}

	clientTranID := c.newID()

	var resp struct {
		TranID json.Number `json:"tranId"`
		Status string      `json:"status"`
	}
	err := c.getJSON(ctx, "transfer", request{
		method: http.MethodPost,
		base:   c.futuresURL,
		path:   "/fapi/v1/asset/wallet/transfer",
		params: map[string]string{
			"asset":        asset,
			"amount":       amount.String(),
			"clientTranId": clientTranID,
			"kindType":     "SPOT_FUTURE",
		},
		creds: signed(creds),
	}, &resp)
	if err != nil {
		return nil, err
	}

	log.Info().Str("asset", asset).Str("amount", amount.String()).Str("client_tran_id", clientTranID).Msg("🔄 Spot to futures transfer")

	return &Transfer{
		TransactionID: resp.TranID.String(),
		ClientTranID:  clientTranID,
		Status:        resp.Status,
	}, nil
}
