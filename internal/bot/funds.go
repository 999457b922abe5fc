package bot

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/asterbot/internal/flow"
)

const defaultAsset = "USDT"

// cmdDeposit sends USDT on chain to the exchange treasury. Without an
// amount it asks for one.
func (c *Controller) cmdDeposit(ctx context.Context, ch *chat, args []string) {
	if !c.requireAccount(ch) {
		return
	}
	if len(args) == 0 {
		c.askAmount(ctx, ch, flow.KindDeposit, defaultAsset)
		return
	}
	amount, err := flow.ParseAmount(strings.Join(args, " "), defaultAsset)
	if err != nil {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "invalid_size"), Markdown: true})
		return
	}
	c.deposit(ctx, ch, amount)
}

// cmdTransfer handles "/transfer <amount> [asset]".
func (c *Controller) cmdTransfer(ctx context.Context, ch *chat, args []string) {
	if !c.requireAccount(ch) {
		return
	}
	asset := defaultAsset
	if len(args) > 1 {
		asset = strings.ToUpper(args[1])
	}
	if len(args) == 0 {
		c.askAmount(ctx, ch, flow.KindTransfer, asset)
		return
	}
	amount, err := flow.ParseAmount(args[0])
	if err != nil || len(args) > 2 {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "invalid_size"), Markdown: true})
		return
	}
	c.transfer(ctx, ch, asset, amount)
}

func (c *Controller) askAmount(ctx context.Context, ch *chat, kind flow.Kind, asset string) {
	st, err := flow.StartAmount(kind, asset)
	if err != nil {
		c.fail(ctx, ch, "flow", err)
		return
	}
	c.saveState(ctx, ch, st)

	text := tr(ch.lang, "deposit_prompt")
	if kind == flow.KindTransfer {
		text = tr(ch.lang, "transfer_prompt", escapeMarkdown(asset))
	}
	c.send(ch.u.ChatID, Message{Text: text, Markdown: true})
}

func (c *Controller) onAmount(ctx context.Context, ch *chat, st flow.EnterAmount, text string) {
	amount, err := flow.ParseAmount(text, st.Asset)
	if err != nil {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "invalid_size"), Markdown: true})
		return
	}
	c.saveState(ctx, ch, nil)

	switch st.Kind {
	case flow.KindDeposit:
		c.deposit(ctx, ch, amount)
	case flow.KindTransfer:
		c.transfer(ctx, ch, st.Asset, amount)
	}
}

func (c *Controller) deposit(ctx context.Context, ch *chat, amount decimal.Decimal) {
	if err := c.allow(ctx, ch, "deposit"); err != nil {
		c.fail(ctx, ch, "deposit", err)
		return
	}
	key, err := c.cipher.Decrypt(ch.sess.EncryptedPrivateKey)
	if err != nil {
		c.fail(ctx, ch, "deposit", err)
		return
	}

	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "depositing", amount.String())})

	hash, err := c.chain.SendToken(ctx, key, c.treasury, amount)
	if err != nil {
		if hash != "" {
			log.Warn().Int64("user_id", ch.u.UserID).Str("tx", hash).Msg("Deposit sent but not confirmed")
		}
		c.fail(ctx, ch, "deposit", err)
		return
	}

	log.Info().Int64("user_id", ch.u.UserID).Str("amount", amount.String()).Str("tx", hash).Msg("💸 Deposit confirmed")
	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "deposit_sent", hash), Markdown: true})
}

func (c *Controller) transfer(ctx context.Context, ch *chat, asset string, amount decimal.Decimal) {
	if err := c.allow(ctx, ch, "transfer"); err != nil {
		c.fail(ctx, ch, "transfer", err)
		return
	}
	creds, err := c.credentials(ch)
	if err != nil {
		c.fail(ctx, ch, "transfer", err)
		return
	}

	t, err := c.exchange.TransferSpotToFutures(ctx, creds, asset, amount)
	if err != nil {
		c.fail(ctx, ch, "transfer", err)
		return
	}
	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "transfer_done", amount.String(), escapeMarkdown(asset), t.TransactionID), Markdown: true})
}
