package bot

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/asterbot/internal/apperr"
	"github.com/web3guy0/asterbot/internal/database"
)

// cmdStart greets known users and provisions a wallet and API key for
// new ones. Secrets are encrypted before anything is stored.
func (c *Controller) cmdStart(ctx context.Context, ch *chat) {
	if ch.ready() {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "welcome_back", ch.sess.WalletAddress), Markdown: true})
		c.cmdMenu(ctx, ch)
		return
	}

	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "setting_up")})

	keys, err := c.newWallet()
	if err != nil {
		c.fail(ctx, ch, "start", err)
		return
	}
	creds, err := c.exchange.CreateAPIKeys(ctx, keys)
	if err != nil {
		c.fail(ctx, ch, "start", err)
		return
	}

	sess := &database.UserSession{
		UserID:        ch.u.UserID,
		WalletAddress: keys.Address,
		IsInitialized: true,
		Language:      ch.lang,
	}
	for _, f := range []struct {
		dst   *string
		plain string
	}{
		{&sess.EncryptedPrivateKey, keys.PrivateKey},
		{&sess.EncryptedAPIKey, creds.APIKey},
		{&sess.EncryptedAPISecret, creds.APISecret},
	} {
		if *f.dst, err = c.cipher.Encrypt(f.plain); err != nil {
			c.fail(ctx, ch, "start", err)
			return
		}
	}

	sess, err = c.saveOnboarded(ctx, sess)
	if err != nil {
		c.fail(ctx, ch, "start", err)
		return
	}
	ch.sess = sess

	log.Info().Int64("user_id", ch.u.UserID).Str("address", sess.WalletAddress).Msg("🆕 User onboarded")

	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "welcome_new", sess.WalletAddress), Markdown: true})
	c.cmdMenu(ctx, ch)
}

// saveOnboarded stores a freshly provisioned session. A row left behind
// without credentials is completed; an initialized wallet always wins.
func (c *Controller) saveOnboarded(ctx context.Context, sess *database.UserSession) (*database.UserSession, error) {
	// CreateSession loads an existing row into its argument.
	row := *sess
	err := c.store.CreateSession(ctx, &row)
	if errors.Is(err, database.ErrSessionExists) {
		err = c.store.CompleteSession(ctx, sess)
	}
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, database.ErrSessionExists) {
		return nil, err
	}

	existing, err := c.store.GetSession(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !existing.IsInitialized || existing.WalletAddress == "" {
		return nil, apperr.New(apperr.KindTransient, "start", "account setup did not complete")
	}
	log.Warn().Int64("user_id", sess.UserID).Msg("⚠️ Session initialized concurrently, keeping existing wallet")
	return existing, nil
}

func (c *Controller) cmdMenu(ctx context.Context, ch *chat) {
	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "menu"), Markdown: true, Keyboard: keyboard(menuKeyboard(ch.lang))})
}

func (c *Controller) cmdBalance(ctx context.Context, ch *chat) {
	if !c.requireAccount(ch) {
		return
	}
	creds, err := c.credentials(ch)
	if err != nil {
		c.fail(ctx, ch, "balance", err)
		return
	}

	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "fetching_balances")})

	addr := ch.sess.WalletAddress
	bnb := c.chain.NativeBalance(ctx, addr)
	usdt := c.chain.TokenBalance(ctx, addr, c.chain.Token())

	spot, err := c.exchange.SpotBalances(ctx, creds)
	if err != nil {
		c.fail(ctx, ch, "balance", err)
		return
	}
	futures, err := c.exchange.AccountBalance(ctx, creds)
	if err != nil {
		c.fail(ctx, ch, "balance", err)
		return
	}

	c.send(ch.u.ChatID, Message{
		Text: tr(ch.lang, "balance",
			addr, bnb, usdt,
			spotRows(ch.lang, spot),
			futures.Available.StringFixed(2), futures.Total.StringFixed(2)),
		Markdown: true,
	})
}

func spotRows(lang string, spot map[string]decimal.Decimal) string {
	if len(spot) == 0 {
		return tr(lang, "balance_row", "0.00", "USDT")
	}
	assets := make([]string, 0, len(spot))
	for a := range spot {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	var b strings.Builder
	for _, a := range assets {
		b.WriteString(tr(lang, "balance_row", spot[a].StringFixed(4), a))
	}
	return b.String()
}

func (c *Controller) cmdPrice(ctx context.Context, ch *chat, query string) {
	if !c.requireAccount(ch) {
		return
	}
	creds, err := c.credentials(ch)
	if err != nil {
		c.fail(ctx, ch, "price", err)
		return
	}
	symbol, err := c.exchange.ResolveSymbol(ctx, query)
	if err != nil {
		c.fail(ctx, ch, "price", err)
		return
	}
	t, err := c.exchange.Price(ctx, creds, symbol)
	if err != nil {
		c.fail(ctx, ch, "price", err)
		return
	}

	c.send(ch.u.ChatID, Message{
		Text: tr(ch.lang, "price", t.Symbol, t.Last.String(), t.ChangePct.StringFixed(2),
			t.High.String(), t.Low.String(), t.Volume.StringFixed(2)),
		Markdown: true,
	})
}

func (c *Controller) cmdPositions(ctx context.Context, ch *chat, symbol string) {
	if !c.requireAccount(ch) {
		return
	}
	creds, err := c.credentials(ch)
	if err != nil {
		c.fail(ctx, ch, "positions", err)
		return
	}
	positions, err := c.exchange.Positions(ctx, creds, strings.ToUpper(symbol))
	if err != nil {
		c.fail(ctx, ch, "positions", err)
		return
	}
	if len(positions) == 0 {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "no_positions")})
		return
	}

	var b strings.Builder
	b.WriteString(tr(ch.lang, "positions_header"))
	for _, p := range positions {
		emoji, pnl := "🟢", "+$"+p.UnrealizedPnL.StringFixed(2)
		if p.UnrealizedPnL.IsNegative() {
			emoji, pnl = "🔴", "-$"+p.UnrealizedPnL.Abs().StringFixed(2)
		}
		side := tr(ch.lang, "side_short")
		if p.IsLong() {
			side = tr(ch.lang, "side_long")
		}
		b.WriteString(tr(ch.lang, "position_row", emoji, p.Symbol, side,
			p.Amount.Abs().String(), p.Leverage, p.EntryPrice.String(), p.MarkPrice.String(), pnl))
	}
	c.send(ch.u.ChatID, Message{Text: b.String(), Markdown: true})
}

// cmdClose closes symbol directly, or lists the open positions as
// buttons when no symbol is given.
func (c *Controller) cmdClose(ctx context.Context, ch *chat, symbol string) {
	if !c.requireAccount(ch) {
		return
	}
	if symbol != "" {
		c.closePosition(ctx, ch, strings.ToUpper(symbol))
		return
	}

	creds, err := c.credentials(ch)
	if err != nil {
		c.fail(ctx, ch, "close", err)
		return
	}
	positions, err := c.exchange.Positions(ctx, creds, "")
	if err != nil {
		c.fail(ctx, ch, "close", err)
		return
	}
	if len(positions) == 0 {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "close_none")})
		return
	}
	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "close_select"), Markdown: true, Keyboard: keyboard(closeKeyboard(positions))})
}

func (c *Controller) closePosition(ctx context.Context, ch *chat, symbol string) {
	if !c.requireAccount(ch) {
		return
	}
	if err := c.allow(ctx, ch, "trade"); err != nil {
		c.fail(ctx, ch, "close", err)
		return
	}
	creds, err := c.credentials(ch)
	if err != nil {
		c.fail(ctx, ch, "close", err)
		return
	}

	res, err := c.exchange.ClosePosition(ctx, creds, symbol)
	if err != nil {
		c.fail(ctx, ch, "close", err)
		return
	}

	c.recordTrade(ctx, ch, &database.Trade{
		Symbol:   symbol,
		Side:     "close",
		Quantity: dec(res.Quantity),
		OrderID:  res.OrderID,
		Status:   res.Status,
	})
	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "closed", symbol, res.OrderID), Markdown: true})
}

func (c *Controller) cmdHistory(ctx context.Context, ch *chat) {
	if !c.requireAccount(ch) {
		return
	}
	trades, err := c.store.RecentTrades(ctx, ch.u.UserID, 10)
	if err != nil {
		c.fail(ctx, ch, "history", err)
		return
	}
	if len(trades) == 0 {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "history_empty")})
		return
	}

	var b strings.Builder
	b.WriteString(tr(ch.lang, "history_header"))
	for _, t := range trades {
		b.WriteString(tr(ch.lang, "history_row",
			t.CreatedAt.Format("01-02 15:04"), strings.ToUpper(t.Side), t.Symbol, t.SizeUSDT.StringFixed(2), t.OrderID))
	}
	c.send(ch.u.ChatID, Message{Text: b.String(), Markdown: true})
}

// cmdExport shows the warning and arms a single confirmation.
func (c *Controller) cmdExport(ctx context.Context, ch *chat) {
	if !c.requireAccount(ch) {
		return
	}
	c.exports.arm(ch.u.UserID)
	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "export_warning"), Markdown: true, Keyboard: keyboard(exportKeyboard(ch.lang))})
}

func (c *Controller) onExport(ctx context.Context, ch *chat, confirmed bool) {
	armed := c.exports.consume(ch.u.UserID)
	if !confirmed {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "export_cancelled")})
		return
	}
	if !armed || !ch.ready() {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "export_expired")})
		return
	}

	key, err := c.cipher.Decrypt(ch.sess.EncryptedPrivateKey)
	if err != nil {
		c.fail(ctx, ch, "export", err)
		return
	}

	log.Info().Int64("user_id", ch.u.UserID).Msg("🔑 Private key exported")
	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "export_key", key), Markdown: true})
}

func (c *Controller) onLanguage(ctx context.Context, ch *chat, lang string) {
	if _, ok := messages[lang]; !ok {
		return
	}
	if !c.requireAccount(ch) {
		return
	}
	if err := c.store.SetLanguage(ctx, ch.u.UserID, lang); err != nil {
		c.fail(ctx, ch, "flow", err)
		return
	}
	ch.lang = lang
	c.send(ch.u.ChatID, Message{Text: tr(lang, "language_set")})
	c.cmdMenu(ctx, ch)
}

// recordTrade stores the trade and adds its size to the user's volume.
// Failures are logged; the order already went through.
func (c *Controller) recordTrade(ctx context.Context, ch *chat, t *database.Trade) {
	t.UserID = ch.u.UserID
	if err := c.store.SaveTrade(ctx, t); err != nil {
		log.Error().Err(err).Int64("user_id", t.UserID).Str("order_id", t.OrderID).Msg("Failed to save trade")
	}
	if t.SizeUSDT.IsPositive() {
		if err := c.store.AddVolume(ctx, t.UserID, t.SizeUSDT); err != nil {
			log.Error().Err(err).Int64("user_id", t.UserID).Msg("Failed to add volume")
		}
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
