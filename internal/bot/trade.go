package bot

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/asterbot/internal/apperr"
	"github.com/web3guy0/asterbot/internal/aster"
	"github.com/web3guy0/asterbot/internal/database"
	"github.com/web3guy0/asterbot/internal/flow"
)

// startSelect opens a trade or browse flow on the first market page. Any
// previous flow is replaced.
func (c *Controller) startSelect(ctx context.Context, ch *chat, kind flow.Kind) {
	if !c.requireAccount(ch) {
		return
	}

	markets, err := c.exchange.Markets(ctx)
	if err != nil {
		c.fail(ctx, ch, "markets", err)
		return
	}
	if len(markets) == 0 {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "no_markets")})
		return
	}

	symbols := make([]string, len(markets))
	for i, m := range markets {
		symbols[i] = m.Symbol
	}

	st, err := flow.StartSelect(kind, symbols)
	if err != nil {
		c.fail(ctx, ch, "flow", err)
		return
	}
	c.saveState(ctx, ch, st)
	c.sendPage(ch, st)
}

func (c *Controller) sendPage(ch *chat, st flow.SelectAsset) {
	perPage := c.trading.MarketsPerPage
	items := st.PageItems(perPage)
	first := st.Page*perPage + 1

	key := "select_browse"
	switch st.Kind {
	case flow.KindLong:
		key = "select_long"
	case flow.KindShort:
		key = "select_short"
	}

	c.send(ch.u.ChatID, Message{
		Text:     tr(ch.lang, key, first, first+len(items)-1, len(st.Markets)),
		Markdown: true,
		Keyboard: keyboard(marketsKeyboard(ch.lang, st, perPage, c.trading.MarketsPerRow)),
	})
}

// onPage turns the page using the cached market list.
func (c *Controller) onPage(ctx context.Context, ch *chat, raw string) {
	st, ok := ch.state.(flow.SelectAsset)
	if !ok {
		c.expired(ctx, ch)
		return
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	st = st.Turn(page, c.trading.MarketsPerPage)
	c.saveState(ctx, ch, st)
	c.sendPage(ch, st)
}

func (c *Controller) onAsset(ctx context.Context, ch *chat, symbol string) {
	st, ok := ch.state.(flow.SelectAsset)
	if !ok || !st.Has(symbol) {
		c.expired(ctx, ch)
		return
	}

	if st.Kind == flow.KindBrowse {
		c.saveState(ctx, ch, nil)
		c.cmdPrice(ctx, ch, symbol)
		return
	}

	next, err := st.Choose(symbol)
	if err != nil {
		c.fail(ctx, ch, "flow", apperr.Wrap(err, apperr.KindInvalidParameter, "select_asset", "this market cannot be traded"))
		return
	}
	c.saveState(ctx, ch, next)
	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "enter_size", sideLabel(ch.lang, next.Kind), next.Asset), Markdown: true})
}

// onSize parses the size, looks up the symbol's leverage cap and offers
// the leverage buttons. An unparsable size keeps the step.
func (c *Controller) onSize(ctx context.Context, ch *chat, st flow.EnterSize, text string) {
	if _, err := flow.ParseAmount(text, flow.SizeUnit); err != nil {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "invalid_size"), Markdown: true})
		return
	}

	creds, err := c.credentials(ch)
	if err != nil {
		c.fail(ctx, ch, "trade", err)
		return
	}
	maxLev, err := c.exchange.MaxLeverage(ctx, creds, st.Asset)
	if err != nil {
		c.fail(ctx, ch, "trade", err)
		return
	}

	next, err := st.WithSize(text, maxLev, flow.LeverageOptions(c.trading.LeverageSteps, maxLev))
	if err != nil {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "invalid_size"), Markdown: true})
		return
	}

	if cur := c.currentState(ctx, ch.u.UserID); !flow.Same(st, cur) {
		log.Debug().Int64("user_id", ch.u.UserID).Str("flow", flow.Describe(cur)).Msg("Flow changed during leverage lookup, dropping result")
		return
	}

	c.saveState(ctx, ch, next)
	c.send(ch.u.ChatID, Message{
		Text:     tr(ch.lang, "select_leverage", next.Asset, next.Size.String(), next.MaxLeverage),
		Markdown: true,
		Keyboard: keyboard(leverageKeyboard(ch.lang, next.Options)),
	})
}

func (c *Controller) onLeverage(ctx context.Context, ch *chat, raw string) {
	st, ok := ch.state.(flow.EnterLeverage)
	if !ok {
		c.expired(ctx, ch)
		return
	}
	lev, err := strconv.Atoi(raw)
	if err != nil {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "invalid_lev")})
		return
	}
	next, err := st.Pick(lev)
	if err != nil {
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "invalid_lev")})
		return
	}

	c.saveState(ctx, ch, next)
	c.send(ch.u.ChatID, Message{
		Text:     tr(ch.lang, "confirm", sideLabel(ch.lang, next.Kind), next.Asset, next.Size.String(), next.Leverage),
		Markdown: true,
		Keyboard: keyboard(confirmKeyboard(ch.lang)),
	})
}

// onConfirm clears the flow before the order goes out, so a repeated tap
// finds no confirm step and cannot place a second order.
func (c *Controller) onConfirm(ctx context.Context, ch *chat) {
	st, ok := ch.state.(flow.Confirm)
	if !ok {
		c.expired(ctx, ch)
		return
	}
	c.saveState(ctx, ch, nil)

	if err := c.allow(ctx, ch, "trade"); err != nil {
		c.fail(ctx, ch, "trade", err)
		return
	}
	creds, err := c.credentials(ch)
	if err != nil {
		c.fail(ctx, ch, "trade", err)
		return
	}

	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "placing")})

	side := aster.SideLong
	if st.Kind == flow.KindShort {
		side = aster.SideShort
	}
	res, err := c.exchange.PlaceOrder(ctx, creds, aster.OrderRequest{
		Symbol:   st.Asset,
		Side:     side,
		SizeUSDT: st.Size,
		Leverage: st.Leverage,
		Type:     aster.OrderMarket,
	})
	if err != nil {
		c.fail(ctx, ch, "trade", err)
		return
	}

	c.recordTrade(ctx, ch, &database.Trade{
		Symbol:   st.Asset,
		Side:     string(st.Kind),
		SizeUSDT: st.Size,
		Quantity: dec(res.Quantity),
		Leverage: st.Leverage,
		OrderID:  res.OrderID,
		Status:   res.Status,
	})

	log.Info().
		Int64("user_id", ch.u.UserID).
		Str("symbol", st.Asset).
		Str("side", string(side)).
		Str("size", st.Size.String()).
		Int("leverage", st.Leverage).
		Str("order_id", res.OrderID).
		Msg("✅ Trade executed")

	c.send(ch.u.ChatID, Message{
		Text:     tr(ch.lang, "order_placed", sideLabel(ch.lang, st.Kind), st.Asset, st.Size.String(), st.Leverage, res.Quantity, res.OrderID),
		Markdown: true,
	})
}

func sideLabel(lang string, kind flow.Kind) string {
	if kind == flow.KindShort {
		return tr(lang, "side_short")
	}
	return tr(lang, "side_long")
}
