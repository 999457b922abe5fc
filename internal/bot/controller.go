// Package bot runs the Telegram conversation: commands, inline buttons and
// the per-user trade flow.
//
// controller.go - routing, per-user serialization and error rendering.
// The Telegram transport lives in telegram.go so the controller can be
// driven by tests without a network.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/asterbot/internal/apperr"
	"github.com/web3guy0/asterbot/internal/aster"
	"github.com/web3guy0/asterbot/internal/config"
	"github.com/web3guy0/asterbot/internal/database"
	"github.com/web3guy0/asterbot/internal/flow"
	"github.com/web3guy0/asterbot/internal/wallet"
)

const exportTTL = 2 * time.Minute

// Update is one incoming message or button press.
type Update struct {
	UserID     int64
	ChatID     int64
	Username   string
	Text       string
	Callback   string
	CallbackID string
}

// Message is one outgoing chat message.
type Message struct {
	Text     string
	Markdown bool
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

type Messenger interface {
	Send(chatID int64, msg Message) error
	AnswerCallback(callbackID, text string) error
}

type Exchange interface {
	CreateAPIKeys(ctx context.Context, w wallet.Keys) (aster.Credentials, error)
	Markets(ctx context.Context) ([]aster.Market, error)
	ResolveSymbol(ctx context.Context, query string) (string, error)
	Price(ctx context.Context, creds aster.Credentials, symbol string) (aster.Ticker, error)
	MaxLeverage(ctx context.Context, creds aster.Credentials, symbol string) (int, error)
	AccountBalance(ctx context.Context, creds aster.Credentials) (aster.Balance, error)
	SpotBalances(ctx context.Context, creds aster.Credentials) (map[string]decimal.Decimal, error)
	Positions(ctx context.Context, creds aster.Credentials, symbol string) ([]aster.Position, error)
	PlaceOrder(ctx context.Context, creds aster.Credentials, req aster.OrderRequest) (*aster.OrderResult, error)
	ClosePosition(ctx context.Context, creds aster.Credentials, symbol string) (*aster.OrderResult, error)
	TransferSpotToFutures(ctx context.Context, creds aster.Credentials, asset string, amount decimal.Decimal) (*aster.Transfer, error)
}

type Chain interface {
	Token() string
	NativeBalance(ctx context.Context, address string) string
	TokenBalance(ctx context.Context, address, token string) string
	SendToken(ctx context.Context, privateKey, to string, amount decimal.Decimal) (string, error)
}

type Store interface {
	GetSession(ctx context.Context, userID int64) (*database.UserSession, error)
	CreateSession(ctx context.Context, s *database.UserSession) error
	CompleteSession(ctx context.Context, s *database.UserSession) error
	SaveFlow(ctx context.Context, userID int64, encoded string) error
	SetLanguage(ctx context.Context, userID int64, lang string) error
	AddVolume(ctx context.Context, userID int64, amount decimal.Decimal) error
	SaveTrade(ctx context.Context, trade *database.Trade) error
	RecentTrades(ctx context.Context, userID int64, limit int) ([]database.Trade, error)
}

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

type Limiter interface {
	Allow(ctx context.Context, userID int64, action string) bool
}

// Controller routes updates. It holds no per-user state besides locks and
// pending export confirmations; everything else lives in the Store.
type Controller struct {
	store    Store
	cipher   Cipher
	exchange Exchange
	chain    Chain
	limiter  Limiter
	out      Messenger

	trading  config.Trading
	treasury string

	locks   *userLocks
	exports *exportGate

	newWallet func() (wallet.Keys, error)
}

func NewController(cfg *config.Config, store Store, cipher Cipher, exchange Exchange, chain Chain, limiter Limiter, out Messenger) *Controller {
	return &Controller{
		store:     store,
		cipher:    cipher,
		exchange:  exchange,
		chain:     chain,
		limiter:   limiter,
		out:       out,
		trading:   cfg.Trading,
		treasury:  cfg.TreasuryAddress,
		locks:     newUserLocks(),
		exports:   newExportGate(exportTTL, time.Now),
		newWallet: wallet.Create,
	}
}

// chat is the loaded context of one update.
type chat struct {
	u     Update
	sess  *database.UserSession
	lang  string
	state flow.State
}

func (ch *chat) ready() bool {
	return ch.sess != nil && ch.sess.IsInitialized
}

// Handle processes one update. Updates of the same user run one at a
// time; /cancel and cancel_trade skip the queue.
func (c *Controller) Handle(ctx context.Context, u Update) {
	if u.CallbackID != "" {
		if err := c.out.AnswerCallback(u.CallbackID, ""); err != nil {
			log.Debug().Err(err).Msg("Callback answer failed")
		}
	}

	if u.Callback == cbCancelTrade || isCommand(u.Text, "cancel") {
		c.cancel(ctx, u)
		return
	}

	unlock := c.locks.lock(u.UserID)
	defer unlock()

	ch, err := c.load(ctx, u)
	if err != nil {
		log.Error().Err(err).Int64("user_id", u.UserID).Msg("Failed to load session")
		c.send(u.ChatID, Message{Text: tr(langEN, "error", tr(langEN, "act_flow"), tr(langEN, "error_why"), tr(langEN, "error_next")), Markdown: true})
		return
	}

	if u.Callback != "" {
		c.handleCallback(ctx, ch)
		return
	}
	c.handleText(ctx, ch)
}

// cancel clears the stored flow without taking the user lock.
func (c *Controller) cancel(ctx context.Context, u Update) {
	lang := langEN
	sess, err := c.store.GetSession(ctx, u.UserID)
	if err == nil {
		lang = sess.Language
		if err := c.store.SaveFlow(ctx, u.UserID, ""); err != nil {
			log.Warn().Err(err).Int64("user_id", u.UserID).Msg("Failed to clear flow")
		}
	}
	c.exports.consume(u.UserID)

	key := "cancelled"
	if u.Callback == cbCancelTrade {
		key = "trade_cancelled"
	}
	c.send(u.ChatID, Message{Text: tr(lang, key)})
}

func (c *Controller) load(ctx context.Context, u Update) (*chat, error) {
	ch := &chat{u: u, lang: langEN}

	sess, err := c.store.GetSession(ctx, u.UserID)
	if errors.Is(err, database.ErrSessionNotFound) {
		return ch, nil
	}
	if err != nil {
		return nil, err
	}
	ch.sess = sess
	ch.lang = normalizeLang(sess.Language)

	state, err := flow.Decode(sess.ConversationState)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", u.UserID).Msg("Dropping unreadable flow state")
		c.saveState(ctx, ch, nil)
		return ch, nil
	}
	ch.state = state
	return ch, nil
}

func (c *Controller) handleText(ctx context.Context, ch *chat) {
	text := strings.TrimSpace(ch.u.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		cmd, args := parseCommand(text)
		log.Debug().Int64("user_id", ch.u.UserID).Str("command", cmd).Msg("Received command")
		c.handleCommand(ctx, ch, cmd, args)
		return
	}

	switch st := ch.state.(type) {
	case flow.EnterSize:
		c.onSize(ctx, ch, st, text)
	case flow.EnterAmount:
		c.onAmount(ctx, ch, st, text)
	case nil:
		// Free text outside a flow is ignored.
	default:
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "use_buttons")})
	}
}

func (c *Controller) handleCommand(ctx context.Context, ch *chat, cmd string, args []string) {
	switch cmd {
	case "start":
		c.cmdStart(ctx, ch)
	case "menu":
		c.cmdMenu(ctx, ch)
	case "help":
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "help"), Markdown: true})
	case "balance", "spotbalance":
		c.cmdBalance(ctx, ch)
	case "deposit":
		c.cmdDeposit(ctx, ch, args)
	case "transfer":
		c.cmdTransfer(ctx, ch, args)
	case "long":
		c.startSelect(ctx, ch, flow.KindLong)
	case "short":
		c.startSelect(ctx, ch, flow.KindShort)
	case "markets":
		c.startSelect(ctx, ch, flow.KindBrowse)
	case "price":
		c.cmdPrice(ctx, ch, firstArg(args, "BNBUSDT"))
	case "positions":
		c.cmdPositions(ctx, ch, firstArg(args, ""))
	case "close":
		c.cmdClose(ctx, ch, firstArg(args, ""))
	case "history":
		c.cmdHistory(ctx, ch)
	case "export":
		c.cmdExport(ctx, ch)
	case "language":
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "language_prompt"), Keyboard: keyboard(languageKeyboard())})
	default:
		c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "unknown_command")})
	}
}

func (c *Controller) handleCallback(ctx context.Context, ch *chat) {
	data := ch.u.Callback
	log.Debug().Int64("user_id", ch.u.UserID).Str("data", data).Msg("Received callback")

	switch {
	case strings.HasPrefix(data, cbMenuPrefix):
		c.handleCommand(ctx, ch, strings.TrimPrefix(data, cbMenuPrefix), nil)
	case data == cbBackToMenu:
		if ch.state != nil {
			c.saveState(ctx, ch, nil)
		}
		c.cmdMenu(ctx, ch)
	case data == cbMarketsInfo:
		// Page label only.
	case strings.HasPrefix(data, cbMarketsPage):
		c.onPage(ctx, ch, strings.TrimPrefix(data, cbMarketsPage))
	case strings.HasPrefix(data, cbSelectAsset):
		c.onAsset(ctx, ch, strings.TrimPrefix(data, cbSelectAsset))
	case strings.HasPrefix(data, cbLeverage):
		c.onLeverage(ctx, ch, strings.TrimPrefix(data, cbLeverage))
	case data == cbConfirmTrade:
		c.onConfirm(ctx, ch)
	case strings.HasPrefix(data, cbClose):
		c.closePosition(ctx, ch, strings.TrimPrefix(data, cbClose))
	case data == cbExportYes:
		c.onExport(ctx, ch, true)
	case data == cbExportNo:
		c.onExport(ctx, ch, false)
	case strings.HasPrefix(data, cbLangPrefix):
		c.onLanguage(ctx, ch, strings.TrimPrefix(data, cbLangPrefix))
	default:
		log.Debug().Str("data", data).Msg("Ignoring unknown callback")
	}
}

// requireAccount replies with the onboarding hint when the user has no
// initialized account.
func (c *Controller) requireAccount(ch *chat) bool {
	if ch.ready() {
		return true
	}
	c.send(ch.u.ChatID, Message{Text: tr(ch.lang, "need_start")})
	return false
}

func (c *Controller) credentials(ch *chat) (aster.Credentials, error) {
	key, err := c.cipher.Decrypt(ch.sess.EncryptedAPIKey)
	if err != nil {
		return aster.Credentials{}, apperr.Wrap(err, apperr.KindAuthentication, "credentials", "stored API credentials could not be read")
	}
	secret, err := c.cipher.Decrypt(ch.sess.EncryptedAPISecret)
	if err != nil {
		return aster.Credentials{}, apperr.Wrap(err, apperr.KindAuthentication, "credentials", "stored API credentials could not be read")
	}
	return aster.Credentials{APIKey: key, APISecret: secret}, nil
}

// allow applies the per-user rate limit to a sensitive action.
func (c *Controller) allow(ctx context.Context, ch *chat, action string) error {
	if c.limiter == nil || c.limiter.Allow(ctx, ch.u.UserID, action) {
		return nil
	}
	return apperr.New(apperr.KindRateLimited, action, "too many requests in a short time")
}

func (c *Controller) saveState(ctx context.Context, ch *chat, s flow.State) {
	ch.state = s
	if ch.sess == nil {
		return
	}
	encoded, err := flow.Encode(s)
	if err != nil {
		log.Error().Err(err).Str("flow", flow.Describe(s)).Msg("Failed to encode flow")
		return
	}
	if err := c.store.SaveFlow(ctx, ch.u.UserID, encoded); err != nil {
		log.Error().Err(err).Int64("user_id", ch.u.UserID).Msg("Failed to save flow")
	}
}

// currentState re-reads the stored flow, for checking that a snapshot is
// still current after a slow call.
func (c *Controller) currentState(ctx context.Context, userID int64) flow.State {
	sess, err := c.store.GetSession(ctx, userID)
	if err != nil {
		return nil
	}
	s, err := flow.Decode(sess.ConversationState)
	if err != nil {
		return nil
	}
	return s
}

// fail clears any active flow and tells the user what failed, why, and
// what to do next. Raw causes go to the log only.
func (c *Controller) fail(ctx context.Context, ch *chat, action string, err error) {
	if ch.state != nil {
		c.saveState(ctx, ch, nil)
	}

	why, next := tr(ch.lang, "error_why"), tr(ch.lang, "error_next")
	if e, ok := apperr.As(err); ok {
		why, next = e.Msg, e.NextStep()
		log.Warn().Err(err).Int64("user_id", ch.u.UserID).Str("kind", e.Kind.String()).Str("action", action).Msg("⚠️ Action failed")
	} else {
		log.Error().Err(err).Int64("user_id", ch.u.UserID).Str("action", action).Msg("❌ Action failed")
	}

	text := tr(ch.lang, "error", tr(ch.lang, "act_"+action), escapeMarkdown(why), escapeMarkdown(next))
	c.send(ch.u.ChatID, Message{Text: text, Markdown: true})
}

func (c *Controller) expired(ctx context.Context, ch *chat) {
	c.fail(ctx, ch, "flow", apperr.New(apperr.KindStateExpired, "flow", "this step is no longer active"))
}

func (c *Controller) send(chatID int64, msg Message) {
	if err := c.out.Send(chatID, msg); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func keyboard(k tgbotapi.InlineKeyboardMarkup) *tgbotapi.InlineKeyboardMarkup {
	return &k
}

// parseCommand splits "/cmd@bot a b" into "cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

func isCommand(text, name string) bool {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return false
	}
	cmd, _ := parseCommand(text)
	return cmd == name
}

func firstArg(args []string, def string) string {
	if len(args) == 0 {
		return def
	}
	return args[0]
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}

type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

// lock blocks until the user's lock is free and returns its release.
// Entries are dropped once nobody holds or waits for them.
func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

// exportGate remembers which users were shown the export warning. A
// confirmation is accepted once and only before it expires.
type exportGate struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[int64]time.Time
}

func newExportGate(ttl time.Duration, now func() time.Time) *exportGate {
	return &exportGate{ttl: ttl, now: now, pending: make(map[int64]time.Time)}
}

func (g *exportGate) arm(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.sweep(now)
	g.pending[userID] = now.Add(g.ttl)
}

func (g *exportGate) consume(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	deadline, ok := g.pending[userID]
	delete(g.pending, userID)
	g.sweep(now)
	return ok && now.Before(deadline)
}

// sweep drops expired entries. Callers hold mu.
func (g *exportGate) sweep(now time.Time) {
	for id, deadline := range g.pending {
		if !now.Before(deadline) {
			delete(g.pending, id)
		}
	}
}
