package bot

import "fmt"

const (
	langEN = "en"
	langZH = "zh"
)

// messages holds every user-facing text. A key missing from a language
// falls back to English.
var messages = map[string]map[string]string{
	langEN: {
		"setting_up":   "⏳ Setting up your wallet and exchange account...",
		"welcome_new":  "🎉 *Welcome to AsterBot!*\n\nYour trading wallet is ready:\n`%s`\n\nSend USDT (BEP-20) and a little BNB for gas to this address, then use /deposit to move funds to the exchange.",
		"welcome_back": "👋 *Welcome back!*\n\nWallet: `%s`",
		"menu":         "🏠 *Main Menu*\n\nChoose an action below or use commands directly:",
		"help": "📚 *AsterBot Commands*\n\n" +
			"*💰 Account:*\n/balance - Wallet, spot and futures balances\n/deposit <amount> - Send USDT to the exchange\n/transfer <amount> [asset] - Move spot funds to futures\n/export - Show your private key\n\n" +
			"*📈 Trading:*\n/long - Open a long position\n/short - Open a short position\n/positions [symbol] - Open positions\n/close - Close a position\n/history - Recent trades\n\n" +
			"*📊 Market:*\n/markets - Browse markets\n/price <symbol> - 24h ticker\n\n" +
			"*⚙️ Other:*\n/menu - Main menu\n/language - Change language\n/cancel - Cancel the current action",
		"need_start":      "Please use /start first to set up your account.",
		"cancelled":       "❌ Cancelled.",
		"unknown_command": "❓ Unknown command. Use /help for available commands.",

		"fetching_balances": "⏳ Fetching your balances...",
		"balance": "💰 *Your Balances*\nAddress: `%s`\n\n" +
			"*On-Chain Wallet:*\n  • `%s BNB`\n  • `%s USDT`\n\n" +
			"*Spot Account:*\n%s\n" +
			"*Futures Account:*\n  • Available: `%s USDT`\n  • Total margin: `%s USDT`",
		"balance_row": "  • `%s %s`\n",

		"no_positions":     "No open positions found.",
		"positions_header": "📊 *Your Positions*\n\n",
		"position_row":     "%s *%s* %s\nSize: %s | Leverage: %dx\nEntry: $%s | Mark: $%s\nPnL: %s\n\n",
		"close_none":       "No open positions to close.",
		"close_select":     "🔒 *Close Position*\n\nSelect the position to close:",
		"closed":           "✅ *Position closed*\n\n%s\nOrder ID: `%s`",

		"select_long":     "📈 *Open Long Position*\n\nSelect the asset (%d-%d of %d):",
		"select_short":    "📉 *Open Short Position*\n\nSelect the asset (%d-%d of %d):",
		"select_browse":   "📋 *Markets*\n\nShowing %d-%d of %d. Tap a market for its price.",
		"no_markets":      "No markets are available right now.",
		"page_info":       "Page %d/%d",
		"enter_size":      "💵 *%s %s*\n\nEnter the position size in USDT (e.g. `100`):",
		"invalid_size":    "⚠️ Please enter a positive number, e.g. `100`.",
		"select_leverage": "⚖️ *%s* · %s USDT\n\nSelect leverage (max %dx):",
		"invalid_lev":     "⚠️ Pick one of the leverage buttons.",
		"confirm":         "🧾 *Confirm Trade*\n\n%s *%s*\nSize: %s USDT\nLeverage: %dx\n\nPlace this order?",
		"placing":         "⏳ Placing your order...",
		"order_placed":    "✅ *Order placed*\n\n%s *%s*\nSize: %s USDT · %dx\nQuantity: %s\nOrder ID: `%s`",
		"trade_cancelled": "❌ Trade cancelled.",
		"use_buttons":     "👆 Use the buttons above to continue, or /cancel.",

		"price": "📊 *%s*\n\nCurrent: $%s\n24h Change: %s%%\n24h High: $%s\n24h Low: $%s\nVolume: %s",

		"deposit_prompt":  "💸 Enter the amount of USDT to deposit (e.g. `50`):",
		"depositing":      "⏳ Depositing %s USDT to the exchange. Waiting for the on-chain confirmation...",
		"deposit_sent":    "✅ *Deposit confirmed*\nFunds should appear in your futures account in a few minutes.\n\nTx: `%s`",
		"transfer_prompt": "🔄 Enter the amount of %s to move from spot to futures (e.g. `25`):",
		"transfer_done":   "✅ Moved %s %s from spot to futures.\nTransfer ID: `%s`",

		"export_warning": "⚠️ *SECURITY WARNING* ⚠️\n\nYou are about to view your wallet's private key.\n\n" +
			"• *NEVER* share this key with anyone.\n• Anyone with this key has full and irreversible control over the funds in this wallet.\n• Import it into a self-custodial wallet and delete the message.\n\nDo you wish to proceed?",
		"export_key":       "🔑 *Your private key*\n\n`%s`\n\nDelete this message once the key is stored safely.",
		"export_cancelled": "✅ Export cancelled. Your key was not shown.",
		"export_expired":   "This export request has expired. Use /export again.",

		"language_prompt": "🌐 Choose your language:",
		"language_set":    "✅ Language set to English.",

		"history_empty":  "No trades yet.",
		"history_header": "📜 *Recent Trades*\n\n",
		"history_row":    "%s %s %s · %s USDT · %s\n",

		"error":      "❌ *%s failed*\n%s\n👉 %s",
		"error_why":  "Something went wrong on our side.",
		"error_next": "Try again in a moment.",

		"act_start":     "Account setup",
		"act_balance":   "Balance check",
		"act_markets":   "Market list",
		"act_price":     "Price lookup",
		"act_trade":     "Order",
		"act_close":     "Close position",
		"act_positions": "Positions lookup",
		"act_deposit":   "Deposit",
		"act_transfer":  "Transfer",
		"act_export":    "Key export",
		"act_history":   "History lookup",
		"act_flow":      "Action",

		"btn_balance":   "💰 Balance",
		"btn_positions": "📊 Positions",
		"btn_long":      "📈 Long",
		"btn_short":     "📉 Short",
		"btn_deposit":   "💸 Deposit",
		"btn_transfer":  "🔄 Transfer",
		"btn_markets":   "📋 Markets",
		"btn_close":     "❌ Close Position",
		"btn_export":    "🔑 Export Key",
		"btn_language":  "🌐 Language",
		"btn_back":      "🔙 Back to Menu",
		"btn_prev":      "⬅️ Previous",
		"btn_next":      "Next ➡️",
		"btn_confirm":   "✅ Confirm Trade",
		"btn_cancel":    "❌ Cancel",
		"btn_export_ok": "✅ Yes, export my key",
		"side_long":     "🟢 LONG",
		"side_short":    "🔴 SHORT",
	},
	langZH: {
		"setting_up":      "⏳ 正在创建钱包和交易所账户...",
		"welcome_new":     "🎉 *欢迎使用 AsterBot!*\n\n你的交易钱包已创建:\n`%s`\n\n请向该地址转入 USDT (BEP-20) 和少量 BNB 作为手续费, 然后使用 /deposit 充值到交易所。",
		"welcome_back":    "👋 *欢迎回来!*\n\n钱包: `%s`",
		"menu":            "🏠 *主菜单*\n\n请选择下方操作或直接使用命令:",
		"need_start":      "请先使用 /start 创建账户。",
		"cancelled":       "❌ 已取消。",
		"unknown_command": "❓ 未知命令, 使用 /help 查看可用命令。",

		"fetching_balances": "⏳ 正在查询余额...",
		"no_positions":      "没有持仓。",
		"positions_header":  "📊 *你的持仓*\n\n",
		"close_none":        "没有可平仓的持仓。",
		"close_select":      "🔒 *平仓*\n\n请选择要平仓的持仓:",
		"closed":            "✅ *已平仓*\n\n%s\n订单号: `%s`",

		"select_long":     "📈 *开多*\n\n请选择币种 (%d-%d / 共 %d):",
		"select_short":    "📉 *开空*\n\n请选择币种 (%d-%d / 共 %d):",
		"select_browse":   "📋 *市场*\n\n显示 %d-%d / 共 %d。点击查看价格。",
		"no_markets":      "当前没有可交易的市场。",
		"page_info":       "第 %d/%d 页",
		"enter_size":      "💵 *%s %s*\n\n请输入仓位大小 (USDT, 例如 `100`):",
		"invalid_size":    "⚠️ 请输入正数, 例如 `100`。",
		"select_leverage": "⚖️ *%s* · %s USDT\n\n请选择杠杆 (最高 %dx):",
		"invalid_lev":     "⚠️ 请点击杠杆按钮选择。",
		"confirm":         "🧾 *确认交易*\n\n%s *%s*\n仓位: %s USDT\n杠杆: %dx\n\n确认下单?",
		"placing":         "⏳ 正在下单...",
		"order_placed":    "✅ *下单成功*\n\n%s *%s*\n仓位: %s USDT · %dx\n数量: %s\n订单号: `%s`",
		"trade_cancelled": "❌ 交易已取消。",
		"use_buttons":     "👆 请使用上方按钮继续, 或 /cancel 取消。",

		"deposit_prompt":  "💸 请输入充值的 USDT 数量 (例如 `50`):",
		"depositing":      "⏳ 正在充值 %s USDT 到交易所, 等待链上确认...",
		"deposit_sent":    "✅ *充值已确认*\n资金将在几分钟内到达合约账户。\n\n交易哈希: `%s`",
		"transfer_prompt": "🔄 请输入从现货划转到合约的 %s 数量 (例如 `25`):",
		"transfer_done":   "✅ 已从现货划转 %s %s 到合约。\n划转 ID: `%s`",

		"export_key":       "🔑 *你的私钥*\n\n`%s`\n\n妥善保存后请删除此消息。",
		"export_cancelled": "✅ 已取消导出, 私钥未显示。",
		"export_expired":   "导出请求已过期, 请重新使用 /export。",

		"language_prompt": "🌐 请选择语言:",
		"language_set":    "✅ 语言已设置为中文。",

		"history_empty":  "暂无交易记录。",
		"history_header": "📜 *最近交易*\n\n",

		"error":      "❌ *%s失败*\n%s\n👉 %s",
		"error_why":  "系统出现错误。",
		"error_next": "请稍后重试。",

		"act_start":     "账户创建",
		"act_balance":   "余额查询",
		"act_markets":   "市场列表",
		"act_price":     "价格查询",
		"act_trade":     "下单",
		"act_close":     "平仓",
		"act_positions": "持仓查询",
		"act_deposit":   "充值",
		"act_transfer":  "划转",
		"act_export":    "私钥导出",
		"act_history":   "记录查询",
		"act_flow":      "操作",

		"btn_balance":   "💰 余额",
		"btn_positions": "📊 持仓",
		"btn_long":      "📈 开多",
		"btn_short":     "📉 开空",
		"btn_deposit":   "💸 充值",
		"btn_transfer":  "🔄 划转",
		"btn_markets":   "📋 市场",
		"btn_close":     "❌ 平仓",
		"btn_export":    "🔑 导出私钥",
		"btn_language":  "🌐 语言",
		"btn_back":      "🔙 返回菜单",
		"btn_prev":      "⬅️ 上一页",
		"btn_next":      "下一页 ➡️",
		"btn_confirm":   "✅ 确认交易",
		"btn_cancel":    "❌ 取消",
		"btn_export_ok": "✅ 确认导出",
		"side_long":     "🟢 多",
		"side_short":    "🔴 空",
	},
}

func normalizeLang(lang string) string {
	if _, ok := messages[lang]; ok {
		return lang
	}
	return langEN
}

// tr formats the message key in lang.
func tr(lang, key string, args ...interface{}) string {
	text, ok := messages[normalizeLang(lang)][key]
	if !ok {
		text, ok = messages[langEN][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}
