package bot

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/web3guy0/asterbot/internal/aster"
	"github.com/web3guy0/asterbot/internal/flow"
)

// Callback data
const (
	cbMenuPrefix   = "menu_"
	cbBackToMenu   = "back_to_menu"
	cbSelectAsset  = "select_asset_"
	cbMarketsPage  = "markets_page_"
	cbMarketsInfo  = "markets_info"
	cbLeverage     = "leverage_"
	cbConfirmTrade = "confirm_trade"
	cbCancelTrade  = "cancel_trade"
	cbClose        = "close_"
	cbExportYes    = "export_confirm_yes"
	cbExportNo     = "export_confirm_no"
	cbLangPrefix   = "lang_"
)

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func menuKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button(tr(lang, "btn_balance"), cbMenuPrefix+"balance"),
			button(tr(lang, "btn_positions"), cbMenuPrefix+"positions"),
		),
		tgbotapi.NewInlineKeyboardRow(
			button(tr(lang, "btn_long"), cbMenuPrefix+"long"),
			button(tr(lang, "btn_short"), cbMenuPrefix+"short"),
		),
		tgbotapi.NewInlineKeyboardRow(
			button(tr(lang, "btn_deposit"), cbMenuPrefix+"deposit"),
			button(tr(lang, "btn_transfer"), cbMenuPrefix+"transfer"),
		),
		tgbotapi.NewInlineKeyboardRow(
			button(tr(lang, "btn_markets"), cbMenuPrefix+"markets"),
			button(tr(lang, "btn_close"), cbMenuPrefix+"close"),
		),
		tgbotapi.NewInlineKeyboardRow(
			button(tr(lang, "btn_export"), cbMenuPrefix+"export"),
			button(tr(lang, "btn_language"), cbMenuPrefix+"language"),
		),
	)
}

// marketsKeyboard lays out one page of symbols in rows of perRow, then
// the page navigation and the back button.
func marketsKeyboard(lang string, s flow.SelectAsset, perPage, perRow int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	items := s.PageItems(perPage)
	for i := 0; i < len(items); i += perRow {
		end := i + perRow
		if end > len(items) {
			end = len(items)
		}
		var row []tgbotapi.InlineKeyboardButton
		for _, symbol := range items[i:end] {
			row = append(row, button(symbol, cbSelectAsset+symbol))
		}
		rows = append(rows, row)
	}

	if pages := s.Pages(perPage); pages > 1 {
		var nav []tgbotapi.InlineKeyboardButton
		if s.Page > 0 {
			nav = append(nav, button(tr(lang, "btn_prev"), cbMarketsPage+strconv.Itoa(s.Page-1)))
		}
		nav = append(nav, button(tr(lang, "page_info", s.Page+1, pages), cbMarketsInfo))
		if s.Page < pages-1 {
			nav = append(nav, button(tr(lang, "btn_next"), cbMarketsPage+strconv.Itoa(s.Page+1)))
		}
		rows = append(rows, nav)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(tr(lang, "btn_back"), cbBackToMenu)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func leverageKeyboard(lang string, options []int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, lev := range options {
		row = append(row, button(fmt.Sprintf("%dx", lev), cbLeverage+strconv.Itoa(lev)))
		if len(row) == 5 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(tr(lang, "btn_cancel"), cbCancelTrade)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button(tr(lang, "btn_confirm"), cbConfirmTrade),
			button(tr(lang, "btn_cancel"), cbCancelTrade),
		),
	)
}

func closeKeyboard(positions []aster.Position) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range positions {
		label := fmt.Sprintf("%s (%s)", p.Symbol, p.Amount.String())
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(label, cbClose+p.Symbol)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func exportKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button(tr(lang, "btn_export_ok"), cbExportYes),
			button(tr(lang, "btn_cancel"), cbExportNo),
		),
	)
}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button("🇬🇧 English", cbLangPrefix+langEN),
			button("🇨🇳 中文", cbLangPrefix+langZH),
		),
	)
}
