package notify

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Telegram pushes trade alerts to a chat. All sends are best effort: a
// failed notification never fails the trade.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("💬 Telegram notifier connected")
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		log.Warn().Err(err).Msg("⚠️ Telegram send failed")
	}
}

// NotifyBuy announces an opened position.
func (t *Telegram) NotifyBuy(wallet, symbol string, token common.Address, txHash string, amountETH decimal.Decimal) {
	t.send(fmt.Sprintf(
		"🟢 *Bought %s* copying `%s`\nAmount: %s ETH\nToken: [%s](https://etherscan.io/token/%s)\nTx: [view](https://etherscan.io/tx/%s)",
		symbol, wallet, amountETH.String(), token.Hex(), token.Hex(), txHash,
	))
}

// NotifySell announces a closed position with its realized P/L.
func (t *Telegram) NotifySell(symbol string, token common.Address, txHash string, reason string, profitLoss decimal.Decimal) {
	emoji := "💰"
	if profitLoss.IsNegative() {
		emoji = "📉"
	}
	t.send(fmt.Sprintf(
		"🔴 *Sold %s* (%s)\n%s P/L: %s ETH\nTx: [view](https://etherscan.io/tx/%s)",
		symbol, reason, emoji, profitLoss.String(), txHash,
	))
}
