package notify

import (
	"context"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/events"
	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

// Sender is the part of the bot API used to push messages.
type Sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram - пассивный нотифайер: пересылает события позиций в чат.
type Telegram struct {
	sender Sender
	chatID int64
	logger *zap.Logger
}

func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramWithSender(b, chatID, logger), nil
}

func NewTelegramWithSender(sender Sender, chatID int64, logger *zap.Logger) *Telegram {
	return &Telegram{
		sender: sender,
		chatID: chatID,
		logger: logger.Named("telegram"),
	}
}

// Handle implements events.Handler.
func (t *Telegram) Handle(_ context.Context, e events.PositionEvent) error {
	return t.Send(Format(e))
}

func (t *Telegram) Send(text string) error {
	if t == nil || t.sender == nil || t.chatID == 0 || text == "" {
		return nil
	}
	msg := tgbot.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.sender.Send(msg); err != nil {
		t.logger.Warn("Failed to send notification", zap.Error(err))
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Format renders a position event as a chat message.
func Format(e events.PositionEvent) string {
	var b strings.Builder
	switch e.Type {
	case events.PositionOpened:
		b.WriteString("🚀 Automatic trade executed!\n\n")
		fmt.Fprintf(&b, "Bought %.2f %s\n", e.Quantity, e.TokenSymbol)
		fmt.Fprintf(&b, "Price: $%.6f\n", e.EntryPrice)
		fmt.Fprintf(&b, "Amount: %g SOL\n", e.Amount)
		fmt.Fprintf(&b, "Stop loss: $%.6f\n", e.StopLoss)
		fmt.Fprintf(&b, "Take profit: $%.6f", e.TakeProfit)
		if e.URL != "" {
			fmt.Fprintf(&b, "\nView on DexScreener: %s", e.URL)
		}
	case events.PositionClosed:
		b.WriteString("💰 Automatic sell executed!\n\n")
		fmt.Fprintf(&b, "Sold %.2f %s\n", e.Quantity, e.TokenSymbol)
		fmt.Fprintf(&b, "Price: $%.6f\n", e.ExitPrice)
		fmt.Fprintf(&b, "Profit/Loss: %.2f%%\n", e.PnLPct)
		fmt.Fprintf(&b, "Received: %.4f SOL", e.Proceeds)
		if r := reasonText(e.Reason); r != "" {
			fmt.Fprintf(&b, "\nReason: %s", r)
		}
	}
	return b.String()
}

func reasonText(r types.CloseReason) string {
	switch r {
	case types.ReasonStopLoss:
		return "stop loss"
	case types.ReasonTakeProfit:
		return "take profit"
	case types.ReasonSuspiciousActivity:
		return "suspicious price drop"
	case types.ReasonManual:
		return "manual"
	}
	return ""
}
