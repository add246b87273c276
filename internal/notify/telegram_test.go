package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/events"
	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

type fakeSender struct {
	sent []tgbot.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbot.Chattable) (tgbot.Message, error) {
	if msg, ok := c.(tgbot.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbot.Message{}, f.err
}

func TestFormatOpened(t *testing.T) {
	text := Format(events.PositionEvent{
		Type:        events.PositionOpened,
		TokenSymbol: "DOG",
		Quantity:    1234.5,
		EntryPrice:  0.0125,
		Amount:      0.5,
		StopLoss:    0.01125,
		TakeProfit:  0.01625,
		URL:         "https://dexscreener.com/solana/PAIR1",
	})

	for _, want := range []string{
		"Automatic trade executed!",
		"Bought 1234.50 DOG",
		"Price: $0.012500",
		"Amount: 0.5 SOL",
		"Stop loss: $0.011250",
		"Take profit: $0.016250",
		"View on DexScreener: https://dexscreener.com/solana/PAIR1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q:\n%s", want, text)
		}
	}
}

func TestFormatClosed(t *testing.T) {
	text := Format(events.PositionEvent{
		Type:        events.PositionClosed,
		TokenSymbol: "DOG",
		Quantity:    10,
		ExitPrice:   1.3,
		PnLPct:      30,
		Proceeds:    0.65,
		Reason:      types.ReasonTakeProfit,
	})

	for _, want := range []string{
		"Automatic sell executed!",
		"Sold 10.00 DOG",
		"Profit/Loss: 30.00%",
		"Received: 0.6500 SOL",
		"Reason: take profit",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q:\n%s", want, text)
		}
	}
}

func TestTelegramHandleSendsToChat(t *testing.T) {
	sender := &fakeSender{}
	tg := NewTelegramWithSender(sender, 42, zap.NewNop())

	if err := tg.Handle(context.Background(), events.PositionEvent{Type: events.PositionOpened, TokenSymbol: "DOG"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sent))
	}
	if sender.sent[0].ChatID != 42 {
		t.Errorf("ChatID = %d, want 42", sender.sent[0].ChatID)
	}
}

func TestTelegramWithoutChatIsNoop(t *testing.T) {
	sender := &fakeSender{}
	tg := NewTelegramWithSender(sender, 0, zap.NewNop())

	if err := tg.Send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("no message expected without chat id")
	}
}

func TestTelegramSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("forbidden")}
	tg := NewTelegramWithSender(sender, 42, zap.NewNop())

	if err := tg.Send("hello"); err == nil {
		t.Error("expected error from sender")
	}
}
