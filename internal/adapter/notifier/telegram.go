package notifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/semmidev/mongosnap/internal/config"
	"github.com/semmidev/mongosnap/internal/domain"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts a run summary to a chat, for successes and failures alike.
type Telegram struct {
	bot    botAPI
	chatID int64
	label  string
}

var _ domain.Notifier = (*Telegram)(nil)

func NewTelegram(cfg *config.TelegramConfig, label string) (*Telegram, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{bot: bot, chatID: chatID, label: label}, nil
}

func (t *Telegram) Notify(ctx context.Context, report domain.RunReport) error {
	msg := tgbotapi.NewMessage(t.chatID, t.format(report))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func (t *Telegram) format(report domain.RunReport) string {
	if !report.Success {
		return fmt.Sprintf(
			"❌ Backup failed: %s\n\n"+
				"🕐 After: %s\n"+
				"💥 Error: %v",
			t.label,
			report.Duration.Round(time.Second),
			report.Err,
		)
	}

	return fmt.Sprintf(
		"✅ Backup completed: %s\n\n"+
			"📁 Archive: %s\n"+
			"📸 Snapshot: %s\n"+
			"🗑 Pruned: %d\n"+
			"🕐 Took: %s",
		t.label,
		report.Archive,
		report.SnapshotID,
		report.Pruned,
		report.Duration.Round(time.Second),
	)
}
