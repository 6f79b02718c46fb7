package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Updates starts long polling for messages and stops it once ctx is done,
// which closes the returned channel.
func Updates(ctx context.Context, api *tgbotapi.BotAPI, timeout time.Duration) tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(timeout / time.Second)
	cfg.AllowedUpdates = []string{"message"}
	ch := api.GetUpdatesChan(cfg)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()
	return ch
}
