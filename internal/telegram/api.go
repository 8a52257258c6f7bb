package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// sender is the slice of the Telegram client the bot uses for outbound
// delivery. Tests swap in a fake to capture replies without the network.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// apiSender delivers through the live Telegram client.
type apiSender struct{ api *tgbotapi.BotAPI }

func (s apiSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.api.Send(c)
}
