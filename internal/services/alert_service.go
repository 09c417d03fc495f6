package services

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AlertService pushes operational events to a Telegram chat: provider
// configuration problems that need human attention, and completed signups.
// A nil service or empty token deactivates it without ceremony.
type AlertService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewAlertService(botToken string, chatID int64) *AlertService {
	if botToken == "" || chatID == 0 {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		log.Printf("[alert][init] telegram unavailable: %v", err)
		return nil
	}
	return &AlertService{bot: bot, chatID: chatID}
}

// ProviderConfigAlert fires when the phone provider reports a setup-class
// error (bad API key, billing, quota). These block every signup.
func (a *AlertService) ProviderConfigAlert(tenant, detail string) {
	a.send(fmt.Sprintf("⚠️ phone provider config error (tenant=%s): %s", tenant, detail))
}

// SignupVerifiedAlert fires once both channels of a session verify.
func (a *AlertService) SignupVerifiedAlert(tenant, email string) {
	a.send(fmt.Sprintf("✅ signup verified (tenant=%s): %s", tenant, email))
}

func (a *AlertService) send(text string) {
	if a == nil || a.bot == nil {
		return
	}
	go func() {
		if _, err := a.bot.Send(tgbotapi.NewMessage(a.chatID, text)); err != nil {
			log.Printf("[alert][send] telegram: %v", err)
		}
	}()
}
