package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const telegramAPIBase = "https://api.telegram.org"

// ChatResolver returns the Telegram chat of a user, if they linked one
type ChatResolver func(userID uint) (chatID string, ok bool)

// TelegramSender delivers events as Telegram messages to the recipient's
// linked chat. Recipients without a chat are skipped.
type TelegramSender struct {
	logger   *logrus.Logger
	client   *http.Client
	botToken string
	baseURL  string
	resolve  ChatResolver
}

func NewTelegramSender(botToken string, resolve ChatResolver, logger *logrus.Logger) *TelegramSender {
	return &TelegramSender{
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		botToken: botToken,
		baseURL:  telegramAPIBase,
		resolve:  resolve,
	}
}

// Handle is a Queue handler
func (s *TelegramSender) Handle(event Event) error {
	chatID, ok := s.resolve(event.RecipientID)
	if !ok || chatID == "" {
		return nil
	}
	return s.SendMessage(chatID, formatEvent(event))
}

func formatEvent(event Event) string {
	return fmt.Sprintf("🏠 <b>%s</b>\n\n%s", html.EscapeString(string(event.Type)), html.EscapeString(event.Message))
}

// SendMessage sends a message to the given Telegram chat
func (s *TelegramSender) SendMessage(chatID, message string) error {
	if s.botToken == "" {
		return errors.New("Telegram bot token is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found")
		default:
			return fmt.Errorf("unexpected response from Telegram API (status %d): %s", resp.StatusCode, string(body))
		}
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode Telegram API response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("Telegram API error: %s", result.Description)
	}

	s.logger.WithField("chat_id", chatID).Debug("Sent Telegram notification")
	return nil
}
