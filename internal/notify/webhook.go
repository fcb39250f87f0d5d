// Package notify posts Discord/Telegram-shaped webhooks for node-operator
// visibility into sortition wins and burnchain reorgs.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btczs/btczs-l2/internal/l2addr"
	"github.com/btczs/btczs-l2/internal/util"
)

// WebhookConfig holds webhook configuration.
type WebhookConfig struct {
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
	Enabled      bool   `mapstructure:"enabled"`
	NodeName     string `mapstructure:"node_name"`
	NodeURL      string `mapstructure:"node_url"`
}

// Retry configuration.
const (
	MaxRetries     = 3
	RetryBaseDelay = 2 * time.Second
)

// Notifier sends Discord and Telegram notifications for engine events.
type Notifier struct {
	cfg    *WebhookConfig
	client *http.Client
}

// NewNotifier creates a new notifier.
func NewNotifier(cfg *WebhookConfig) *Notifier {
	return &Notifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifySortitionWin sends notifications when a leader commit wins
// sortition at height. It satisfies engine.Notifier.
func (n *Notifier) NotifySortitionWin(height uint64, winner l2addr.RewardAddress, reward uint64) {
	if !n.cfg.Enabled {
		return
	}

	if n.cfg.DiscordURL != "" {
		go n.sendDiscordSortitionWin(height, winner, reward)
	}

	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		go n.sendTelegramSortitionWin(height, winner, reward)
	}
}

// NotifyReorgDetected sends notifications when the burnchain's parent
// hash no longer matches the persisted snapshot at the prior height. It
// satisfies engine.Notifier.
func (n *Notifier) NotifyReorgDetected(height uint64, expectedParent, actualParent [32]byte) {
	if !n.cfg.Enabled {
		return
	}

	if n.cfg.DiscordURL != "" {
		go n.sendDiscordReorgDetected(height, expectedParent, actualParent)
	}

	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		go n.sendTelegramReorgDetected(height, expectedParent, actualParent)
	}
}

// DiscordEmbed represents a Discord embed object.
type DiscordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []DiscordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
}

// DiscordField represents a field in a Discord embed.
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordFooter represents the footer of a Discord embed.
type DiscordFooter struct {
	Text string `json:"text"`
}

// DiscordMessage represents a Discord webhook message.
type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// sendDiscordSortitionWin sends a sortition-win notification to Discord.
func (n *Notifier) sendDiscordSortitionWin(height uint64, winner l2addr.RewardAddress, reward uint64) {
	rewardTokens := float64(reward) / 1e6

	embed := DiscordEmbed{
		Title:       "Sortition Won",
		Description: fmt.Sprintf("**%s** anchored a new L2 block", n.cfg.NodeName),
		Color:       0x00FF00, // green
		Fields: []DiscordField{
			{Name: "Height", Value: fmt.Sprintf("%d", height), Inline: true},
			{Name: "Reward", Value: fmt.Sprintf("%.6f", rewardTokens), Inline: true},
			{Name: "Winner", Value: truncateAddress(winner.String()), Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.NodeName},
	}

	if n.cfg.NodeURL != "" {
		embed.URL = n.cfg.NodeURL
	}

	n.sendDiscordMessage(DiscordMessage{Embeds: []DiscordEmbed{embed}})
}

// sendDiscordReorgDetected sends a reorg-detected notification to Discord.
func (n *Notifier) sendDiscordReorgDetected(height uint64, expectedParent, actualParent [32]byte) {
	embed := DiscordEmbed{
		Title:       "Burnchain Reorg Detected",
		Description: fmt.Sprintf("**%s** saw a parent-hash mismatch at height %d", n.cfg.NodeName, height),
		Color:       0xFF0000, // red
		Fields: []DiscordField{
			{Name: "Height", Value: fmt.Sprintf("%d", height), Inline: true},
			{Name: "Expected Parent", Value: truncateHash(expectedParent), Inline: false},
			{Name: "Actual Parent", Value: truncateHash(actualParent), Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.NodeName},
	}

	n.sendDiscordMessageWithRetry(embed.asMessage())
}

func (e DiscordEmbed) asMessage() DiscordMessage {
	return DiscordMessage{Embeds: []DiscordEmbed{e}}
}

// sendDiscordMessage sends a message to Discord webhook, with the same
// exponential backoff retry as sendDiscordMessageWithRetry.
func (n *Notifier) sendDiscordMessage(msg DiscordMessage) {
	n.sendDiscordMessageWithRetry(msg)
}

// sendDiscordMessageWithRetry sends a message to Discord with exponential
// backoff retry.
func (n *Notifier) sendDiscordMessageWithRetry(msg DiscordMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("failed to marshal Discord message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			delay := RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
		}

		resp, err := n.client.Post(n.cfg.DiscordURL, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}

		resp.Body.Close()

		if resp.StatusCode < 400 {
			return // success
		}

		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}

		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("failed to send Discord notification after %d retries: %v", MaxRetries, lastErr)
	}
}

// TelegramMessage represents a Telegram bot message.
type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// sendTelegramSortitionWin sends a sortition-win notification to Telegram.
func (n *Notifier) sendTelegramSortitionWin(height uint64, winner l2addr.RewardAddress, reward uint64) {
	rewardTokens := float64(reward) / 1e6

	text := fmt.Sprintf(
		"*Sortition Won*\n\n"+
			"Height: `%d`\n"+
			"Reward: `%.6f`\n"+
			"Winner: `%s`",
		height, rewardTokens, truncateAddress(winner.String()),
	)

	n.sendTelegramMessage(text)
}

// sendTelegramReorgDetected sends a reorg-detected notification to Telegram.
func (n *Notifier) sendTelegramReorgDetected(height uint64, expectedParent, actualParent [32]byte) {
	text := fmt.Sprintf(
		"*Burnchain Reorg Detected*\n\n"+
			"Height: `%d`\n"+
			"Expected Parent: `%s`\n"+
			"Actual Parent: `%s`",
		height, truncateHash(expectedParent), truncateHash(actualParent),
	)

	n.sendTelegramMessageWithRetry(text)
}

// sendTelegramMessage sends a message via the Telegram Bot API, with the
// same exponential backoff retry as sendTelegramMessageWithRetry.
func (n *Notifier) sendTelegramMessage(text string) {
	n.sendTelegramMessageWithRetry(text)
}

// sendTelegramMessageWithRetry sends a message via Telegram with
// exponential backoff retry.
func (n *Notifier) sendTelegramMessageWithRetry(text string) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.TelegramBot)

	msg := TelegramMessage{
		ChatID:    n.cfg.TelegramChat,
		Text:      text,
		ParseMode: "Markdown",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("failed to marshal Telegram message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			delay := RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
		}

		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}

		resp.Body.Close()

		if resp.StatusCode < 400 {
			return // success
		}

		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}

		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("failed to send Telegram notification after %d retries: %v", MaxRetries, lastErr)
	}
}

// truncateAddress returns a shortened address for display.
func truncateAddress(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-6:]
}

// truncateHash returns a shortened hex hash for display.
func truncateHash(hash [32]byte) string {
	s := fmt.Sprintf("%x", hash)
	return s[:10] + "..." + s[len(s)-8:]
}
