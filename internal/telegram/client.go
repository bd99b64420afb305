// Package telegram sends operator alerts via the Telegram Bot API.
// It formats autokeys submission failures and catalog outage/recovery events into
// MarkdownV2 messages and delivers them with retry logic.
package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/skupricer/internal/models"
)

// sender is the part of *tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	now            func() time.Time
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		now:            time.Now,
	}, nil
}

// AlertSubmissionFailure reports a key price-list entry that could not be stored.
func (c *Client) AlertSubmissionFailure(entry models.PriceListEntry, err error) error {
	return c.send(formatSubmissionFailure(entry, err, c.now()))
}

// AlertCatalogOutage reports a failed catalog fetch. stale is the age of the snapshot
// still being served, or zero when there is none.
func (c *Client) AlertCatalogOutage(err error, consecutive int, stale time.Duration) error {
	return c.send(formatOutage(err, consecutive, stale, c.now()))
}

// AlertCatalogRecovered reports the first successful fetch after an outage.
func (c *Client) AlertCatalogRecovered(failures, entries int) error {
	return c.send(formatRecovery(failures, entries, c.now()))
}

func (c *Client) send(message string) error {
	if c == nil || c.bot == nil {
		return errors.New("telegram client not configured")
	}

	msg := tgbotapi.NewMessage(c.chatID, message)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func formatSubmissionFailure(entry models.PriceListEntry, err error, at time.Time) string {
	var b strings.Builder
	b.WriteString("🔑 *Autokeys submission failed*\n\n")
	fmt.Fprintf(&b, "📅 %s\n", escapeMarkdownV2(at.UTC().Format("2006-01-02 15:04:05")))
	fmt.Fprintf(&b, "SKU: `%s`\n", escapeMarkdownV2(entry.SKU))
	fmt.Fprintf(&b, "Intent: %s \\(min %d, max %d\\)\n", escapeMarkdownV2(entry.Intent.String()), entry.Min, entry.Max)
	if !entry.Buy.Metal.IsZero() || !entry.Sell.Metal.IsZero() {
		fmt.Fprintf(&b, "Price: %s / %s ref\n",
			escapeMarkdownV2(entry.Buy.Metal.String()), escapeMarkdownV2(entry.Sell.Metal.String()))
	}
	fmt.Fprintf(&b, "Error: %s\n", escapeMarkdownV2(errorText(err)))
	return b.String()
}

func formatOutage(err error, consecutive int, stale time.Duration, at time.Time) string {
	var b strings.Builder
	b.WriteString("🚨 *Catalog fetch failed*\n\n")
	fmt.Fprintf(&b, "📅 %s\n", escapeMarkdownV2(at.UTC().Format("2006-01-02 15:04:05")))
	fmt.Fprintf(&b, "Consecutive failures: %d\n", consecutive)
	if stale > 0 {
		fmt.Fprintf(&b, "⏱ Serving stale catalog, age %s\n", escapeMarkdownV2(formatDuration(stale)))
	} else {
		b.WriteString("No catalog available, prices cannot be served\n")
	}
	fmt.Fprintf(&b, "Error: %s\n", escapeMarkdownV2(errorText(err)))
	return b.String()
}

func formatRecovery(failures, entries int, at time.Time) string {
	var b strings.Builder
	b.WriteString("✅ *Catalog recovered*\n\n")
	fmt.Fprintf(&b, "📅 %s\n", escapeMarkdownV2(at.UTC().Format("2006-01-02 15:04:05")))
	fmt.Fprintf(&b, "Failed fetches before recovery: %d\n", failures)
	fmt.Fprintf(&b, "Items loaded: %d\n", entries)
	return b.String()
}

func errorText(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! and the escape character itself
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if hours := int(d.Hours()); hours >= 1 {
		if mins := int(d.Minutes()) % 60; mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	if mins := int(d.Minutes()); mins >= 1 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
