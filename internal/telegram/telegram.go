package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"landmatch/server/internal/database"
	"landmatch/server/internal/models"
)

const defaultAPIURL = "https://api.telegram.org"

var ErrNotConfigured = errors.New("telegram is not configured")

type Service struct {
	logger  *logrus.Logger
	client  *http.Client
	apiURL  string
	printer *message.Printer

	mu     sync.RWMutex
	config *models.TelegramConfig
	db     *database.Database
}

func NewService(logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiURL:  defaultAPIURL,
		printer: message.NewPrinter(language.Japanese),
	}
}

// SetAPIURL points the service at another Bot API host
func (s *Service) SetAPIURL(url string) {
	s.apiURL = strings.TrimRight(url, "/")
}

func (s *Service) UpdateConfig(config *models.TelegramConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
}

// WithConfig returns a copy of the service that sends with cfg, leaving s untouched
func (s *Service) WithConfig(cfg *models.TelegramConfig) *Service {
	return &Service{
		logger:  s.logger,
		client:  s.client,
		apiURL:  s.apiURL,
		printer: s.printer,
		config:  cfg,
		db:      s.db,
	}
}

func (s *Service) SetDatabase(db *database.Database) {
	s.db = db
}

func (s *Service) currentConfig() *models.TelegramConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// SendMessage sends an HTML message to the configured chat. It is a no-op while
// notifications are disabled.
func (s *Service) SendMessage(ctx context.Context, text string) error {
	cfg := s.currentConfig()
	if cfg == nil {
		return ErrNotConfigured
	}
	if !cfg.IsEnabled {
		return nil
	}
	if cfg.BotToken == "" {
		return errors.New("telegram bot token is not configured")
	}
	if cfg.ChatID == "" {
		return errors.New("telegram chat ID is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, cfg.BotToken)
	payload := map[string]interface{}{
		"chat_id":                  cfg.ChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found - please check your token from @BotFather")
		default:
			return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	return nil
}

// FormatMatch renders a match alert. property may be nil when the listing has
// been removed since scoring.
func (s *Service) FormatMatch(result models.MatchResult, property *models.LandProperty) string {
	var b strings.Builder

	icon := "🔔"
	if result.AlertLevel == models.AlertHigh {
		icon = "🏡"
	}
	fmt.Fprintf(&b, "<b>%s 土地マッチ %d点 [%s]</b>\n\n", icon, result.MatchScore, strings.ToUpper(string(result.AlertLevel)))
	fmt.Fprintf(&b, "👤 顧客: %s\n", html.EscapeString(result.CustomerID))

	if property != nil {
		name := property.Name
		if name == "" {
			name = property.ID
		}
		fmt.Fprintf(&b, "🏠 %s\n", html.EscapeString(name))
		if property.Address != "" {
			fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(property.Address))
		}
		b.WriteString(s.printer.Sprintf("💰 %d万円", property.Price))
		if property.PricePerTsubo > 0 {
			b.WriteString(s.printer.Sprintf(" (坪単価 %.1f万円)", property.PricePerTsubo))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "📐 %.1f坪\n", property.LandArea)
		if property.NearestStation != "" {
			fmt.Fprintf(&b, "🚉 %s 徒歩%d分\n", html.EscapeString(property.NearestStation), property.StationDistance)
		}
	} else {
		fmt.Fprintf(&b, "🏠 %s\n", html.EscapeString(result.PropertyID))
	}

	if len(result.MatchDetails) > 0 {
		b.WriteString("\n")
		for _, d := range result.MatchDetails {
			mark := "✅"
			if d.Score < d.MaxScore {
				mark = "➖"
			}
			if d.Score == 0 {
				mark = "❌"
			}
			fmt.Fprintf(&b, "%s %s %.1f/%.0f %s\n", mark, d.Label, d.Score, d.MaxScore, html.EscapeString(d.Reason))
		}
	}

	if property != nil && property.SourceURL != "" {
		fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">物件ページを開く</a>", html.EscapeString(property.SourceURL))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NotifyMatch sends one alert if the configured minimum level allows it
func (s *Service) NotifyMatch(ctx context.Context, result models.MatchResult, property *models.LandProperty) (bool, error) {
	if !s.currentConfig().ShouldNotify(result.AlertLevel) {
		return false, nil
	}
	if err := s.SendMessage(ctx, s.FormatMatch(result, property)); err != nil {
		return false, err
	}
	return true, nil
}

// DispatchPending sends alerts for cached matches that have not been notified yet
// and marks them. It stops at the first delivery failure so the remaining matches
// are retried on the next run.
func (s *Service) DispatchPending(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, errors.New("database connection not initialized")
	}
	cfg := s.currentConfig()
	if cfg == nil || !cfg.IsEnabled {
		return 0, nil
	}

	levels := []models.AlertLevel{models.AlertHigh}
	if cfg.ShouldNotify(models.AlertMedium) {
		levels = append(levels, models.AlertMedium)
	}

	pending, err := s.db.ListUnnotifiedMatches(levels...)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, match := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		property, err := s.db.GetProperty(match.PropertyID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return sent, err
		}
		if property != nil && !property.IsAvailable() {
			continue
		}

		ok, err := s.NotifyMatch(ctx, match.ToResult(), property)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"customer_id": match.CustomerID,
				"property_id": match.PropertyID,
			}).Error("Failed to send match alert")
			return sent, err
		}
		if !ok {
			continue
		}
		if err := s.db.MarkNotified(match.ID, time.Now()); err != nil {
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		s.logger.WithField("count", sent).Info("Sent match alerts")
	}
	return sent, nil
}
