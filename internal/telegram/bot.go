package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"ai-meal-plan-api/internal/config"
	"ai-meal-plan-api/internal/metrics"
	"ai-meal-plan-api/internal/planner"
	"ai-meal-plan-api/internal/query"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	planTimeout      = 5 * time.Minute
	maxMessageLength = 4096

	usageText = "👋 Send me what you'd like to eat and I'll plan it.\n\n" +
		"For example: \"5-day vegan meal plan, high-protein, quick meals\".\n\n" +
		"Commands:\n/last - show your most recent plan\n/metrics - model usage and system health"
	genericFailure = "❌ Failed to generate meal plan. Please try again."
)

// PlanGenerator is what the bot needs from the planner.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, q string) (*planner.MealPlanResponse, error)
}

// sender is the part of the Telegram API the bot writes through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot answers meal plan requests arriving on a Telegram webhook.
type Bot struct {
	out      sender
	plans    PlanGenerator
	history *planner.PlanRepository
	health  metrics.HealthSources
	allowed map[int64]bool
	logger  *zap.Logger

	// tracks in-flight messages so shutdown can wait for them
	wg sync.WaitGroup
}

// NewBot authorizes against the Telegram API and points its webhook at
// cfg.TelegramWebhookURL. history and health.Usage may be nil.
func NewBot(
	cfg *config.Config,
	plans PlanGenerator,
	history *planner.PlanRepository,
	health metrics.HealthSources,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger = logger.Named("telegram")
	logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("webhook set", zap.String("response", resp.Description))

	return newBot(api, plans, history, health, cfg.TelegramAllowedUserIDs, logger), nil
}

func newBot(out sender, plans PlanGenerator, history *planner.PlanRepository, health metrics.HealthSources, allowedIDs []int64, logger *zap.Logger) *Bot {
	allowed := make(map[int64]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}
	return &Bot{
		out:     out,
		plans:   plans,
		history: history,
		health:  health,
		allowed: allowed,
		logger:  logger,
	}
}

// Handler serves the webhook and a liveness check.
func (b *Bot) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook", b.handleWebhook)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return r
}

// Wait blocks until every accepted message has been answered.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.Warn("error parsing update", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// Telegram retries anything but a 2xx, so every parsed update is acknowledged.
	w.WriteHeader(http.StatusOK)

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.allowed[msg.From.ID] {
		b.logger.Warn("unauthorized access attempt", zap.Int64("user_id", msg.From.ID), zap.String("username", msg.From.UserName))
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processMessage(msg)
	}()
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.send(tgbotapi.NewMessage(msg.Chat.ID, usageText))
	case "metrics":
		b.handleMetricsCommand(msg.Chat.ID)
	case "last":
		b.handleLastCommand(msg)
	default:
		if strings.TrimSpace(msg.Text) == "" {
			b.send(tgbotapi.NewMessage(msg.Chat.ID, usageText))
			return
		}
		b.handlePlannerRequest(msg)
	}
}

func (b *Bot) handlePlannerRequest(msg *tgbotapi.Message) {
	sent, err := b.out.Send(tgbotapi.NewMessage(msg.Chat.ID, "🧑‍🍳 Thinking...\n(Planning your meals, this can take a minute)"))
	if err != nil {
		b.logger.Error("failed to send initial reply", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), planTimeout)
	defer cancel()

	userID := strconv.FormatInt(msg.From.ID, 10)
	b.logger.Info("generating plan", zap.String("user_id", userID), zap.String("request", msg.Text))

	plan, err := b.plans.GeneratePlan(ctx, msg.Text)
	if err != nil {
		text := genericFailure
		var extractionErr *query.ExtractionError
		if errors.As(err, &extractionErr) {
			text = "⚠️ Invalid request: " + extractionErr.Message
		} else {
			b.logger.Error("error generating plan", zap.String("user_id", userID), zap.Error(err))
		}
		b.send(tgbotapi.NewEditMessageText(msg.Chat.ID, sent.MessageID, text))
		return
	}

	if b.history != nil {
		if err := b.history.Save(ctx, userID, plan); err != nil {
			b.logger.Warn("failed to save meal plan to user history", zap.String("user_id", userID), zap.Error(err))
		}
	}
	b.sendPlan(msg.Chat.ID, sent.MessageID, plan)
}

func (b *Bot) handleLastCommand(msg *tgbotapi.Message) {
	if b.history == nil {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Plan history is not enabled."))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID := strconv.FormatInt(msg.From.ID, 10)
	plans, err := b.history.ListRecentByUserID(ctx, userID, 1)
	if err != nil {
		b.logger.Error("failed to load plan history", zap.String("user_id", userID), zap.Error(err))
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "❌ Error loading your last plan."))
		return
	}
	if len(plans) == 0 {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "You have no plans yet. Tell me what you'd like to eat!"))
		return
	}

	plan, err := plans[0].Decode()
	if err != nil {
		b.logger.Error("failed to decode stored plan", zap.Error(err))
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "❌ Error loading your last plan."))
		return
	}
	b.sendPlan(msg.Chat.ID, 0, plan)
}

// sendPlan replaces the placeholder message (when messageID is set) with
// the first chunk of the plan and sends the rest as new messages.
func (b *Bot) sendPlan(chatID int64, messageID int, plan *planner.MealPlanResponse) {
	for i, chunk := range splitMessage(FormatPlan(plan), maxMessageLength) {
		if i == 0 && messageID != 0 {
			b.send(tgbotapi.NewEditMessageText(chatID, messageID, chunk))
			continue
		}
		b.send(tgbotapi.NewMessage(chatID, chunk))
	}
}

func (b *Bot) handleMetricsCommand(chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("📊 Usage & Health Report\n\n")

	sb.WriteString("🗓 Recent LLM Activity\n")
	if b.health.Usage == nil {
		sb.WriteString("Usage ledger is disabled\n")
	} else {
		usage, err := b.health.Usage.GetDailyUsage(ctx, 7)
		if err != nil {
			b.logger.Error("failed to fetch usage", zap.Error(err))
			b.send(tgbotapi.NewMessage(chatID, "❌ Error fetching metrics."))
			return
		}
		if len(usage) == 0 {
			sb.WriteString("No data yet\n")
		}
		for _, d := range usage {
			fmt.Fprintf(&sb, "• %s: %d tokens (%d calls)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution)
		}
	}

	health := metrics.GetSysHealth(ctx, b.health)
	sb.WriteString("\n🧠 System Health\n")
	fmt.Fprintf(&sb, "• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "• Disk Data: %s\n", health.DataSize)
	if health.CachedPlans >= 0 {
		fmt.Fprintf(&sb, "• Cached plans: %d\n", health.CachedPlans)
	} else {
		sb.WriteString("• Cached plans: unavailable\n")
	}
	if health.ModelCallsToday != nil {
		fmt.Fprintf(&sb, "• Today: %d tokens (%d calls)\n", *health.TokensToday, *health.ModelCallsToday)
	}

	b.send(tgbotapi.NewMessage(chatID, sb.String()))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.out.Send(c); err != nil {
		b.logger.Error("failed to send telegram message", zap.Error(err))
	}
}
