// Package notifications delivers anomaly and spike alerts to registered
// webhook endpoints.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"demandcast/anomaly"
	"demandcast/cache"
	"demandcast/database/anomalies"
	models "demandcast/database/models_pkg"
	"demandcast/spike"
)

// WebhookManager handles webhook notifications
type WebhookManager struct {
	repo   *anomalies.Repository
	redis  *cache.RedisClient
	client *http.Client
}

// WebhookPayload is the JSON body POSTed to subscribed endpoints.
type WebhookPayload struct {
	EventType       string                 `json:"event_type"`
	SKU             string                 `json:"sku"`
	DetectedAt      time.Time              `json:"detected_at"`
	Message         string                 `json:"message"`
	UnitImpact      float64                `json:"unit_impact,omitempty"`
	FinancialImpact float64                `json:"financial_impact,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(repo *anomalies.Repository, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		repo:  repo,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendAnomalyAlert delivers an anomaly event to matching webhooks.
func (wm *WebhookManager) SendAnomalyAlert(ev *anomaly.Event) {
	message := fmt.Sprintf("🚨 %s anomaly on %s | cause: %s | impact: %.0f units",
		strings.ToUpper(ev.Type), ev.SKU, ev.RootCause, ev.UnitImpact)

	wm.send(WebhookPayload{
		EventType:       ev.Type,
		SKU:             ev.SKU,
		DetectedAt:      ev.DetectedAt,
		Message:         message,
		UnitImpact:      ev.UnitImpact,
		FinancialImpact: ev.FinancialImpact,
		Metadata: map[string]interface{}{
			"root_cause":  ev.RootCause,
			"factors":     ev.Factors,
			"adjustments": ev.Adjustments,
		},
	})
}

// SendSpikeAlert delivers a spike detection to matching webhooks.
func (wm *WebhookManager) SendSpikeAlert(det *spike.Detection) {
	if !det.IsSpiking {
		return
	}

	message := fmt.Sprintf("📈 SPIKE on %s | %.1fx baseline (%.1f -> %.1f units/day) | cause: %s | urgency: %s",
		det.SKU, det.Multiplier, det.BaselineVelocity, det.CurrentVelocity, det.Cause, det.Urgency)

	wm.send(WebhookPayload{
		EventType:  "spike",
		SKU:        det.SKU,
		DetectedAt: time.Now().UTC(),
		Message:    message,
		UnitImpact: det.InventoryImpactUnits,
		Metadata: map[string]interface{}{
			"multiplier":       det.Multiplier,
			"cause":            det.Cause,
			"cause_confidence": det.CauseConfidence,
			"urgency":          det.Urgency,
		},
	})
}

func (wm *WebhookManager) send(payload WebhookPayload) {
	hooks, err := wm.activeWebhooks()
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	for _, hook := range hooks {
		// Empty EventTypes subscribes to everything.
		if hook.EventTypes != "" && !strings.Contains(hook.EventTypes, payload.EventType) {
			continue
		}
		go wm.deliver(hook.URL, body)
	}
}

func (wm *WebhookManager) activeWebhooks() ([]models.WebhookRecord, error) {
	cacheKey := "active_webhooks"
	if wm.redis != nil {
		var cached []models.WebhookRecord
		if err := wm.redis.Get(context.Background(), cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	hooks, err := wm.repo.ActiveWebhooks()
	if err != nil {
		return nil, err
	}

	if wm.redis != nil {
		_ = wm.redis.Set(context.Background(), cacheKey, hooks, 1*time.Hour)
	}
	return hooks, nil
}

func (wm *WebhookManager) deliver(url string, body []byte) {
	const maxRetries = 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
		if err != nil {
			log.Printf("⚠️  Webhook request build failed for %s: %v", url, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Demandcast-Alert/1.0")

		resp, err := wm.client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		} else {
			log.Printf("⚠️  Webhook delivery to %s failed after %d attempts: %v", url, maxRetries, err)
		}
	}
}

// RefreshCache reloads webhook configurations
func (wm *WebhookManager) RefreshCache() {
	if wm.redis != nil {
		_ = wm.redis.Delete(context.Background(), "active_webhooks")
		log.Println("🔄 Webhook cache invalidated")
	}
}
