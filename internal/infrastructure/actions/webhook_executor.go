package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nexusflow/backend/internal/domain/models"
	"github.com/nexusflow/backend/internal/domain/ports"
)

const defaultTimeout = 10 * time.Second

// WebhookExecutor delivers action steps as HTTP calls to an external URL.
// The step's action_config supplies "url" and optionally "method".
type WebhookExecutor struct {
	client *http.Client
}

// NewWebhookExecutor creates a new WebhookExecutor
func NewWebhookExecutor() *WebhookExecutor {
	return &WebhookExecutor{
		client: &http.Client{Timeout: defaultTimeout},
	}
}

var _ ports.ActionExecutor = (*WebhookExecutor)(nil)

type webhookPayload struct {
	InstanceID string          `json:"instance_id"`
	Code       string          `json:"code"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	StepIndex  int             `json:"step_index"`
	Fields     models.FieldMap `json:"fields"`
}

// Execute posts the instance context to the configured webhook URL.
// Any non-2xx response is an error so the engine stalls the instance.
func (e *WebhookExecutor) Execute(ctx context.Context, config map[string]interface{}, instance *models.WorkflowInstance, snapshot models.FieldMap) error {
	url, _ := config["url"].(string)
	if url == "" {
		return fmt.Errorf("action config missing url")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(webhookPayload{
		InstanceID: instance.ID,
		Code:       instance.Code,
		EntityType: instance.EntityType,
		EntityID:   instance.EntityID,
		StepIndex:  instance.CurrentStepIndex,
		Fields:     snapshot,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	log.Printf("⚡ Webhook action delivered for instance %s (status %d)", instance.Code, resp.StatusCode)
	return nil
}
