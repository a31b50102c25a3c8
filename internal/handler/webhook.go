package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"b2b-pricing/internal/model"
)

// Webhook request headers set by the platform.
const (
	HeaderHMAC       = "X-Shopify-Hmac-Sha256"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
)

// subscriptionWebhook is the app_subscriptions/update payload.
type subscriptionWebhook struct {
	AppSubscription struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"app_subscription"`
}

// planName is the subscription name while it is active, "" otherwise.
func (p subscriptionWebhook) planName() string {
	if strings.EqualFold(p.AppSubscription.Status, "ACTIVE") {
		return p.AppSubscription.Name
	}
	return ""
}

// handleSubscriptionUpdate enforces the plan limit after a subscription change.
// POST /webhooks/app-subscriptions-update
func (h *Handler) handleSubscriptionUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		h.writeError(w, model.NewValidationError("body", "unreadable"))
		return
	}

	if err := verifyWebhook(h.webhookSecret, body, r.Header.Get(HeaderHMAC)); err != nil {
		h.logger.WarnContext(ctx, "webhook rejected", slog.String("error", err.Error()))
		h.writeError(w, model.NewUnauthorizedError("invalid webhook signature"))
		return
	}

	shop := strings.ToLower(r.Header.Get(HeaderShopDomain))
	if shop != "" && shop != strings.ToLower(h.shop) {
		h.writeJSON(w, http.StatusForbidden, errorResponse{Error: errorBody{
			Code:    "SHOP_MISMATCH",
			Message: "this service does not serve " + shop,
		}})
		return
	}

	var payload subscriptionWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		h.writeError(w, model.NewValidationError("body", "invalid JSON"))
		return
	}

	plan := payload.planName()
	h.logger.InfoContext(ctx, "subscription updated",
		slog.String("name", payload.AppSubscription.Name),
		slog.String("status", payload.AppSubscription.Status),
		slog.String("effective_plan", plan),
	)

	result, err := h.reconciler.EnforcePlan(ctx, model.ShopContext{Shop: h.shop, Actor: "webhook"}, plan)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// verifyWebhook checks the base64 HMAC-SHA256 of body under secret.
func verifyWebhook(secret string, body []byte, signature string) error {
	if secret == "" {
		return errors.New("webhook secret not configured")
	}
	if signature == "" {
		return errors.New("missing signature")
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return errors.New("malformed signature")
	}
	if !hmac.Equal(got, sign(secret, body)) {
		return errors.New("signature mismatch")
	}
	return nil
}

func sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
