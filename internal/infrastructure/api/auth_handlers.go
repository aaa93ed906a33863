package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"shopify-auth-layer/internal/application"
	"shopify-auth-layer/internal/domain"
	"shopify-auth-layer/internal/infrastructure/metrics"
	"shopify-auth-layer/internal/ports"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AuthHandlers exposes the OAuth flow over HTTP.
type AuthHandlers struct {
	service        *application.AuthService
	verifier       ports.CallbackVerifier
	flowMetrics    *metrics.FlowMetrics
	postInstallURL string
	logger         zerolog.Logger
}

// NewAuthHandlers creates the HTTP layer for the auth flow.
func NewAuthHandlers(
	service *application.AuthService,
	verifier ports.CallbackVerifier,
	flowMetrics *metrics.FlowMetrics,
	postInstallURL string,
	logger zerolog.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		service:        service,
		verifier:       verifier,
		flowMetrics:    flowMetrics,
		postInstallURL: postInstallURL,
		logger:         logger,
	}
}

// HandleRoot detects the signed install trigger the platform sends to the app
// URL (shop + hmac, no embedded=1) and bounces it into the install flow.
// Everything else gets a plain landing response.
func (h *AuthHandlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	shop := params.Get("shop")

	if shop != "" && params.Get("hmac") != "" && params.Get("embedded") != "1" {
		if err := h.verifier.VerifyInstallRequest(params); err != nil {
			h.logger.Warn().Err(err).Str("shop", shop).Msg("Install trigger rejected")
			h.writeError(w, domain.ErrSignatureInvalid)
			return
		}
		http.Redirect(w, r, "/auth/install?shop="+url.QueryEscape(shop), http.StatusFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"service": "shopify-auth-layer"})
}

// HandleInstall starts the OAuth flow: issues a state and redirects the
// merchant to the platform authorization URL.
func (h *AuthHandlers) HandleInstall(w http.ResponseWriter, r *http.Request) {
	shop := r.URL.Query().Get("shop")
	if shop == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	authURL, err := h.service.BuildInstallURL(r.Context(), shop, r.URL.Query().Get("access_mode"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.flowMetrics.InstallsStarted.Inc()
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback completes the flow: verify, consume state, exchange, persist.
func (h *AuthHandlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	installation, err := h.service.HandleCallback(r.Context(), r.URL.Query())
	if err != nil {
		h.flowMetrics.CallbackOutcomes.WithLabelValues(callbackOutcome(err)).Inc()
		if kind := exchangeKind(err); kind != "" {
			h.flowMetrics.ExchangeFailures.WithLabelValues(kind).Inc()
		}
		h.writeError(w, err)
		return
	}
	h.flowMetrics.CallbackOutcomes.WithLabelValues("persisted").Inc()

	if h.postInstallURL != "" {
		redirect := h.postInstallURL + "?shop=" + url.QueryEscape(installation.ShopDomain) +
			"&access_mode=" + url.QueryEscape(string(installation.AccessMode))
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "installed",
		"shop":        installation.ShopDomain,
		"access_mode": string(installation.AccessMode),
	})
}

type tokenExchangeRequest struct {
	Shop    string `json:"shop"`
	IDToken string `json:"id_token"`
}

// HandleTokenExchange trades a session token for an offline access token
// (managed installation flow).
func (h *AuthHandlers) HandleTokenExchange(w http.ResponseWriter, r *http.Request) {
	var req tokenExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	installation, err := h.service.ExchangeSessionToken(r.Context(), req.Shop, req.IDToken)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "installed",
		"shop":        installation.ShopDomain,
		"access_mode": string(installation.AccessMode),
	})
}

// HandleGetShop returns the stored authorization records for a shop, one per
// access mode.
func (h *AuthHandlers) HandleGetShop(w http.ResponseWriter, r *http.Request) {
	shop := chi.URLParam(r, "shopDomain")

	installations, err := h.service.GetShopInstallations(r.Context(), shop)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, installations)
}

// writeError maps a domain error to a stable error code. Bodies never carry
// the underlying detail; that is logged server-side only.
func (h *AuthHandlers) writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("Request failed")
	} else {
		h.logger.Warn().Err(err).Msg("Request rejected")
	}
	writeJSON(w, status, map[string]string{"error": code})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusUnauthorized, "invalid_hmac"
	case errors.Is(err, domain.ErrStateNotFound),
		errors.Is(err, domain.ErrStateExpired),
		errors.Is(err, domain.ErrShopMismatch):
		return http.StatusUnauthorized, "invalid_state"
	case errors.Is(err, domain.ErrScopeNotGranted):
		return http.StatusForbidden, "scope_not_granted"
	case errors.Is(err, domain.ErrInvalidGrant):
		return http.StatusBadGateway, "invalid_grant"
	case errors.Is(err, domain.ErrExchangeUnavailable):
		return http.StatusBadGateway, "exchange_unavailable"
	case errors.Is(err, domain.ErrExchangeFailed):
		return http.StatusBadGateway, "exchange_failed"
	case errors.Is(err, domain.ErrInstallationNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, "storage_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func callbackOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidGrant),
		errors.Is(err, domain.ErrExchangeUnavailable),
		errors.Is(err, domain.ErrExchangeFailed):
		return "exchange_failed"
	default:
		return "rejected"
	}
}

func exchangeKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrExchangeUnavailable):
		return "network"
	case errors.Is(err, domain.ErrInvalidGrant):
		return "invalid_grant"
	case errors.Is(err, domain.ErrExchangeFailed):
		return "unexpected_response"
	default:
		return ""
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
