package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/devapi"
	"github.com/sirupsen/logrus"
)

const addressKey = "userAddress"

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *devapi.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *devapi.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// Nonce issues a sign-in nonce
func (h *AuthHandlers) Nonce(c *gin.Context) {
	nonce, err := h.authService.Nonce(c.Request.Context(), c.Query("address"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

// Verify exchanges a signed sign-in message for an access token
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, user, err := h.authService.Verify(c.Request.Context(), req.Message, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"user":       user,
	})
}

// Logout revokes the bearer token
func (h *AuthHandlers) Logout(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	token, _ := bearerToken(c)

	user, err := h.authService.Me(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// AgentHandlers serves the agent registry
type AgentHandlers struct {
	registry *devapi.Registry
	log      *logrus.Entry
}

// NewAgentHandlers creates new agent handlers
func NewAgentHandlers(registry *devapi.Registry, log *logrus.Entry) *AgentHandlers {
	return &AgentHandlers{registry: registry, log: log}
}

func (h *AgentHandlers) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	c.JSON(http.StatusOK, h.registry.List(page, limit))
}

func (h *AgentHandlers) Get(c *gin.Context) {
	agent, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, agent)
}

// Mine lists the caller's agents
func (h *AgentHandlers) Mine(c *gin.Context) {
	agents := h.registry.Mine(c.GetString(addressKey))
	c.JSON(http.StatusOK, core.AgentPage{Agents: agents, Total: len(agents), Page: 1, Limit: len(agents)})
}

// Create registers an agent for the caller
func (h *AgentHandlers) Create(c *gin.Context) {
	var req core.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	agent, err := h.registry.Create(c.GetString(addressKey), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"id":       agent.ID,
		"symbol":   agent.Symbol,
		"contract": agent.ContractAddress,
	}).Info("agent created")

	c.JSON(http.StatusCreated, agent)
}

func (h *AgentHandlers) Search(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"results": h.registry.Search(c.Query("q"))})
}

func (h *AgentHandlers) Metrics(c *gin.Context) {
	metrics, err := h.registry.Metrics(c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, metrics)
}

func (h *AgentHandlers) Holders(c *gin.Context) {
	holders, err := h.registry.Holders(c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"holders": holders})
}

// WebhookStatus reports chain event ingestion
func (h *AgentHandlers) WebhookStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.WebhookStatus())
}

// Trade ingests a trade event from the chain indexer
func (h *AgentHandlers) Trade(c *gin.Context) {
	var trade devapi.Trade
	if err := c.ShouldBindJSON(&trade); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.registry.RecordTrade(trade); err != nil {
		respondError(c, err)
		return
	}

	h.log.WithField("trade", trade.String()).Debug("trade recorded")
	c.Status(http.StatusAccepted)
}

// respondError maps domain errors to status codes
func respondError(c *gin.Context, err error) {
	var verr core.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": verr.Error(), "field": verr.Field}})
		return
	}

	status := http.StatusInternalServerError
	message := "Internal error"

	switch {
	case errors.Is(err, core.ErrInvalidMessage), errors.Is(err, core.ErrUnknownChain):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, core.ErrInvalidNonce):
		status = http.StatusUnauthorized
		message = "Invalid or expired nonce"
	case errors.Is(err, core.ErrInvalidSignature):
		status = http.StatusUnauthorized
		message = "Invalid signature"
	case errors.Is(err, core.ErrTokenExpired):
		status = http.StatusUnauthorized
		message = "Token expired"
	case errors.Is(err, core.ErrTokenInvalidated):
		status = http.StatusUnauthorized
		message = "Token has been revoked"
	case errors.Is(err, core.ErrInvalidToken):
		status = http.StatusUnauthorized
		message = "Invalid token"
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
		message = "Not found"
	}

	c.JSON(status, gin.H{"error": message})
}
