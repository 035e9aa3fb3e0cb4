package api

// Endpoint paths, relative to the configured base URL
const (
	PathNonce         = "/auth/nonce"
	PathVerify        = "/auth/verify"
	PathLogout        = "/auth/logout"
	PathMe            = "/auth/me"
	PathAgents        = "/agents"
	PathMyAgents      = "/agents/mine"
	PathSearch        = "/search"
	PathWebhookStatus = "/webhooks/status"

	pathAgent   = "/agents/%s"
	pathMetrics = "/trading/%s/metrics"
	pathHolders = "/tokens/%s/holders"
)
