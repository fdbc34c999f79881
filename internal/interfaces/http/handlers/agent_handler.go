package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/BizAtlas/internal/application/agents"
	"github.com/turtacn/BizAtlas/internal/interfaces/http/response"
)

// Headers carrying run metadata next to the agent output.
const (
	HeaderAgentRunID  = "X-Agent-Run-ID"
	HeaderAgentStatus = "X-Agent-Status"
	HeaderAgentCached = "X-Agent-Cached"
	HeaderAgentModel  = "X-Agent-Model"
)

// AgentRunner executes one agent action.
type AgentRunner interface {
	Run(ctx context.Context, req agents.Request) (*agents.Result, error)
	Catalog() *agents.Catalog
}

// AgentHandler serves one POST endpoint per agent.
type AgentHandler struct {
	runner AgentRunner
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(runner AgentRunner) *AgentHandler {
	return &AgentHandler{runner: runner}
}

// AgentRequest is the body of POST /agents/:agent.
type AgentRequest struct {
	Action string         `json:"action" binding:"required"`
	Params map[string]any `json:"params"`
}

// RegisterRoutes mounts the agent routes under r.  mw runs before Invoke
// only, so listing the catalog is never rate limited.
func (h *AgentHandler) RegisterRoutes(r gin.IRouter, mw ...gin.HandlerFunc) {
	g := r.Group("/agents")
	g.GET("", h.List)
	g.POST("/:agent", append(mw, h.Invoke)...)
}

// List handles GET /agents.
func (h *AgentHandler) List(c *gin.Context) {
	cat := h.runner.Catalog()
	out := make([]*agents.Agent, 0, len(cat.Agents))
	for _, name := range cat.Names() {
		out = append(out, cat.Agents[name])
	}
	response.OK(c, http.StatusOK, out)
}

// Invoke handles POST /agents/:agent.  The envelope data is the decoded
// agent output; run metadata travels in X-Agent-* headers.
func (h *AgentHandler) Invoke(c *gin.Context) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, bindError(err))
		return
	}

	res, err := h.runner.Run(c.Request.Context(), agents.Request{
		Agent:  c.Param("agent"),
		Action: req.Action,
		Params: req.Params,
	})
	if res != nil {
		c.Header(HeaderAgentRunID, res.RunID)
		c.Header(HeaderAgentStatus, string(res.Status))
		c.Header(HeaderAgentCached, strconv.FormatBool(res.Cached))
		if res.Model != "" {
			c.Header(HeaderAgentModel, res.Model)
		}
	}
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, res.Data)
}

//Personal.AI order the ending
