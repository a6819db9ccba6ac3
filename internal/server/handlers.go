package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cockpit-alerts/internal/alerts"
	"cockpit-alerts/internal/dispatch"
	"cockpit-alerts/internal/rules"
	"cockpit-alerts/internal/service"
)

type handlers struct {
	svc    *service.Service
	logger zerolog.Logger
}

func newHandlers(svc *service.Service, logger zerolog.Logger) *handlers {
	return &handlers{svc: svc, logger: logger}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) listRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.svc.Rules().List(c.Request.Context())})
}

func (h *handlers) addRule(c *gin.Context) {
	var r rules.Rule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	h.storeRule(c, r)
}

func (h *handlers) addTemplate(c *gin.Context) {
	tpl, ok := rules.LookupTemplate(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown template: " + c.Param("name")})
		return
	}
	h.storeRule(c, tpl.Rule)
}

func (h *handlers) storeRule(c *gin.Context, r rules.Rule) {
	ctx := c.Request.Context()
	if err := r.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Rules().Add(ctx, r); err != nil {
		h.logger.Error().Err(err).Msg("add rule failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rules": h.svc.Rules().List(ctx)})
}

func (h *handlers) removeRule(c *gin.Context) {
	ctx := c.Request.Context()
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}

	before := len(h.svc.Rules().List(ctx))
	if err := h.svc.Rules().Remove(ctx, index); err != nil {
		h.logger.Error().Err(err).Int("index", index).Msg("remove rule failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	current := h.svc.Rules().List(ctx)
	c.JSON(http.StatusOK, gin.H{"removed": len(current) < before, "rules": current})
}

func (h *handlers) listTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": rules.Templates()})
}

func (h *handlers) checkRules(c *gin.Context) {
	outcomes, err := h.svc.CheckRules(c.Request.Context())
	body := gin.H{"outcomes": outcomes}
	if err != nil {
		body["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

type snapshotResponse struct {
	Snapshot    alerts.Snapshot   `json:"snapshot"`
	Total       int               `json:"total"`
	Fingerprint string            `json:"fingerprint"`
	Failed      map[string]string `json:"failed,omitempty"`
}

func newSnapshotResponse(snap alerts.Snapshot) snapshotResponse {
	resp := snapshotResponse{Snapshot: snap, Total: snap.Total(), Fingerprint: dispatch.Fingerprint(snap)}
	if failed := snap.Failed(); len(failed) > 0 {
		resp.Failed = make(map[string]string, len(failed))
		for cat, err := range failed {
			resp.Failed[string(cat)] = err.Error()
		}
	}
	return resp
}

func (h *handlers) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, newSnapshotResponse(h.svc.Snapshot(c.Request.Context())))
}

func (h *handlers) notify(c *gin.Context) {
	res, snap := h.svc.NotifyIfChanged(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"result": res, "total": snap.Total()})
}

func (h *handlers) resend(c *gin.Context) {
	res, snap := h.svc.ResendLatest(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"result": res, "total": snap.Total()})
}
