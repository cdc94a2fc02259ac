package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/resolver"
	"github.com/aniladanir/hospital-messenger-service/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type StartBatchRequest struct {
	Domain       domain.Domain          `json:"domain"`
	Kind         domain.JobKind         `json:"kind" binding:"required"`
	Policy       resolver.Policy        `json:"policy"`
	RecipientIDs []int                  `json:"recipient_ids"`
	Recipients   []resolver.UploadEntry `json:"recipients"`
	DaysAhead    int                    `json:"days_ahead"`
	TemplateName string                 `json:"template_name"`
	LanguageCode string                 `json:"language_code"`
	Params       []string               `json:"params"`
	Body         string                 `json:"body"`
	Label        string                 `json:"label"`
	Limit        int                    `json:"limit"`
}

type StartBatchResponse struct {
	BatchID   string               `json:"batch_id,omitempty"`
	Total     int                  `json:"total"`
	Invalid   int                  `json:"invalid"`
	Rejected  []resolver.Rejection `json:"rejected,omitempty"`
	Truncated int                  `json:"truncated"`
	// Stored lists uploaded recipients kept pending when the start was rejected as busy.
	Stored []int  `json:"stored_recipient_ids,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r StartBatchRequest) policy() resolver.Policy {
	switch {
	case r.Policy != "":
		return r.Policy
	case len(r.Recipients) > 0:
		return resolver.PolicyUploaded
	case len(r.RecipientIDs) > 0:
		return resolver.PolicyExplicitIDs
	}
	return resolver.PolicyAllEligible
}

func (r StartBatchRequest) toStart() (service.StartRequest, error) {
	if !r.Kind.Valid() {
		return service.StartRequest{}, domain.ErrUnknownJobKind
	}
	if r.Domain != "" && r.Domain != r.Kind.Domain() {
		return service.StartRequest{}, errors.New("kind " + string(r.Kind) + " does not belong to domain " + string(r.Domain))
	}
	if r.Limit < 0 || r.DaysAhead < 0 {
		return service.StartRequest{}, errors.New("limit and days_ahead must not be negative")
	}
	return service.StartRequest{
		Kind:  r.Kind,
		Label: r.Label,
		Selection: resolver.Request{
			Policy:    r.policy(),
			IDs:       r.RecipientIDs,
			Uploaded:  r.Recipients,
			DaysAhead: r.DaysAhead,
			Limit:     r.Limit,
		},
		TemplateName: r.TemplateName,
		LanguageCode: r.LanguageCode,
		Params:       r.Params,
		Body:         r.Body,
	}, nil
}

func startResponse(res *service.StartResult) StartBatchResponse {
	var resp StartBatchResponse
	if res == nil {
		return resp
	}
	if res.Batch != nil {
		resp.BatchID = res.Batch.ID
		resp.Total = res.Batch.Total
	}
	if res.Resolution != nil {
		resp.Invalid = len(res.Resolution.Invalid)
		resp.Rejected = res.Resolution.Rejected
		resp.Truncated = res.Resolution.Truncated
	}
	resp.Stored = res.Stored
	return resp
}

// respondStart writes the outcome of a start. An empty selection still reports what was rejected,
// and a busy rejection reports uploaded rows that were stored anyway.
func (h *Handler) respondStart(c *gin.Context, res *service.StartResult, err error) {
	switch {
	case errors.Is(err, domain.ErrNothingToSend) && res != nil:
		resp := startResponse(res)
		resp.Error = err.Error()
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	case errors.Is(err, domain.ErrBusy) && res != nil && len(res.Stored) > 0:
		resp := startResponse(res)
		resp.Error = domain.ErrBusy.Error()
		c.JSON(http.StatusConflict, resp)
		return
	}
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, startResponse(res))
}

// StartBatch godoc
// @Summary Start a batch
// @Description Resolves recipients and dispatches one message to each. Only one batch per domain runs at a time.
// @Tags Batches
// @Accept json
// @Produce json
// @Param request body StartBatchRequest true "batch"
// @Success 202 {object} StartBatchResponse
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 409 {object} StartBatchResponse
// @Failure 422 {object} StartBatchResponse
// @Security ApiKeyAuth
// @Router /batches [post]
func (h *Handler) startBatch(c *gin.Context) {
	var body StartBatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	req, err := body.toStart()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.controller.Start(c.Request.Context(), req)
	h.respondStart(c, res, err)
}

// ListBatches godoc
// @Summary List batches
// @Tags Batches
// @Produce json
// @Param domain query string false "reminders or bulk_send"
// @Param limit query int false "max rows"
// @Success 200 {array} domain.Batch
// @Security ApiKeyAuth
// @Router /batches [get]
func (h *Handler) listBatches(c *gin.Context) {
	d, ok := optionalDomain(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", defaultListLimit)
	if !ok {
		return
	}

	batches, err := h.controller.ListBatches(c.Request.Context(), d, min(limit, maxListLimit))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}

// GetBatch godoc
// @Summary Get a batch
// @Tags Batches
// @Produce json
// @Param id path string true "batch id"
// @Success 200 {object} domain.Batch
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /batches/{id} [get]
func (h *Handler) getBatch(c *gin.Context) {
	b, err := h.controller.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CancelBatch godoc
// @Summary Cancel a batch
// @Description Units already sending finish; the rest leave their recipients pending.
// @Tags Batches
// @Produce json
// @Param id path string true "batch id"
// @Success 200 {object} domain.Batch
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Security ApiKeyAuth
// @Router /batches/{id}/cancel [post]
func (h *Handler) cancelBatch(c *gin.Context) {
	b, err := h.controller.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func parseDomain(c *gin.Context, raw string) (domain.Domain, bool) {
	d := domain.Domain(raw)
	if !d.Valid() {
		badRequest(c, "unknown domain "+strconv.Quote(raw))
		return "", false
	}
	return d, true
}

// optionalDomain reads ?domain=, where empty means every domain.
func optionalDomain(c *gin.Context) (domain.Domain, bool) {
	raw := c.Query("domain")
	if raw == "" {
		return "", true
	}
	return parseDomain(c, raw)
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
