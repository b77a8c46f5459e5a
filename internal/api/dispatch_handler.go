package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/httputil"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/service/campaign"
)

// CampaignService is what the trigger endpoints drive.
type CampaignService interface {
	Dispatch(ctx context.Context, req campaign.Request) (*domain.DispatchResult, error)
	SweepScheduled(ctx context.Context) (*campaign.SweepReport, error)
	SweepDue(ctx context.Context) (*campaign.SweepReport, error)
}

// DispatchHandler serves the trigger endpoints.
type DispatchHandler struct {
	svc CampaignService
}

// NewDispatchHandler creates a handler over svc.
func NewDispatchHandler(svc CampaignService) *DispatchHandler {
	return &DispatchHandler{svc: svc}
}

type campaignPayload struct {
	ID          string `json:"id"`
	LegacyID    string `json:"_id"`
	HTMLContent string `json:"htmlContent"`
}

// dispatchPayload accepts both the numeric options flag (1 = all contacts)
// and an explicit mode string.
type dispatchPayload struct {
	Options  *int             `json:"options"`
	Mode     string           `json:"mode"`
	Campaign *campaignPayload `json:"campaign"`
	UserID   string           `json:"userId"`
	StatsID  string           `json:"statsId"`
	Groups   []string         `json:"groups"`
	FromName string           `json:"fromName"`
	Subject  string           `json:"subject"`
}

const missingPayload = "Missing options or payload"

func (p dispatchPayload) audience() (domain.AudienceSpec, bool) {
	switch p.Mode {
	case "allContacts":
		return domain.AllContacts{}, true
	case "groups":
		return domain.Groups{GroupIDs: p.Groups}, true
	case "":
	default:
		return nil, false
	}
	if p.Options != nil {
		if *p.Options > 1 {
			return nil, false
		}
		if *p.Options == 1 {
			return domain.AllContacts{}, true
		}
	}
	return domain.Groups{GroupIDs: p.Groups}, true
}

func (p dispatchPayload) request() (campaign.Request, bool) {
	spec, ok := p.audience()
	if !ok || p.Campaign == nil {
		return campaign.Request{}, false
	}
	id := p.Campaign.ID
	if id == "" {
		id = p.Campaign.LegacyID
	}
	return campaign.Request{
		CampaignID:  id,
		HTMLContent: p.Campaign.HTMLContent,
		UserID:      p.UserID,
		StatsID:     p.StatsID,
		FromName:    p.FromName,
		Subject:     p.Subject,
		Audience:    spec,
	}, true
}

// HandleDispatch runs one dispatch and reports its outcome.
//
//	POST /v1/dispatch
func (h *DispatchHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	var p dispatchPayload
	if !httputil.Decode(w, r, &p) {
		return
	}
	req, ok := p.request()
	if !ok {
		httputil.BadRequest(w, missingPayload)
		return
	}

	// The run outlives a caller that hangs up.
	res, err := h.svc.Dispatch(context.WithoutCancel(r.Context()), req)
	if err != nil {
		var verr *campaign.ValidationError
		if errors.As(err, &verr) {
			httputil.BadRequest(w, missingPayload)
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleSweepScheduled dispatches pending scheduled sends.
//
//	POST /v1/sweeps/scheduled
func (h *DispatchHandler) HandleSweepScheduled(w http.ResponseWriter, r *http.Request) {
	h.sweep(w, r, h.svc.SweepScheduled)
}

// HandleSweepDue dispatches strictly past-due scheduled sends.
//
//	POST /v1/sweeps/due
func (h *DispatchHandler) HandleSweepDue(w http.ResponseWriter, r *http.Request) {
	h.sweep(w, r, h.svc.SweepDue)
}

func (h *DispatchHandler) sweep(w http.ResponseWriter, r *http.Request, run func(context.Context) (*campaign.SweepReport, error)) {
	report, err := run(context.WithoutCancel(r.Context()))
	if err != nil {
		logger.Error("sweep failed", "path", r.URL.Path, "error", err)
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, report)
}
