package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/rosterinvites/internal/models"
	"github.com/charlesng35/rosterinvites/internal/services"
	appErrors "github.com/charlesng35/rosterinvites/pkg/errors"
	"github.com/charlesng35/rosterinvites/pkg/response"
)

// InvitationHandler exposes the invitation lifecycle over HTTP.
type InvitationHandler struct {
	issuer      *services.InvitationIssuer
	store       *services.InvitationStore
	presenter   *services.InvitationListPresenter
	matcher     *services.TokenMatcher
	coordinator *services.ResponseCoordinator
	now         func() time.Time
}

// NewInvitationHandler wires the invitation services into HTTP handlers. A nil
// clock falls back to time.Now.
func NewInvitationHandler(
	issuer *services.InvitationIssuer,
	store *services.InvitationStore,
	presenter *services.InvitationListPresenter,
	matcher *services.TokenMatcher,
	coordinator *services.ResponseCoordinator,
	now func() time.Time,
) *InvitationHandler {
	if now == nil {
		now = time.Now
	}
	return &InvitationHandler{
		issuer:      issuer,
		store:       store,
		presenter:   presenter,
		matcher:     matcher,
		coordinator: coordinator,
		now:         now,
	}
}

type createInvitationRequest struct {
	RecipientID    string `json:"recipient_id" validate:"notblank,max=64"`
	RecipientEmail string `json:"recipient_email" validate:"omitempty,email"`
	Kind           string `json:"kind" validate:"required,oneof=team_role trial"`
	SubjectID      string `json:"subject_id" validate:"notblank,max=64"`
	SubjectRole    string `json:"subject_role" validate:"max=64"`
}

// POST /api/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	issued, err := h.issuer.Issue(requestContext(c), services.IssueInvitationInput{
		Sender:         actor,
		RecipientID:    strings.TrimSpace(req.RecipientID),
		RecipientEmail: strings.TrimSpace(req.RecipientEmail),
		Kind:           models.InvitationKind(req.Kind),
		Subject: models.SubjectRef{
			ID:   strings.TrimSpace(req.SubjectID),
			Role: strings.TrimSpace(req.SubjectRole),
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, issued)
}

// GET /api/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	view, err := h.presenter.BuildView(requestContext(c), actor.ID, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, view, &response.Meta{
		Total: len(view.Pending) + len(view.History),
	})
}

// GET /api/invitations/sent
func (h *InvitationHandler) Sent(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	invitations, err := h.store.ListForSender(requestContext(c), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, invitations, &response.Meta{Total: len(invitations)})
}

// GET /api/invitations/resolve?token=
func (h *InvitationHandler) Resolve(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.NewValidation("token is required"))
		return
	}

	inv, err := h.matcher.Resolve(requestContext(c), token, actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, inv)
}

// GET /api/invitations/:id
func (h *InvitationHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	inv, err := h.coordinator.Get(requestContext(c), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, inv)
}

// POST /api/invitations/:id/accept
func (h *InvitationHandler) Accept(c *gin.Context) {
	h.respond(c, services.DecisionAccept)
}

// POST /api/invitations/:id/reject
func (h *InvitationHandler) Reject(c *gin.Context) {
	h.respond(c, services.DecisionDecline)
}

func (h *InvitationHandler) respond(c *gin.Context, decision services.Decision) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	inv, err := h.coordinator.Respond(requestContext(c), c.Param("id"), actor.ID, decision)
	writeSettled(c, inv, err)
}

// POST /api/invitations/:id/grant
func (h *InvitationHandler) Grant(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	inv, err := h.coordinator.RetryGrant(requestContext(c), c.Param("id"), actor)
	writeSettled(c, inv, err)
}

// writeSettled reports a committed transition. A failed grant still returns the
// accepted invitation alongside the error so clients can show the new status.
func writeSettled(c *gin.Context, inv *models.Invitation, err error) {
	if err != nil {
		if inv != nil && errors.Is(err, services.ErrGrantExecutionFailed) {
			response.Partial(c, inv, err)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, inv)
}
