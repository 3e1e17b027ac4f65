package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"tenderprep/internal/models"
)

type Service interface {
	CreatePrep(ctx context.Context, prep models.TenderPrep) (models.TenderPrep, error)
	GetPrepView(ctx context.Context, prepId string) (models.PrepView, error)
	EditContent(ctx context.Context, caller models.Caller, prepId string, changes map[string]string) (models.TenderPrep, error)
	Editability(ctx context.Context, caller models.Caller, prepId string) (models.Editability, error)

	AcquireLock(ctx context.Context, caller models.Caller, prepId string) (models.EditLock, error)
	ReleaseLock(ctx context.Context, caller models.Caller, prepId string) error
	InspectLock(ctx context.Context, prepId string) (models.LockState, error)

	OfficerApprove(ctx context.Context, caller models.Caller, prepId string) (models.TenderPrep, error)
	WithdrawApproval(ctx context.Context, caller models.Caller, prepId string) (models.TenderPrep, error)
	ManagerDecision(ctx context.Context, caller models.Caller, prepId string, decision models.Decision, reason string) (models.TenderPrep, error)
	ApprovalHistory(ctx context.Context, prepId string) ([]models.ApprovalRecord, error)

	Sign(ctx context.Context, caller models.Caller, prepId string, blob []byte, kind models.SignatureKind) (models.SignoffRecord, error)
	Unsign(ctx context.Context, caller models.Caller, prepId string) error
	Submit(ctx context.Context, caller models.Caller, prepId string) (models.TenderPrep, error)
	UpdateComment(ctx context.Context, caller models.Caller, prepId, comment string) (models.TenderPrep, error)
	Signoffs(ctx context.Context, prepId string) ([]models.SignoffRecord, error)
}

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

//// Preparations

// GET /api/ping
func (c *Controller) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// POST /api/preps/new
func (c *Controller) NewPrep(w http.ResponseWriter, r *http.Request) {
	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewPrepReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	prep, err := c.service.CreatePrep(r.Context(), models.TenderPrep{
		Name:        req.Name,
		Description: req.Description,
		OfficerIds:  req.OfficerIds,
		ManagerId:   req.ManagerId,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, prep)
}

// GET /api/preps/{prepId}
func (c *Controller) GetPrep(w http.ResponseWriter, r *http.Request) {
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	view, err := c.service.GetPrepView(r.Context(), prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, view)
}

// PATCH /api/preps/{prepId}/edit
func (c *Controller) EditPrep(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}
	req, err := ParsePrepChangeReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	prep, err := c.service.EditContent(r.Context(), caller, prepId, req)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, prep)
}

// GET /api/preps/{prepId}/editable
func (c *Controller) Editable(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	e, err := c.service.Editability(r.Context(), caller, prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, e)
}

//// Locks

// POST /api/preps/{prepId}/lock
func (c *Controller) AcquireLock(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	lock, err := c.service.AcquireLock(r.Context(), caller, prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, lock)
}

// DELETE /api/preps/{prepId}/lock
func (c *Controller) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	err := c.service.ReleaseLock(r.Context(), caller, prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GET /api/preps/{prepId}/lock
func (c *Controller) InspectLock(w http.ResponseWriter, r *http.Request) {
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	state, err := c.service.InspectLock(r.Context(), prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, state)
}

//// Approvals

// POST /api/preps/{prepId}/approve
func (c *Controller) OfficerApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	prep, err := c.service.OfficerApprove(r.Context(), caller, prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, prep)
}

// DELETE /api/preps/{prepId}/approve
func (c *Controller) WithdrawApproval(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	prep, err := c.service.WithdrawApproval(r.Context(), caller, prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, prep)
}

// POST /api/preps/{prepId}/decision
func (c *Controller) ManagerDecision(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}
	req, err := ParseDecisionReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	prep, err := c.service.ManagerDecision(r.Context(), caller, prepId, req.Decision, req.Reason)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, prep)
}

// GET /api/preps/{prepId}/approvals
func (c *Controller) ApprovalHistory(w http.ResponseWriter, r *http.Request) {
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	history, err := c.service.ApprovalHistory(r.Context(), prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, history)
}

//// Signatures

// POST /api/preps/{prepId}/sign
func (c *Controller) Sign(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}
	req, err := ParseSignReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := c.service.Sign(r.Context(), caller, prepId, req.Signature, req.Kind)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, rec)
}

// DELETE /api/preps/{prepId}/sign
func (c *Controller) Unsign(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	err := c.service.Unsign(r.Context(), caller, prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// POST /api/preps/{prepId}/submit
func (c *Controller) Submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	prep, err := c.service.Submit(r.Context(), caller, prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, prep)
}

// PUT /api/preps/{prepId}/comment
func (c *Controller) UpdateComment(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.queryCaller(w, r)
	if !ok {
		return
	}
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}
	req, err := ParseCommentReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	prep, err := c.service.UpdateComment(r.Context(), caller, prepId, req.Comment)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, prep)
}

// GET /api/preps/{prepId}/signoffs
func (c *Controller) Signoffs(w http.ResponseWriter, r *http.Request) {
	prepId, ok := c.pathPrepId(w, r)
	if !ok {
		return
	}

	signoffs, err := c.service.Signoffs(r.Context(), prepId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, signoffs)
}

// Service

type ErrorResponse struct {
	Reason string `json:"reason"`
}

func (c *Controller) pathPrepId(w http.ResponseWriter, r *http.Request) (string, bool) {
	prepId := r.PathValue("prepId")
	if len(prepId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty prepId supplied")
		return "", false
	}
	return prepId, true
}

// queryCaller reads the identity the external directory resolved for
// this request: userId plus a role claim. The service trusts the claim
// for role routing only; assignment checks are its own.
func (c *Controller) queryCaller(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	query := r.URL.Query()

	userId := query.Get("userId")
	if len(userId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty userId supplied")
		return models.Caller{}, false
	}

	claim := models.RoleClaim(query.Get("role"))
	if !models.ValidRoleClaim(claim) {
		c.errorResponse(w, http.StatusBadRequest, "empty or invalid role supplied")
		return models.Caller{}, false
	}

	return models.Caller{Id: userId, Claim: claim}, true
}

func (c *Controller) errorResponse(w http.ResponseWriter, status int, text string) {
	w.WriteHeader(status)

	data, err := json.Marshal(ErrorResponse{Reason: text})
	if err != nil {
		log.Printf("controller.Controller.errorResponse: %s", err)
		return
	}

	_, err = w.Write(data)
	if err != nil {
		log.Printf("controller.Controller.errorResponse: %s", err)
		return
	}
}

func (c *Controller) serviceErrorResponse(w http.ResponseWriter, err error) {
	var lockHeld *models.LockHeldError

	switch {
	case errors.As(err, &lockHeld):
		c.errorResponse(w, http.StatusConflict, lockHeld.Error())
	case errors.Is(err, models.ErrLockHeld):
		c.errorResponse(w, http.StatusConflict, "edit lock is held by another user")
	case errors.Is(err, models.ErrLockNotHeld):
		c.errorResponse(w, http.StatusConflict, "caller does not hold the edit lock")
	case errors.Is(err, models.ErrNoPrep):
		c.errorResponse(w, http.StatusNotFound, "requested preparation does not exist")
	case errors.Is(err, models.ErrNotAssigned):
		c.errorResponse(w, http.StatusForbidden, "user is not an assigned officer of this preparation")
	case errors.Is(err, models.ErrForbidden):
		c.errorResponse(w, http.StatusForbidden, "user has no permission for requested action")
	case errors.Is(err, models.ErrAlreadyApproved):
		c.errorResponse(w, http.StatusConflict, "user already has a live approval in the current round")
	case errors.Is(err, models.ErrNoActiveApproval):
		c.errorResponse(w, http.StatusConflict, "user has no live approval to withdraw")
	case errors.Is(err, models.ErrApprovalBlocksEdit):
		c.errorResponse(w, http.StatusConflict, "editing is disabled while a live officer approval exists")
	case errors.Is(err, models.ErrInvalidTransition):
		c.errorResponse(w, http.StatusConflict, "operation is not allowed in the current preparation status")
	case errors.Is(err, models.ErrInvalidSignature):
		c.errorResponse(w, http.StatusBadRequest, "signature payload is missing or malformed")
	case errors.Is(err, models.ErrCommentFrozen):
		c.errorResponse(w, http.StatusConflict, "signoff comment is frozen after the first officer signature")
	case errors.Is(err, models.ErrPrepFinalized):
		c.errorResponse(w, http.StatusForbidden, "preparation is already submitted or rejected")
	default:
		log.Println("controller:", err)
		c.errorResponse(w, http.StatusInternalServerError, "internal server error: "+err.Error())
	}
}

func (c *Controller) marshalResponse(w http.ResponseWriter, data any) {
	d, err := json.Marshal(data)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not marshal response data")
		return
	}

	_, err = w.Write(d)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not write response data")
		return
	}
}

func (c *Controller) readBody(src io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	src.Close()
	return data, nil
}
