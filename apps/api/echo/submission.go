package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/submission"
)

type submissionApi struct {
	svc      *submission.Service
	validate *validator.Validate
}

func registerSubmissionAPI(g *echo.Group, admin echo.MiddlewareFunc, deps ServerDeps) {
	api := submissionApi{
		svc:      deps.SubmissionSvc,
		validate: deps.Validate,
	}

	sg := g.Group("/submissions")

	// un-authed endpoint: users upload proof of payment here
	sg.POST("", api.create)

	// admin endpoints
	ag := sg.Group("", admin)
	ag.GET("", api.query)
	ag.DELETE("", api.destroyMultiple)

	dg := ag.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/approve", api.approve)
	dg.POST("/reject", api.reject)
	dg.POST("/revoke", api.revoke)

	stg := g.Group("/settings", admin)
	stg.GET("/auto-approve", api.getAutoApprove)
	stg.PUT("/auto-approve", api.setAutoApprove)
}

// Handlers

func (api *submissionApi) create(ctx echo.Context) error {
	var data submission.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, grant, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating submission")
	}

	res := IntakeResponse{Submission: sub}
	if grant != nil {
		res.Expiry = &grant.Expiry
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *submissionApi) query(ctx echo.Context) error {
	filter := new(submission.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []submission.Submission{})
	}
	filter.Clean()

	subs, err := api.svc.Filter(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if subs == nil {
		subs = []submission.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *submissionApi) retrieve(ctx echo.Context) error {
	sub, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return trapSubmissionErr(err, "finding submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) approve(ctx echo.Context) error {
	var data ApproveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ApproveRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	grant, err := api.svc.Approve(
		ctx.Request().Context(),
		ctx.Param("id"),
		time.Duration(data.Seconds)*time.Second,
		core.CleanString(data.Message),
	)
	if err != nil {
		return trapSubmissionErr(err, "approving submission")
	}
	return ctx.JSON(http.StatusOK, grant)
}

func (api *submissionApi) reject(ctx echo.Context) error {
	sub, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return trapSubmissionErr(err, "rejecting submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

// revoke always succeeds from the admin's perspective: a pending
// submission is closed as rejected, an already-revoked one is left
// alone.
func (api *submissionApi) revoke(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id := ctx.Param("id")

	err := api.svc.Revoke(reqCtx, id)
	if errors.Cause(err) == submission.ErrInvalidTransition {
		_, err = api.svc.Reject(reqCtx, id)
		if errors.Cause(err) == submission.ErrInvalidTransition {
			err = nil
		}
	}
	if err != nil {
		return trapSubmissionErr(err, "revoking submission")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "access revoked"})
}

func (api *submissionApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting submissions")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *submissionApi) getAutoApprove(ctx echo.Context) error {
	enabled, err := api.svc.AutoApprove(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "reading auto-approve setting")
	}
	return ctx.JSON(http.StatusOK, AutoApproveSetting{Enabled: enabled})
}

func (api *submissionApi) setAutoApprove(ctx echo.Context) error {
	var data AutoApproveSetting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AutoApproveSetting")
	}

	if err := api.svc.SetAutoApprove(ctx.Request().Context(), data.Enabled); err != nil {
		return errors.Wrap(err, "writing auto-approve setting")
	}
	return ctx.JSON(http.StatusOK, data)
}

// trapSubmissionErr maps domain errors to their HTTP equivalents.
func trapSubmissionErr(err error, msg string) error {
	switch errors.Cause(err) {
	case submission.ErrNotFound:
		return errHttpNotFound
	case submission.ErrInvalidTransition:
		return core.NewValidationError(submission.ErrInvalidTransition)
	}
	return errors.Wrap(err, msg)
}

type (
	IntakeResponse struct {
		Submission submission.Submission `json:"submission"`
		// Expiry is only set when the auto-approval policy granted
		// access immediately.
		Expiry *time.Time `json:"expiry,omitempty"`
	}

	ApproveRequest struct {
		Seconds int64  `json:"seconds" validate:"required,gt=0"`
		Message string `json:"message"`
	}

	AutoApproveSetting struct {
		Enabled bool `json:"enabled"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)
