package echoapi

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/access"
	"github.com/lawnetwork/lawnet/core/submission"
)

type accessApi struct {
	svc      *access.Service
	subSvc   *submission.Service
	plans    access.PlanRepository
	broker   access.Broker
	conf     *core.Config
	logger   core.Logger
	validate *validator.Validate
}

func registerAccessAPI(g *echo.Group, admin echo.MiddlewareFunc, deps ServerDeps) {
	api := accessApi{
		svc:      deps.AccessSvc,
		subSvc:   deps.SubmissionSvc,
		plans:    deps.PlanRepo,
		broker:   deps.Broker,
		conf:     deps.Conf,
		logger:   deps.Logger,
		validate: deps.Validate,
	}

	ag := g.Group("/access")
	ag.GET("", api.check)
	ag.GET("/events", api.events)
	ag.POST("/revoke", api.revokeKey, admin)

	pg := g.Group("/plans")
	pg.GET("", api.queryPlans)
	pg.PUT("/:tier", api.upsertPlan, admin)
}

// Handlers

func (api *accessApi) check(ctx echo.Context) error {
	var data AccessKeyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AccessKeyRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grant, err := api.svc.GetGrant(ctx.Request().Context(), data.Key())
	if err != nil {
		return errors.Wrap(err, "getting grant")
	}
	if grant == nil {
		return ctx.JSON(http.StatusOK, AccessCheckResponse{Allowed: false})
	}
	return ctx.JSON(http.StatusOK, AccessCheckResponse{
		Allowed: true,
		Expiry:  &grant.Expiry,
		Message: grant.Message.String,
	})
}

// events streams grant/revoke events for one subject as server-sent
// events. The stream is a latency optimization only: clients re-check
// the access endpoint on (re)connect, so missed events are harmless.
func (api *accessApi) events(ctx echo.Context) error {
	subject := core.CleanString(ctx.QueryParam("subject"), true /* lower */)
	if subject == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "subject", Error: "this field is required"})
	}

	reqCtx := ctx.Request().Context()
	sub, err := api.broker.Subscribe(reqCtx, subject)
	if err != nil {
		return errors.Wrap(err, "subscribing")
	}
	defer func() { _ = sub.Close() }()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(api.conf.Server.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-reqCtx.Done(): // transport closed; prune the connection
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err = sse.Encode(res, sse.Event{Event: string(ev.Type), Data: ev}); err != nil {
				api.logger.Warn(fmt.Sprintf("pushing %s event", ev.Type), err)
				return nil
			}
			res.Flush()
		case <-heartbeat.C:
			// comment line keeps idle proxies open and lets clients
			// detect silent disconnects
			if _, err = fmt.Fprint(res, ": hb\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func (api *accessApi) revokeKey(ctx echo.Context) error {
	var data AccessKeyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AccessKeyRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.subSvc.RevokeKey(ctx.Request().Context(), data.Key()); err != nil {
		return errors.Wrap(err, "revoking access")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "access revoked"})
}

func (api *accessApi) queryPlans(ctx echo.Context) error {
	overrides, err := api.plans.QueryPlanTiers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying plan tiers")
	}

	merged := make(map[string]access.PlanTier, len(access.DefaultPlanDurations)+len(overrides))
	for tier, d := range access.DefaultPlanDurations {
		merged[tier] = access.PlanTier{Tier: tier, Duration: d}
	}
	for _, p := range overrides {
		merged[p.Tier] = p
	}

	plans := make([]PlanResponse, 0, len(merged))
	for _, p := range merged {
		plans = append(plans, PlanResponse{Tier: p.Tier, Seconds: int64(p.Duration / time.Second)})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Seconds < plans[j].Seconds })
	return ctx.JSON(http.StatusOK, plans)
}

func (api *accessApi) upsertPlan(ctx echo.Context) error {
	var data UpsertPlanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpsertPlanRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	tier := core.CleanString(ctx.Param("tier"), true /* lower */)
	plan, err := api.plans.UpsertPlanTier(ctx.Request().Context(), access.PlanTier{
		Tier:     tier,
		Duration: time.Duration(data.Seconds) * time.Second,
	})
	if err != nil {
		return errors.Wrap(err, "upserting plan tier")
	}
	return ctx.JSON(http.StatusOK, PlanResponse{Tier: plan.Tier, Seconds: int64(plan.Duration / time.Second)})
}

type (
	AccessKeyRequest struct {
		Subject   string `json:"subject" query:"subject" validate:"required,email"`
		Feature   string `json:"feature" query:"feature" validate:"required,feature"`
		FeatureID string `json:"feature_id" query:"feature_id" validate:"required"`
	}

	AccessCheckResponse struct {
		Allowed bool       `json:"allowed"`
		Expiry  *time.Time `json:"expiry,omitempty"`
		Message string     `json:"message,omitempty"`
	}

	PlanResponse struct {
		Tier    string `json:"tier"`
		Seconds int64  `json:"seconds"`
	}

	UpsertPlanRequest struct {
		Seconds int64 `json:"seconds" validate:"required,gt=0"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (ar *AccessKeyRequest) Validate(validate *validator.Validate) error {
	ar.Subject = core.CleanString(ar.Subject, true /* lower */)
	ar.Feature = core.CleanString(ar.Feature, true /* lower */)
	ar.FeatureID = core.CleanString(ar.FeatureID)
	return validate.Struct(ar)
}

func (ar AccessKeyRequest) Key() access.Key {
	return access.Key{Subject: ar.Subject, Feature: ar.Feature, FeatureID: ar.FeatureID}
}
