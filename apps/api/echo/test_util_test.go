package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"testing"
	"time"

	en_locale "github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	memorybroker "github.com/lawnetwork/lawnet/broker/memory"
	"github.com/lawnetwork/lawnet/core"
	"github.com/lawnetwork/lawnet/core/access"
	"github.com/lawnetwork/lawnet/core/submission"
	emailsvc "github.com/lawnetwork/lawnet/services/email"
	dummydb "github.com/lawnetwork/lawnet/storage/database/dummy"
)

const testAdminKey = "test-admin-key"

type testEnv struct {
	server    Server
	conf      *core.Config
	hub       *memorybroker.Hub
	accessSvc *access.Service
	subSvc    *submission.Service
	planRepo  access.PlanRepository
}

func testConf() *core.Config {
	return &core.Config{
		TestMode:         true,
		Env:              "TEST",
		AppName:          "LawNetwork",
		AdminKey:         testAdminKey,
		DefaultFromEmail: mail.Address{Name: "LawNetwork", Address: "noreply@localhost"},
		Server: core.ServerConfig{
			Addr:              ":0",
			ShutdownTimeout:   time.Second,
			HeartbeatInterval: time.Minute,
			EventQueueSize:    16,
		},
	}
}

func newTestTranslator(t *testing.T) ut.Translator {
	t.Helper()
	en := en_locale.New()
	translator, ok := ut.New(en, en).GetTranslator("en")
	if !ok {
		t.Fatal("en translator not found")
	}
	return translator
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	conf := testConf()

	hub := memorybroker.NewHub(conf.Server.EventQueueSize)
	t.Cleanup(func() { _ = hub.Close() })

	planRepo := dummydb.NewPlanRepository(db)
	accessSvc := access.NewService(dummydb.NewGrantRepository(db))
	subSvc := submission.NewService(
		dummydb.NewSubmissionRepository(db), accessSvc, planRepo,
		dummydb.NewSettingsRepository(db), hub,
		emailsvc.NewConsoleServiceMock(conf), conf, core.NopLogger{},
	)

	validate := validator.New()
	translator := newTestTranslator(t)
	core.InitValidators(validate, translator, access.FeatureKinds)

	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         core.NopLogger{},
		AccessSvc:      accessSvc,
		SubmissionSvc:  subSvc,
		PlanRepo:       planRepo,
		Broker:         hub,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})

	return &testEnv{
		server:    server,
		conf:      conf,
		hub:       hub,
		accessSvc: accessSvc,
		subSvc:    subSvc,
		planRepo:  planRepo,
	}
}

func newAdminRequest(method, path, adminKey string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if adminKey != "" {
		req.Header.Set(adminKeyHeader, adminKey)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAdminRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	adminKey string
	wantCode int
	wantData []byte
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func createSubmission(t *testing.T, env *testEnv, subject, feature, featureID, tier string) submission.Submission {
	t.Helper()
	sub, _, err := env.subSvc.Create(context.Background(), submission.NewSubmission{
		Subject:   subject,
		Feature:   feature,
		FeatureID: featureID,
		PlanTier:  tier,
		ProofRef:  "mpesa-ref-123",
	})
	if err != nil {
		t.Fatalf("createSubmission() failed: %v", err)
	}
	return sub
}
