package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
	emailsvc "github.com/trezcool/masomo-admin/services/email"
	metricsvc "github.com/trezcool/masomo-admin/services/metrics"
	inmemdb "github.com/trezcool/masomo-admin/storage/database/inmem"
)

const testSecretKey = "secret"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	*Server
	conf     *core.Config
	ruleSvc  *featureswitch.Service
	registry *featureswitch.Registry
	mailSvc  *emailsvc.ConsoleServiceMock
}

func testConfig() *core.Config {
	conf := &core.Config{AppName: "Masomo", SecretKey: testSecretKey, TestMode: true}
	conf.Server.Address = ":0"
	conf.FeatureStatus.RootRole = featureswitch.RoleRoot
	conf.Mail.DefaultFromEmail = "noreply@masomo.test"
	conf.Mail.OpsEmail = "ops@masomo.test"
	return conf
}

// setup builds a server whose gate resolvers evaluate rules in-process.
// clientFor overrides the feature status client of every session.
func setup(t *testing.T, clientFor ...func(sess featureswitch.Session) featureswitch.Client) *testApp {
	conf := testConfig()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	ruleSvc := featureswitch.NewService(inmemdb.NewRuleRepository(inmemdb.Open()), mailSvc, conf.Mail.OpsEmail)

	newClient := func(sess featureswitch.Session) featureswitch.Client { return ruleSvc.ClientFor(sess.SchoolID) }
	if len(clientFor) > 0 {
		newClient = clientFor[0]
	}

	reg := prometheus.NewRegistry()
	metrics := metricsvc.NewProm("masomo", reg)
	registry := featureswitch.NewRegistry(func(sess featureswitch.Session) *featureswitch.Resolver {
		return featureswitch.NewResolver(
			newClient(sess),
			featureswitch.WithTimeout(time.Second),
			featureswitch.WithRootRole(conf.FeatureStatus.RootRole),
			featureswitch.WithMetrics(metrics),
		)
	}, time.Hour, metrics)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	featureswitch.InitValidators(validate, translator)

	server := NewServer(ServerDeps{
		Conf:           conf,
		RuleSvc:        ruleSvc,
		Registry:       registry,
		Metrics:        metrics,
		Gatherer:       reg,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return &testApp{Server: server, conf: conf, ruleSvc: ruleSvc, registry: registry, mailSvc: mailSvc}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, subject, schoolID, role string) string {
	token, err := GenerateToken(NewClaims("Masomo", subject, schoolID, role, time.Hour), testSecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func createRule(t *testing.T, svc *featureswitch.Service, nr featureswitch.NewRule) featureswitch.Rule {
	rule, err := svc.CreateRule(context.Background(), nr)
	if err != nil {
		t.Fatalf("createRule() failed: %v", err)
	}
	return rule
}
