package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/user"
	"github.com/trezcool/colegio/services/email"
	"github.com/trezcool/colegio/services/filestore"
	"github.com/trezcool/colegio/services/logger"
	"github.com/trezcool/colegio/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// rateProviderMock quotes a fixed rate, or fails when rate is zero.
type rateProviderMock struct {
	rate decimal.Decimal
}

func (p *rateProviderMock) CurrentRate(context.Context) (decimal.Decimal, error) {
	if p.rate.IsZero() {
		return decimal.Zero, errors.New("bcv unreachable")
	}
	return p.rate, nil
}

type testApp struct {
	*Server
	conf     *core.Config
	usrRepo  user.Repository
	acadRepo academic.Repository
	billRepo billing.Repository
	mailSvc  *emailsvc.ConsoleServiceMock
	rates    *rateProviderMock
}

func setup(t *testing.T) *testApp {
	conf := core.NewTestConfig()
	conf.Storage.MediaRoot = t.TempDir()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	academic.InitValidators(validate, translator)

	// set up DB & repos
	db := inmemdb.Open()
	app := &testApp{
		conf:     conf,
		usrRepo:  inmemdb.NewUserRepository(db),
		acadRepo: inmemdb.NewAcademicRepository(db),
		billRepo: inmemdb.NewBillingRepository(db),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf, logger),
		rates:    &rateProviderMock{rate: decimal.RequireFromString("36.1234")},
	}

	// set up services
	usrSvc := user.NewServiceMock(app.usrRepo, app.mailSvc, conf)
	acadSvc := academic.NewService(app.acadRepo, usrSvc, app.mailSvc)
	billSvc := billing.NewService(app.billRepo, app.rates, filestore.NewLocalStore(conf), acadSvc, app.mailSvc, logger, conf)

	// set up server
	app.Server = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		AcademicSvc:    acadSvc,
		BillingSvc:     billSvc,
		DisableReqLogs: true,
	})
	return app
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

func (app *testApp) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, app *testApp, usr user.User) string {
	token, err := app.auth.userToken(usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func marshallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshallList() failed: %v", err)
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
	if !assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String()) || tt.wantData == nil {
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

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decodeBody() failed: %v; body %s", err, rec.Body.String())
	}
}
