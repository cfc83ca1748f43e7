package echoapi

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/user"
	"github.com/trezcool/colegio/tests"
)

func proofPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.NRGBA{G: 180, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newPaymentRequest builds the multipart form sent by the payment report page.
func newPaymentRequest(t *testing.T, token string, fields map[string]string, proof []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if proof != nil {
		fw, err := w.CreateFormFile(proofFormField, "comprobante.png")
		require.NoError(t, err)
		_, err = fw.Write(proof)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/payments", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func decodeQuote(t *testing.T, rec *httptest.ResponseRecorder) billing.RateQuote {
	t.Helper()
	var quote billing.RateQuote
	decodeBody(t, rec, &quote)
	return quote
}

func Test_billingApi_currentRate(t *testing.T) {
	app := setup(t)

	t.Run("live", func(t *testing.T) {
		rec := app.do(httpTest{path: "/v1/rates/current"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		quote := decodeQuote(t, rec)
		assert.Equal(t, billing.SourceLive, quote.Source)
		assert.Equal(t, "36.12", quote.Rate.String())

		// a second identical quote is not stored twice
		app.do(httpTest{path: "/v1/rates/current"})
		rates, err := app.billRepo.QueryRates(context.Background(), 0)
		require.NoError(t, err)
		assert.Len(t, rates, 1)
	})

	t.Run("stored when the provider is down", func(t *testing.T) {
		app.rates.rate = decimal.Zero
		rec := app.do(httpTest{path: "/v1/rates/current"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		quote := decodeQuote(t, rec)
		assert.Equal(t, billing.SourceStored, quote.Source)
		assert.Equal(t, "36.12", quote.Rate.String())
	})

	t.Run("configured fallback", func(t *testing.T) {
		fresh := setup(t)
		fresh.rates.rate = decimal.Zero
		rec := fresh.do(httpTest{path: "/v1/rates/current"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		quote := decodeQuote(t, rec)
		assert.Equal(t, billing.SourceFallback, quote.Source)
		assert.True(t, quote.Rate.Equal(fresh.conf.Billing.FallbackRate), quote.Rate)
	})
}

func Test_billingApi_queryRates(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	older := testutil.CreateRate(t, app.billRepo, academic.NewDate(2024, time.October, 1), "35.90")
	newer := testutil.CreateRate(t, app.billRepo, academic.NewDate(2024, time.October, 2), "36.01")
	clerkToken := getToken(t, app, s.clerk)

	runHTTPTests(t, app, []httpTest{
		{name: "Auth required", path: "/v1/rates", wantCode: http.StatusUnauthorized},
		{name: "Staff required", path: "/v1/rates", token: getToken(t, app, s.rep), wantCode: http.StatusForbidden},
		{name: "newest first", path: "/v1/rates", token: clerkToken, wantCode: http.StatusOK, wantData: marshallList(t, newer, older)},
		{name: "limit", path: "/v1/rates?limit=1", token: clerkToken, wantCode: http.StatusOK, wantData: marshallList(t, newer)},
		{name: "bad limit", path: "/v1/rates?limit=abc", token: clerkToken, wantCode: http.StatusOK, wantData: marshallList(t, newer, older)},
	})
}

func Test_billingApi_concepts(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	tuition := testutil.CreateConcept(t, app.billRepo, "Mensualidad Octubre", "40")
	clerkToken := getToken(t, app, s.clerk)

	runHTTPTests(t, app, []httpTest{
		{name: "Auth required", path: "/v1/payment-concepts", wantCode: http.StatusUnauthorized},
		{name: "representatives can read", path: "/v1/payment-concepts", token: getToken(t, app, s.rep), wantCode: http.StatusOK, wantData: marshallList(t, tuition)},
		{
			name: "representatives cannot create", method: http.MethodPost, path: "/v1/payment-concepts", token: getToken(t, app, s.rep),
			body: []byte(`{"name":"Inscripción","amount_usd":"80"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "amount must be positive", method: http.MethodPost, path: "/v1/payment-concepts", token: clerkToken,
			body: []byte(`{"name":"Inscripción","amount_usd":"0"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "create", method: http.MethodPost, path: "/v1/payment-concepts", token: clerkToken,
			body: []byte(`{"name":" Inscripción ","amount_usd":"80.50"}`), wantCode: http.StatusCreated,
		},
		{
			name: "update", method: http.MethodPut, path: "/v1/payment-concepts/" + tuition.ID, token: clerkToken,
			body: []byte(`{"amount_usd":"45"}`), wantCode: http.StatusOK,
		},
		{name: "retrieve", path: "/v1/payment-concepts/" + tuition.ID, token: clerkToken, wantCode: http.StatusOK},
		{name: "delete", method: http.MethodDelete, path: "/v1/payment-concepts/" + tuition.ID, token: clerkToken, wantCode: http.StatusNoContent},
		{
			name: "deleted", path: "/v1/payment-concepts/" + tuition.ID, token: clerkToken, wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "payment concept not found"}),
		},
	})

	concepts, err := app.billRepo.QueryConcepts(context.Background())
	require.NoError(t, err)
	require.Len(t, concepts, 1)
	assert.Equal(t, "Inscripción", concepts[0].Name)
	assert.Equal(t, "80.5", concepts[0].AmountUSD.String())
}

func Test_billingApi_reportPayment(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	tuition := testutil.CreateConcept(t, app.billRepo, "Mensualidad Octubre", "40")
	repToken := getToken(t, app, s.rep)

	fields := func(studentID string, extra ...string) map[string]string {
		f := map[string]string{"student_id": studentID, "reference_number": " 00123456 ", "amount_usd": "25.50", "concept": "Mensualidad"}
		for i := 0; i+1 < len(extra); i += 2 {
			f[extra[i]] = extra[i+1]
		}
		return f
	}

	tests := []struct {
		name      string
		token     string
		fields    map[string]string
		proof     []byte
		wantCode  int
		wantField string
	}{
		{name: "teachers cannot report", token: getToken(t, app, s.teacherUsr), fields: fields(s.ana.ID), proof: proofPNG(t), wantCode: http.StatusForbidden},
		{name: "proof is required", token: repToken, fields: fields(s.ana.ID), wantCode: http.StatusBadRequest, wantField: "proof_image"},
		{name: "proof must be an image", token: repToken, fields: fields(s.ana.ID), proof: []byte("%PDF-1.4 not an image"), wantCode: http.StatusBadRequest, wantField: "proof_image"},
		{name: "reference is required", token: repToken, fields: fields(s.ana.ID, "reference_number", " "), proof: proofPNG(t), wantCode: http.StatusBadRequest, wantField: "reference_number"},
		{name: "bad amount", token: repToken, fields: fields(s.ana.ID, "amount_usd", "veinte"), proof: proofPNG(t), wantCode: http.StatusBadRequest, wantField: "amount_usd"},
		{name: "amount or concept required", token: repToken, fields: fields(s.ana.ID, "amount_usd", ""), proof: proofPNG(t), wantCode: http.StatusBadRequest, wantField: "amount_usd"},
		{name: "bad RIF", token: repToken, fields: fields(s.ana.ID, "billing_id", "12-ABC"), proof: proofPNG(t), wantCode: http.StatusBadRequest, wantField: "billing_id"},
		{name: "someone else's child", token: repToken, fields: fields(s.luis.ID), proof: proofPNG(t), wantCode: http.StatusBadRequest, wantField: "student_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newPaymentRequest(t, tt.token, tt.fields, tt.proof)
			app.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantField != "" {
				var errs map[string]string
				decodeBody(t, rec, &errs)
				assert.Contains(t, errs, tt.wantField)
			}
		})
	}

	t.Run("reported at the live rate", func(t *testing.T) {
		req, rec := newPaymentRequest(t, repToken, fields(s.ana.ID), proofPNG(t))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var p billing.Payment
		decodeBody(t, rec, &p)
		assert.Equal(t, billing.StatusPending, p.Status)
		assert.Equal(t, "00123456", p.ReferenceNumber)
		assert.Equal(t, "36.12", p.RateApplied.String())
		assert.Equal(t, "921.06", p.AmountBs.String())
		assert.Equal(t, s.rep.Email, p.RepresentativeEmail)
		assert.FileExists(t, filepath.Join(app.conf.Storage.MediaRoot, filepath.FromSlash(p.ProofImage)))

		proofReq, proofRec := newAuthRequest(http.MethodGet, "/v1/payments/"+p.ID+"/proof", repToken)
		app.ServeHTTP(proofRec, proofReq)
		require.Equal(t, http.StatusOK, proofRec.Code)
		assert.Equal(t, proofPNG(t), proofRec.Body.Bytes())
	})

	t.Run("amount & concept default to the payment concept's", func(t *testing.T) {
		req, rec := newPaymentRequest(
			t, getToken(t, app, s.clerk),
			map[string]string{"student_id": s.luis.ID, "reference_number": "998877", "payment_concept_id": tuition.ID},
			proofPNG(t),
		)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var p billing.Payment
		decodeBody(t, rec, &p)
		assert.Equal(t, "40", p.AmountUSD.String())
		assert.Equal(t, "1444.8", p.AmountBs.String())
		assert.Equal(t, tuition.Name, p.Concept)
		assert.Equal(t, tuition.Name, p.PaymentConceptName.String)
	})
}

func Test_billingApi_payments(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	anaPayment := testutil.CreatePayment(t, app.billRepo, s.ana, "111", "30", "36.00")
	luisPayment := testutil.CreatePayment(t, app.billRepo, s.luis, "222", "30", "36.00")
	repToken := getToken(t, app, s.rep)
	clerkToken := getToken(t, app, s.clerk)

	reviewPath := "/v1/payments/" + anaPayment.ID + "/review"
	runHTTPTests(t, app, []httpTest{
		{name: "representative sees own", path: "/v1/payments", token: repToken, wantCode: http.StatusOK, wantData: marshallList(t, anaPayment)},
		{name: "filter by status", path: "/v1/payments?status=VERIFIED", token: clerkToken, wantCode: http.StatusOK, wantData: marshallList(t)},
		{name: "filter by student", path: "/v1/payments?student_id=" + s.luis.ID, token: clerkToken, wantCode: http.StatusOK, wantData: marshallList(t, luisPayment)},
		{
			name: "someone else's payment", path: "/v1/payments/" + luisPayment.ID, token: repToken, wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "payment not found"}),
		},
		{name: "missing proof file", path: "/v1/payments/" + anaPayment.ID + "/proof", token: repToken, wantCode: http.StatusNotFound},
		{
			name: "representatives cannot review", method: http.MethodPost, path: reviewPath, token: repToken,
			body: []byte(`{"status":"VERIFIED"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown status", method: http.MethodPost, path: reviewPath, token: clerkToken,
			body: []byte(`{"status":"PAID"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "reviewing back to pending", method: http.MethodPost, path: reviewPath, token: clerkToken,
			body: []byte(`{"status":"PENDING"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "verify", method: http.MethodPost, path: reviewPath, token: clerkToken,
			body: []byte(`{"status":"VERIFIED","admin_note":" Recibido, gracias "}`), wantCode: http.StatusOK,
		},
		{
			name: "already reviewed", method: http.MethodPost, path: reviewPath, token: clerkToken,
			body: []byte(`{"status":"REJECTED"}`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"status": billing.ErrAlreadyReviewed.Error()}),
		},
	})

	p, err := app.billRepo.GetPayment(context.Background(), user.Scope{Kind: user.ScopeStaff}, anaPayment.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusVerified, p.Status)
	assert.Equal(t, "Recibido, gracias", p.AdminNote.String)

	sent := app.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, s.rep.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].Subject, "Aprobado")
	assert.Contains(t, sent[0].TextContent, "Nota: Recibido, gracias")
}

func Test_billingApi_proofOutsideMediaRoot(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	p := testutil.CreatePayment(t, app.billRepo, s.ana, "333", "10", "36.00")
	p.ProofImage = "../../etc/passwd"
	_, err := app.billRepo.UpdatePayment(context.Background(), p)
	require.NoError(t, err)

	req, rec := newAuthRequest(http.MethodGet, "/v1/payments/"+p.ID+"/proof", getToken(t, app, s.rep))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
