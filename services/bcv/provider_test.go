package bcvrate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core"
)

const bcvPage = `<html><body>
<div id="euro"><div class="field-content"><div class="row recuadrotsmc">
  <div class="col-sm-6 col-xs-6"><span> EUR </span></div>
  <div class="col-sm-6 col-xs-6 centrado"><strong> 39,80530000 </strong></div>
</div></div></div>
<div id="dolar"><div class="field-content"><div class="row recuadrotsmc">
  <div class="col-sm-6 col-xs-6"><span> USD </span></div>
  <div class="col-sm-6 col-xs-6 centrado"><strong> 36,12340000 </strong></div>
</div></div></div>
</body></html>`

func TestParseRate(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr bool
	}{
		{name: "comma decimal", page: bcvPage, want: "36.1234"},
		{name: "thousands separator", page: `<div id="dolar"><strong>1.234,56</strong></div>`, want: "1234.56"},
		{name: "dot decimal", page: `<div id="dolar"><p><strong> 36.50 </strong></p></div>`, want: "36.5"},
		{name: "nested text", page: `<div id="dolar"><strong><span>36</span>,50</strong></div>`, want: "36.5"},
		{name: "no dolar div", page: `<div id="euro"><strong>39,80</strong></div>`, wantErr: true},
		{name: "no strong", page: `<div id="dolar"><span>36,50</span></div>`, wantErr: true},
		{name: "not a number", page: `<div id="dolar"><strong>N/D</strong></div>`, wantErr: true},
		{name: "zero", page: `<div id="dolar"><strong>0,00</strong></div>`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRate(strings.NewReader(tt.page))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestProvider_CurrentRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(bcvPage))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(bcvPage))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	conf := core.NewTestConfig()
	conf.Billing.RateTimeout = 50 * time.Millisecond

	conf.Billing.RateURL = srv.URL + "/"
	rate, err := NewProvider(conf).CurrentRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "36.1234", rate.String())

	conf.Billing.RateURL = srv.URL + "/down"
	_, err = NewProvider(conf).CurrentRate(context.Background())
	assert.Error(t, err)

	conf.Billing.RateURL = srv.URL + "/slow"
	_, err = NewProvider(conf).CurrentRate(context.Background())
	assert.Error(t, err, "times out")
}
