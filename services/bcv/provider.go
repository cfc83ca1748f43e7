// Package bcvrate scrapes the official USD exchange rate from the Banco Central de Venezuela website.
package bcvrate

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/trezcool/colegio/core"
)

var errRateNotFound = errors.New("bcv: usd rate not found in page")

type Provider struct {
	url    string
	client *http.Client
}

func NewProvider(conf *core.Config) *Provider {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if conf.Billing.InsecureTLS {
		// the bank's certificate chain is frequently incomplete
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Provider{
		url:    conf.Billing.RateURL,
		client: &http.Client{Transport: transport, Timeout: conf.Billing.RateTimeout},
	}
}

// CurrentRate returns the Bs per USD rate published on the bank's home page.
func (p *Provider) CurrentRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "bcv: building request")
	}
	res, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "bcv: fetching page")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return decimal.Zero, errors.Errorf("bcv: unexpected status %d", res.StatusCode)
	}
	return parseRate(res.Body)
}

// parseRate reads the text of the first <strong> inside <div id="dolar">,
// e.g. "36,1234" or "1.234,56".
func parseRate(r io.Reader) (decimal.Decimal, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "bcv: parsing page")
	}
	div := findNode(doc, func(n *html.Node) bool { return n.Data == "div" && attr(n, "id") == "dolar" })
	if div == nil {
		return decimal.Zero, errRateNotFound
	}
	strong := findNode(div, func(n *html.Node) bool { return n.Data == "strong" })
	if strong == nil {
		return decimal.Zero, errRateNotFound
	}

	txt := strings.TrimSpace(textContent(strong))
	if strings.Contains(txt, ",") {
		txt = strings.ReplaceAll(txt, ".", "") // thousands separator
		txt = strings.ReplaceAll(txt, ",", ".")
	}
	rate, err := decimal.NewFromString(txt)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "bcv: parsing rate %q", txt)
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.Errorf("bcv: invalid rate %s", rate)
	}
	return rate, nil
}

// findNode returns the first element node (depth-first) matching fn.
func findNode(n *html.Node, fn func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && fn(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, fn); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
