package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htmlPage(t *testing.T, rawURL string, body string) *Page {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &Page{
		URL:         u,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
	}
}

func TestGenericExtractCards(t *testing.T) {
	body := `<html><body>
		<div class="product-item" data-product-id="A-100">
			<h2 class="product-title">Wool Scarf</h2>
			<span class="price">$24.50</span>
			<a href="/products/wool-scarf"><img src="/img/scarf.jpg"></a>
		</div>
		<div class="product-item">
			<h2 class="product-title">Canvas Tote</h2>
			<span class="price">€ 1,299.00</span>
			<a href="/products/canvas-tote"></a>
		</div>
		<div class="product-item">
			<span class="price">$9.99</span>
		</div>
		<a href="/collections/winter">Winter</a>
		<a href="https://elsewhere.com/x">offsite</a>
	</body></html>`

	s := NewGenericStrategy()
	res, err := s.Extract(htmlPage(t, "https://store.example.com/shop", body))
	require.NoError(t, err)

	// The card without a name is discarded.
	require.Len(t, res.Products, 2)

	scarf := res.Products[0]
	assert.Equal(t, "Wool Scarf", scarf.Name)
	assert.Equal(t, "A-100", scarf.SKU)
	require.NotNil(t, scarf.Price)
	assert.InDelta(t, 24.50, *scarf.Price, 0.001)
	assert.Equal(t, "USD", scarf.Currency)
	assert.Equal(t, "https://store.example.com/products/wool-scarf", scarf.URL)
	assert.Equal(t, []string{"https://store.example.com/img/scarf.jpg"}, scarf.Images)

	tote := res.Products[1]
	require.NotNil(t, tote.Price)
	assert.InDelta(t, 1299.00, *tote.Price, 0.001)
	assert.Equal(t, "EUR", tote.Currency)

	assert.Contains(t, res.Links, "https://store.example.com/collections/winter")
	assert.Contains(t, res.Links, "https://store.example.com/products/wool-scarf")
	assert.NotContains(t, res.Links, "https://elsewhere.com/x")
}

func TestGenericExtractMissingPriceKept(t *testing.T) {
	body := `<html><body>
		<div class="product-card">
			<h3 class="product-name">Mystery Box</h3>
		</div>
	</body></html>`

	res, err := NewGenericStrategy().Extract(htmlPage(t, "https://store.example.com/", body))
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "Mystery Box", res.Products[0].Name)
	assert.Nil(t, res.Products[0].Price)
}

func TestGenericExtractDetailPage(t *testing.T) {
	body := `<html><head>
		<meta property="og:type" content="product">
		<meta property="og:title" content="Enamel Mug">
		<meta property="og:description" content="A sturdy camping mug.">
		<meta property="og:image" content="https://store.example.com/img/mug.jpg">
		<meta property="product:price:amount" content="18.00">
	</head><body><h1>Enamel Mug</h1></body></html>`

	res, err := NewGenericStrategy().Extract(htmlPage(t, "https://store.example.com/products/enamel-mug", body))
	require.NoError(t, err)
	require.Len(t, res.Products, 1)

	c := res.Products[0]
	assert.Equal(t, "Enamel Mug", c.Name)
	assert.Equal(t, "A sturdy camping mug.", c.Description)
	require.NotNil(t, c.Price)
	assert.InDelta(t, 18.00, *c.Price, 0.001)
	assert.Equal(t, "https://store.example.com/products/enamel-mug", c.URL)
	assert.Equal(t, []string{"https://store.example.com/img/mug.jpg"}, c.Images)
}

func TestGenericExtractNonProductPage(t *testing.T) {
	body := `<html><body>
		<p>About our store.</p>
		<a href="/shop">Shop</a>
	</body></html>`

	res, err := NewGenericStrategy().Extract(htmlPage(t, "https://store.example.com/about", body))
	require.NoError(t, err)
	assert.Empty(t, res.Products)
	assert.Equal(t, []string{"https://store.example.com/shop"}, res.Links)
}

func TestGenericExtractNonHTML(t *testing.T) {
	page := &Page{
		URL:         mustParse(t, "https://store.example.com/feed.xml"),
		ContentType: "application/xml",
		Body:        []byte("<rss/>"),
	}
	res, err := NewGenericStrategy().Extract(page)
	require.NoError(t, err)
	assert.Empty(t, res.Products)
	assert.Empty(t, res.Links)
}

func TestParsePriceText(t *testing.T) {
	cases := []struct {
		in       string
		price    float64
		currency string
		ok       bool
	}{
		{"$24.50", 24.50, "USD", true},
		{"Sale: £10", 10, "GBP", true},
		{"€ 1,299.00", 1299, "EUR", true},
		{"free shipping", 0, "", false},
		{"$0", 0, "", false},
	}
	for _, tc := range cases {
		price, currency, ok := parsePriceText(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.InDelta(t, tc.price, price, 0.001, tc.in)
			assert.Equal(t, tc.currency, currency, tc.in)
		}
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
