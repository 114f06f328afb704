package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "usage-billing/internal/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		quotePackage, quoteCoupon, quoteFormat = "", "", "cli"
		checkoutPackage, checkoutPlan, checkoutCoupon, checkoutFormat = "", "", "", "cli"
		catalogFormat, couponFormat, statusFormat = "cli", "cli", "cli"
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "usage-billing version "+version)
}

func TestQuoteJSON(t *testing.T) {
	out, err := execute(t, "quote", "tokens", "15", "--format", "json")
	require.NoError(t, err)

	var got struct {
		Description string `json:"description"`
		Quote       struct {
			TotalPrice float64 `json:"total_price"`
		} `json:"quote"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "15 million tokens", got.Description)
	assert.Equal(t, 44.0, got.Quote.TotalPrice)
}

func TestQuoteRejectsOutOfRange(t *testing.T) {
	_, err := execute(t, "quote", "consultationHours", "101")
	assert.True(t, apperrors.IsType(err, apperrors.TypeInvalidQuantity))

	_, err = execute(t, "quote", "gpus", "1")
	assert.True(t, apperrors.IsType(err, apperrors.TypeInput))
}

func TestCatalogCLI(t *testing.T) {
	out, err := execute(t, "catalog", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "Pricing Catalog")
	assert.Contains(t, out, "dev-sprint")
}

func TestCheckoutAgainstGateway(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/validate-coupon":
			_, _ = w.Write([]byte(`{"valid":true,"discountPercent":25}`))
		case "/create-checkout-session":
			_ = json.NewDecoder(r.Body).Decode(&body)
			_, _ = w.Write([]byte(`{"checkoutUrl":"https://pay.example.com/c/cs_9","sessionId":"cs_9"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	t.Setenv("USAGE_BILLING_GATEWAY_BASE_URL", srv.URL)

	out, err := execute(t, "checkout", "tokens", "15", "--coupon", "launch25", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"session_id": "cs_9"`)

	assert.Equal(t, 4400.0, body["amountMinorUnits"])
	assert.Equal(t, "LAUNCH25", body["couponCode"])
	assert.Equal(t, "usd", body["currency"])
}

func TestCheckoutChargesInCatalogCurrency(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"checkoutUrl":"https://pay.example.com/c/cs_eur","sessionId":"cs_eur"}`))
	}))
	defer srv.Close()

	catalogPath := filepath.Join(t.TempDir(), "catalog.hcl")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`
currency = "eur"

resource "consultation_hours" {
  unit = "hour"
  min  = 1
  max  = 50

  tier {
    up_to = 5
    rate  = 70
  }
  tier {
    rate = 65
  }
}
`), 0600))
	t.Setenv("USAGE_BILLING_GATEWAY_BASE_URL", srv.URL)
	t.Setenv("USAGE_BILLING_PRICING_CATALOG_PATH", catalogPath)

	_, err := execute(t, "checkout", "consultationHours", "12", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "eur", body["currency"])
	assert.Equal(t, 80500.0, body["amountMinorUnits"])

	_, err = execute(t, "checkout", "tokens", "15", "--currency", "jpy")
	assert.Error(t, err, "the charge currency is not selectable")
}

func TestLoadCatalogValidatesBuiltIn(t *testing.T) {
	t.Setenv("USAGE_BILLING_PRICING_CATALOG_PATH", "")
	out, err := execute(t, "catalog", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"currency": "USD"`)

	_, err = execute(t, "catalog")
	require.NoError(t, err)

	t.Setenv("USAGE_BILLING_PRICING_CATALOG_PATH", filepath.Join(t.TempDir(), "missing.hcl"))
	_, err = execute(t, "catalog")
	assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
}
