package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 200 {
		code, err := NewOrderCode()
		require.NoError(t, err)
		assert.Regexp(t, `^PRIME-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`, code)
		assert.True(t, ValidOrderCode(code))
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestOrderTotal(t *testing.T) {
	pkg := Package{Name: "10M Package", Price: decimal.RequireFromString("24.99")}
	assert.Equal(t, "36.69", OrderTotal(pkg, decimal.RequireFromString("11.70")).StringFixed(2))

	discounted := decimal.RequireFromString("55.90")
	pkg.DiscountedPrice = &discounted
	assert.Equal(t, "67.60", OrderTotal(pkg, decimal.RequireFromString("11.70")).StringFixed(2))
}

func TestTimestamp_JSON(t *testing.T) {
	t.Run("iso string", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`"2024-03-01T10:20:30.123Z"`), &ts))
		assert.Equal(t, time.Date(2024, 3, 1, 10, 20, 30, 123_000_000, time.UTC), ts.Time)

		out, err := json.Marshal(ts)
		require.NoError(t, err)
		assert.Equal(t, `"2024-03-01T10:20:30.123Z"`, string(out))
	})

	t.Run("epoch millis", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`1709288430123`), &ts))
		assert.Equal(t, int64(1709288430123), ts.UnixMilli())
	})

	t.Run("garbage becomes zero", func(t *testing.T) {
		for _, raw := range []string{`null`, `"yesterday"`, `{}`, `true`} {
			ts := NewTimestamp(time.Now())
			require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
			assert.True(t, ts.IsZero(), raw)
		}
	})

	t.Run("zero marshals as null", func(t *testing.T) {
		out, err := json.Marshal(Timestamp{})
		require.NoError(t, err)
		assert.Equal(t, "null", string(out))
	})
}

func TestOrder_JSONShape(t *testing.T) {
	order := Order{
		OrderCode: "PRIME-AAAA-BBBB-CCCC",
		Timestamp: NewTimestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
		Status:    StatusPending,
		Package:   Package{Name: "10M Package", Price: decimal.RequireFromString("24.99")},
		Shipping:  Shipping{Method: ShippingStandard, MethodPrice: decimal.RequireFromString("11.70")},
		Payment:   Payment{Method: "crypto", Total: decimal.RequireFromString("36.69")},
	}

	out, err := json.Marshal(order)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.NotContains(t, doc, "id")
	assert.NotContains(t, doc, "coupon")
	assert.Contains(t, doc, "cancelReason")
	assert.Nil(t, doc["cancelReason"])
	assert.Equal(t, 24.99, doc["package"].(map[string]any)["price"])
	assert.Equal(t, "2024-01-02T03:04:05.000Z", doc["timestamp"])
}

func TestPersonalInfo_Display(t *testing.T) {
	info := PersonalInfo{FullName: "Ana Lima", Telegram: " "}.Display()
	assert.Equal(t, "Ana Lima", info.FullName)
	assert.Equal(t, "N/A", info.Email)
	assert.Equal(t, "N/A", info.Phone)
	assert.Equal(t, "N/A", info.Telegram)
}
