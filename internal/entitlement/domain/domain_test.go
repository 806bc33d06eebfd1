package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratedClient(t *testing.T) {
	client, err := NewGeneratedClient()
	require.NoError(t, err)
	assert.Len(t, client.CID, CIDMaxLength)
	assert.Equal(t, ClientKindGenerated, client.Kind)
	assert.NoError(t, ValidateCID(client.CID))

	other, err := NewGeneratedClient()
	require.NoError(t, err)
	assert.NotEqual(t, client.CID, other.CID)
}

func TestValidateCID(t *testing.T) {
	tests := []struct {
		name    string
		cid     string
		wantErr error
	}{
		{"generated hex cid", "5f4dcc3b5aa765d61d8327deb882cf995f4dcc3b5aa765d61d8327deb882cf99", nil},
		{"provider obfuscated id", "obf-account-0123456789abcdef0123456789abcdef", nil},
		{"too short", "short-id", ErrInvalidClientID},
		{"too long", string(make([]byte, 65)), ErrInvalidClientID},
		{"contains whitespace", "0123456789abcdef 0123456789abcdef", ErrInvalidClientID},
		{"empty", "", ErrInvalidClientID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCID(tt.cid)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSizePlan(t *testing.T) {
	now := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		expiry     time.Time
		testMode   bool
		wantPeriod PlanPeriod
		wantRepeat int
		wantErr    error
	}{
		{"400 days out sizes as one year", now.AddDate(0, 0, 400), false, PlanYear, 1, nil},
		{"14 months out sizes as one year", now.AddDate(0, 14, 0), false, PlanYear, 1, nil},
		{"3 months out sizes as three months", now.AddDate(0, 3, 0), false, PlanMonth, 3, nil},
		{"20 days out sizes as one month", now.AddDate(0, 0, 20), false, PlanMonth, 1, nil},
		{"expired yesterday is a hard failure", now.AddDate(0, 0, -1), false, PlanUnknown, 0, ErrExpiryInPast},
		{"one day out rejected outside test mode", now.AddDate(0, 0, 1), false, PlanUnknown, 0, ErrPlanUnsizable},
		{"one day out allowed in test mode", now.AddDate(0, 0, 1), true, PlanMonth, 1, nil},
		{"five days out rejected", now.AddDate(0, 0, 5), false, PlanUnknown, 0, ErrPlanUnsizable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			period, repeat, err := SizePlan(now, tt.expiry, tt.testMode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPeriod, period)
			assert.Equal(t, tt.wantRepeat, repeat)
		})
	}
}

func TestIntentForBasePlan(t *testing.T) {
	completed := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	t.Run("one month plan", func(t *testing.T) {
		intent, err := IntentForBasePlan("vpn-pass", "1-month", completed)
		require.NoError(t, err)
		assert.Equal(t, PlanMonth, intent.Period)
		assert.Equal(t, completed.AddDate(0, 1, 0), intent.Expiry)
		assert.Equal(t, 3, intent.RefundWindowDays)
	})

	t.Run("five year plan", func(t *testing.T) {
		intent, err := IntentForBasePlan("vpn-pass", "5-year", completed)
		require.NoError(t, err)
		assert.Equal(t, PlanYear, intent.Period)
		assert.Equal(t, completed.AddDate(5, 0, 0), intent.Expiry)
		assert.Equal(t, 28, intent.RefundWindowDays)
	})

	t.Run("unknown base plan", func(t *testing.T) {
		_, err := IntentForBasePlan("vpn-pass", "lifetime", completed)
		assert.ErrorIs(t, err, ErrUnknownBasePlan)
	})
}

func TestEntitlementIsValid(t *testing.T) {
	assert.True(t, (&Entitlement{Status: StatusValid}).IsValid())
	assert.False(t, (&Entitlement{Status: StatusExpired}).IsValid())
	assert.False(t, (&Entitlement{Status: StatusBanned}).IsValid())
	var nilEnt *Entitlement
	assert.False(t, nilEnt.IsValid())
}
