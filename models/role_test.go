package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"OWNER", RoleOwner, false},
		{"admin", RoleAdmin, false},
		{" Member ", RoleMember, false},
		{"VIEWER", RoleViewer, false},
		{"SUPERUSER", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleValueAndScan(t *testing.T) {
	v, err := RoleAdmin.Value()
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", v)

	var r Role
	require.NoError(t, r.Scan([]byte("OWNER")))
	assert.Equal(t, RoleOwner, r)

	assert.Error(t, r.Scan("ROOT"))
	assert.Error(t, r.Scan(42))

	_, err = Role(0).Value()
	assert.Error(t, err, "the zero role must never reach the database")
}

func TestRoleJSONRejectsUnknownNames(t *testing.T) {
	var m struct {
		Role Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":"viewer"}`), &m))
	assert.Equal(t, RoleViewer, m.Role)

	assert.Error(t, json.Unmarshal([]byte(`{"role":"GOD"}`), &m))

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"VIEWER"}`, string(out))
}

func TestBillingIntervalNext(t *testing.T) {
	start := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC), IntervalMonthly.Next(start))
	assert.Equal(t, time.Date(2027, 1, 15, 10, 0, 0, 0, time.UTC), IntervalYearly.Next(start))
	assert.True(t, IntervalMonthly.Valid())
	assert.False(t, BillingInterval("weekly").Valid())
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, InvoicePending.Payable())
	assert.True(t, InvoiceOverdue.Payable())
	assert.False(t, InvoicePaid.Payable())
	assert.True(t, SubscriptionPastDue.Valid())
	assert.False(t, SubscriptionStatus("PENDING").Valid())
}
