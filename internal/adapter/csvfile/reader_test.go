package csvfile_test

import (
	"strings"
	"testing"

	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadObservations_Daily(t *testing.T) {
	g, obs, err := csvfile.ReadObservations(strings.NewReader(wantDaily))
	require.NoError(t, err)

	assert.Equal(t, domain.Daily, g)
	require.Len(t, obs, 4)
	assert.Equal(t, "A", obs[0].Region)
	assert.Equal(t, "2020-01-01", obs[0].Period.Label())
	require.NotNil(t, obs[0].Value)
	assert.InDelta(t, 3.0, *obs[0].Value, 1e-9)
	assert.True(t, obs[1].Missing())
	assert.Equal(t, dayPeriod(2020, 1, 2), obs[3].Period)
}

func TestReadObservations_Monthly(t *testing.T) {
	g, obs, err := csvfile.ReadObservations(strings.NewReader("year,month,taluka,rainfall_mm\n2009,3,Ajra,812.4\n2009,4,Ajra,\n"))
	require.NoError(t, err)

	assert.Equal(t, domain.Monthly, g)
	require.Len(t, obs, 2)
	assert.Equal(t, monthPeriod(2009, 3), obs[0].Period)
	assert.True(t, obs[1].Missing())
}

func TestReadObservations_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "read header"},
		{"bad header", "day,region,mm\n", "unrecognized csv header"},
		{"bad date", "date,taluka,rainfall_mm\n2020-13-01,A,1.0\n", "line 2: invalid date"},
		{"bad value", "date,taluka,rainfall_mm\n2020-01-01,A,lots\n", "invalid rainfall_mm"},
		{"bad month", "year,month,taluka,rainfall_mm\n2020,13,A,1.0\n", "invalid month"},
		{"short row", "date,taluka,rainfall_mm\n2020-01-01,A\n", "line 2"},
		{"empty region", "date,taluka,rainfall_mm\n2020-01-01,,1.0\n", "empty taluka"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := csvfile.ReadObservations(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
