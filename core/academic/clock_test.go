package academic

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "08:00", want: NewClock(8, 0)},
		{in: "8:05", want: NewClock(8, 5)},
		{in: "23:59", want: NewClock(23, 59)},
		{in: "13:45:30", want: NewClock(13, 45)},
		{in: " 07:30 ", want: NewClock(7, 30)},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClock_JSON(t *testing.T) {
	var payload struct {
		Start Clock `json:"start"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"09:15"}`), &payload))
	assert.Equal(t, NewClock(9, 15), payload.Start)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"09:15"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"start":915}`), &payload))
}

func TestClock_Scan(t *testing.T) {
	var c Clock
	require.NoError(t, c.Scan([]byte("14:30:00")))
	assert.Equal(t, NewClock(14, 30), c)

	require.NoError(t, c.Scan("07:05:00.000000"))
	assert.Equal(t, NewClock(7, 5), c)

	require.NoError(t, c.Scan(time.Date(0, 1, 1, 16, 45, 0, 0, time.UTC)))
	assert.Equal(t, NewClock(16, 45), c)

	assert.Error(t, c.Scan(42))

	v, err := NewClock(9, 0).Value()
	require.NoError(t, err)
	assert.Equal(t, "09:00:00", v)
}

func TestDay_Valid(t *testing.T) {
	for _, d := range Weekdays {
		assert.True(t, d.Valid(), d)
	}
	assert.False(t, Day("Sábado").Valid())
	assert.False(t, Day("lunes").Valid())
}

func TestDate_JSON(t *testing.T) {
	var payload struct {
		Birth Date `json:"birth"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"birth":"2012-03-09"}`), &payload))
	assert.Equal(t, NewDate(2012, time.March, 9), payload.Birth)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"birth":"2012-03-09"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"birth":"09/03/2012"}`), &payload))
}

func TestDay_Index(t *testing.T) {
	assert.Equal(t, 0, Monday.Index())
	assert.Equal(t, 4, Friday.Index())
	assert.Equal(t, -1, Day("Domingo").Index())
}
