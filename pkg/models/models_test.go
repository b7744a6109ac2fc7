package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendHistory(t *testing.T) {
	u := &User{Phone: "972500000001"}
	base := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 105; i++ {
		u.AppendHistory(HistoryRoleUser, "msg", base.Add(time.Duration(i)*time.Second), 100)
	}

	require.Len(t, u.ChatHistory, 100)
	// Oldest entries were dropped; ordering stays monotonic.
	assert.Equal(t, base.Add(5*time.Second), u.ChatHistory[0].Timestamp)
	for i := 1; i < len(u.ChatHistory); i++ {
		assert.False(t, u.ChatHistory[i].Timestamp.Before(u.ChatHistory[i-1].Timestamp))
	}
}

func TestRecentHistory(t *testing.T) {
	u := &User{}
	now := time.Now()
	for i := 0; i < 10; i++ {
		u.AppendHistory(HistoryRoleUser, "m", now, 100)
	}
	assert.Len(t, u.RecentHistory(5), 5)
	assert.Len(t, u.RecentHistory(50), 10)
}

func TestFingerprint(t *testing.T) {
	t.Run("label normalization collides", func(t *testing.T) {
		a := DriverRide{Origin: "תל-אביב", Destination: "באר שבע", Days: []string{"sunday"}, DepartureTime: "08:00"}
		b := DriverRide{Origin: "תל אביב", Destination: "באר  שבע", Days: []string{"sunday"}, DepartureTime: "08:00"}
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("different time differs", func(t *testing.T) {
		a := DriverRide{Origin: "א", Destination: "ב", Days: []string{"sunday"}, DepartureTime: "08:00"}
		b := DriverRide{Origin: "א", Destination: "ב", Days: []string{"sunday"}, DepartureTime: "09:00"}
		assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("roles never collide", func(t *testing.T) {
		r := DriverRide{Origin: "א", Destination: "ב"}
		q := HitchhikerRequest{Origin: "א", Destination: "ב"}
		assert.NotEqual(t, r.Fingerprint(), q.Fingerprint())
	})
}

func TestRecordByID(t *testing.T) {
	u := &User{
		DriverRides: []DriverRide{
			{ID: "11111111-aaaa-4bbb-8ccc-000000000001"},
			{ID: "11111111-aaaa-4bbb-8ccc-000000000002"},
			{ID: "22222222-aaaa-4bbb-8ccc-000000000003"},
		},
	}

	t.Run("exact id", func(t *testing.T) {
		r := u.DriverRideByID("11111111-aaaa-4bbb-8ccc-000000000002")
		require.NotNil(t, r)
		assert.Equal(t, "11111111-aaaa-4bbb-8ccc-000000000002", r.ID)
	})

	t.Run("unique short prefix", func(t *testing.T) {
		r := u.DriverRideByID("22222222")
		require.NotNil(t, r)
		assert.Equal(t, "22222222-aaaa-4bbb-8ccc-000000000003", r.ID)
	})

	t.Run("ambiguous prefix resolves to nothing", func(t *testing.T) {
		assert.Nil(t, u.DriverRideByID("11111111"))
	})

	t.Run("too-short prefix is ignored", func(t *testing.T) {
		assert.Nil(t, u.DriverRideByID("2222"))
	})
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("08:15")
	require.NoError(t, err)
	assert.Equal(t, 8*60+15, m)

	_, err = ParseClock("8 בבוקר")
	assert.Error(t, err)
	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Wednesday")
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, d)

	d, err = ParseWeekday("sun")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Driver ")
	require.NoError(t, err)
	assert.Equal(t, RoleDriver, r)

	_, err = ParseRole("passenger")
	assert.Error(t, err)
}
