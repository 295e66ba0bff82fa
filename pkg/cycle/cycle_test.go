package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDurationSeconds(t *testing.T) {
	tests := []struct {
		d    Duration
		want int64
	}{
		{Daily, 86400},
		{Weekly, 604800},
		{Monthly, 2592000},
		{Quarterly, 7776000},
		{Yearly, 31536000},
		{Duration("fortnightly"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.d), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.Seconds())
			assert.Equal(t, tt.want != 0, tt.d.Valid())
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, Monthly, d)

	_, err = ParseDuration("hourly")
	assert.ErrorIs(t, err, ErrUnknownDuration)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("QUARTERLY")))
	assert.Equal(t, Quarterly, d)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "quarterly", string(out))

	_, err = Duration("bogus").MarshalText()
	assert.ErrorIs(t, err, ErrUnknownDuration)
}

func TestStart(t *testing.T) {
	c := Start(7, 42, t0.Add(250*time.Millisecond), Weekly)

	assert.Equal(t, int64(7), c.OrgID)
	assert.Equal(t, int64(42), c.PricingID)
	assert.Equal(t, t0, c.StartDate)
	assert.Equal(t, t0.Add(7*24*time.Hour), c.EndDate)
	assert.False(t, c.IsPaused)
	assert.False(t, c.IsCancelled)
}

func TestStatus(t *testing.T) {
	base := Start(1, 1, t0, Monthly)

	tests := []struct {
		name  string
		cycle SubscriptionCycle
		now   time.Time
		want  Status
	}{
		{"active at start", base, t0, StatusActive},
		{"active before end", base, base.EndDate.Add(-time.Second), StatusActive},
		{"past due at end", base, base.EndDate, StatusPastDue},
		{"past due after end", base, base.EndDate.Add(time.Hour), StatusPastDue},
		{"cancelled before end", base.Cancel(), t0, StatusCancelled},
		{"cancelled after end", base.Cancel(), base.EndDate.Add(time.Hour), StatusCancelled},
		{"paused", SubscriptionCycle{IsPaused: true}, t0, StatusPaused},
		{"paused and cancelled", SubscriptionCycle{IsPaused: true, IsCancelled: true}, t0, StatusPaused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cycle.Status(tt.now))
		})
	}
}

func TestRenew(t *testing.T) {
	c := Start(1, 1, t0, Monthly)

	t.Run("not due", func(t *testing.T) {
		_, err := c.Renew(c.EndDate.Add(-time.Second), Monthly)
		assert.ErrorIs(t, err, ErrRenewalNotDue)
	})

	t.Run("due at end", func(t *testing.T) {
		next, err := c.Renew(c.EndDate, Monthly)
		require.NoError(t, err)
		assert.Equal(t, c.EndDate, next.StartDate)
		assert.Equal(t, c.EndDate.Add(30*24*time.Hour), next.EndDate)
	})

	t.Run("late renewal anchors to previous end", func(t *testing.T) {
		next, err := c.Renew(c.EndDate.Add(5*24*time.Hour), Weekly)
		require.NoError(t, err)
		assert.Equal(t, c.EndDate, next.StartDate)
		assert.Equal(t, c.EndDate.Add(7*24*time.Hour), next.EndDate)
	})

	t.Run("cancelled", func(t *testing.T) {
		_, err := c.Cancel().Renew(c.EndDate, Monthly)
		assert.ErrorIs(t, err, ErrCancelled)
	})

	t.Run("paused", func(t *testing.T) {
		paused, err := c.Pause(t0)
		require.NoError(t, err)
		_, err = paused.Renew(c.EndDate, Monthly)
		assert.ErrorIs(t, err, ErrAlreadyPaused)
	})
}

func TestPauseUnpause(t *testing.T) {
	c := Start(1, 1, t0, Monthly)
	pauseAt := t0.Add(10 * 24 * time.Hour)

	paused, err := c.Pause(pauseAt)
	require.NoError(t, err)
	assert.True(t, paused.IsPaused)
	assert.True(t, paused.StartDate.IsZero())
	assert.True(t, paused.EndDate.IsZero())
	assert.Equal(t, 20*24*time.Hour, paused.TimeRemainingWhenPaused)
	assert.Equal(t, StatusPaused, paused.Status(pauseAt))

	// receiver is untouched
	assert.False(t, c.IsPaused)

	_, err = paused.Pause(pauseAt)
	assert.ErrorIs(t, err, ErrAlreadyPaused)

	resumeAt := pauseAt.Add(100 * 24 * time.Hour)
	resumed, err := paused.Unpause(resumeAt)
	require.NoError(t, err)
	assert.False(t, resumed.IsPaused)
	assert.Equal(t, resumeAt, resumed.StartDate)
	assert.Equal(t, resumeAt.Add(20*24*time.Hour), resumed.EndDate)
	assert.Zero(t, resumed.TimeRemainingWhenPaused)
	assert.Equal(t, StatusActive, resumed.Status(resumeAt))

	_, err = resumed.Unpause(resumeAt)
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestPauseRejected(t *testing.T) {
	c := Start(1, 1, t0, Daily)

	_, err := c.Pause(c.EndDate)
	assert.ErrorIs(t, err, ErrPastDue)

	_, err = c.Cancel().Pause(t0)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestCancelIdempotent(t *testing.T) {
	c := Start(1, 1, t0, Daily)
	once := c.Cancel()
	twice := once.Cancel()
	assert.Equal(t, once, twice)
	assert.Equal(t, c.EndDate, twice.EndDate)
}

func TestWithPlanChange(t *testing.T) {
	c := Start(1, 1, t0, Weekly)
	newEnd := t0.Add(30 * 24 * time.Hour)

	changed := c.WithPlanChange(2, newEnd)
	assert.Equal(t, int64(2), changed.PricingID)
	assert.Equal(t, t0, changed.StartDate)
	assert.Equal(t, newEnd, changed.EndDate)
}

func TestRemaining(t *testing.T) {
	c := Start(1, 1, t0, Daily)
	assert.Equal(t, 24*time.Hour, c.Remaining(t0))
	assert.Equal(t, time.Hour, c.Remaining(c.EndDate.Add(-time.Hour)))
	assert.Zero(t, c.Remaining(c.EndDate.Add(time.Hour)))

	paused, err := c.Pause(t0.Add(6 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 18*time.Hour, paused.Remaining(t0.Add(1000*time.Hour)))
}

func TestUnitQuantity(t *testing.T) {
	u := NewUnitQuantity(5)
	assert.Equal(t, UnitQuantity{Committed: 5, Current: 5}, u)

	u = u.Apply(20)
	assert.Equal(t, UnitQuantity{Committed: 20, Current: 20}, u)

	u = u.Apply(3)
	assert.Equal(t, UnitQuantity{Committed: 20, Current: 3}, u)
	assert.True(t, u.Covered(20))
	assert.False(t, u.Covered(21))

	u = u.Reset()
	assert.Equal(t, UnitQuantity{Committed: 3, Current: 3}, u)
}
