package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurcal/recur"
)

const sampleYAML = `
listen: 0.0.0.0:9090
timezone: Asia/Seoul
week_start: Monday
schedules:
  - name: Payday
    holidays: [https://example.com/holidays.ics]
    recurrence:
      start: "2024-01-31"
      timeOfDay: 32400000
      rules:
        - measure: daysOfMonth
          units: {31: true}
      exceptions: []
  - id: standup
    name: Standup
    recurrence:
      start: "2024-01-01"
      rules:
        - measure: daysOfWeek
          units: [monday, wednesday, friday]
`

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, time.Monday, cfg.WeekStartDay())
	assert.Equal(t, defaultRefreshCron, cfg.RefreshCron)
	assert.Equal(t, defaultCount, cfg.DefaultCount)
	assert.Equal(t, defaultMaxSearchDays, cfg.MaxSearchDays)
	assert.Equal(t, defaultHolidayHorizonDays, cfg.HolidayHorizonDays)

	require.Len(t, cfg.Schedules, 2)
	_, err = uuid.Parse(cfg.Schedules[0].ID)
	assert.NoError(t, err, "generated id")
	assert.Equal(t, "standup", cfg.Schedules[1].ID)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", loc.String())

	payday, ok := cfg.FindSchedule("payday")
	require.True(t, ok)
	r, err := recur.FromRecord(payday.Recurrence)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour, r.TimeOfDay())
	assert.True(t, r.Matches(recur.MustParseDate("2024-02-29")))

	standup, ok := cfg.FindSchedule("standup")
	require.True(t, ok)
	r, err = recur.FromRecord(standup.Recurrence)
	require.NoError(t, err)
	assert.True(t, r.Matches(recur.MustParseDate("2024-01-03")))
	assert.False(t, r.Matches(recur.MustParseDate("2024-01-04")))
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeFallbacks(t *testing.T) {
	cfg := &Config{WeekStart: "tuesday", MaxSearchDays: -5}
	cfg.Normalize()

	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, time.Sunday, cfg.WeekStartDay())
	assert.Equal(t, -1, cfg.MaxSearchDays)
	assert.True(t, cfg.SearchUnbounded())
	assert.NotNil(t, cfg.Schedules)
}

func TestSearchLimitDefaults(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		want      int
		unbounded bool
	}{
		{"absent", "listen: 127.0.0.1:0\n", defaultMaxSearchDays, false},
		{"zero", "max_search_days: 0\n", defaultMaxSearchDays, false},
		{"explicit", "max_search_days: 400\n", 400, false},
		{"negative", "max_search_days: -1\n", -1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o600))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.MaxSearchDays)
			assert.Equal(t, tc.unbounded, cfg.SearchUnbounded())
		})
	}
}

func TestLocationError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus_Mons"
	_, err := cfg.Location()
	assert.Error(t, err)
}

func TestAddScheduleAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()

	r := recur.New(recur.MustParseDate("2024-01-01"))
	require.NoError(t, r.Every(2).Weeks())
	id, err := cfg.AddSchedule(ScheduleConfig{Name: "Biweekly", Recurrence: r.Save()})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = cfg.AddSchedule(ScheduleConfig{ID: id, Name: "Duplicate", Recurrence: r.Save()})
	assert.Error(t, err)

	_, err = cfg.AddSchedule(ScheduleConfig{Name: "Broken"})
	assert.ErrorIs(t, err, recur.ErrMissingStart)

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	got, ok := loaded.FindSchedule(id)
	require.True(t, ok)
	assert.Equal(t, "Biweekly", got.Name)
	assert.Equal(t, r.Save(), got.Recurrence)
}
