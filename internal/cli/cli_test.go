package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurcal/recur"
)

const paydayJSON = `{"start":"2024-01-01","rules":[{"measure":"daysOfMonth","units":{"1":true,"15":true}}]}`

const standupYAML = `start: "2024-01-01"
end: "2024-12-31"
timeOfDay: 32400000
rules:
  - measure: daysOfWeek
    units: [1, 3, 5]
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

type fixture struct {
	config  string
	payday  string
	standup string
}

func newFixture(t *testing.T) fixture {
	dir := t.TempDir()
	return fixture{
		config:  filepath.Join(dir, "config.yaml"),
		payday:  writeFile(t, dir, "payday.json", paydayJSON),
		standup: writeFile(t, dir, "standup.yaml", standupYAML),
	}
}

func TestNextFromFile(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "next", "--config", f.config, "-f", f.payday, "--from", "2024-01-01", "-n", "3")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15\n2024-02-01\n2024-02-15\n", out)
	assert.NoFileExists(t, f.config, "read-only commands do not write a config")
}

func TestPreviousTimed(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "previous", "--config", f.config, "-f", f.standup, "--from", "2024-01-10", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08T09:00:00Z\n2024-01-05T09:00:00Z\n", out)
}

func TestAllWithFormat(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "all", "--config", f.config, "-f", f.standup, "--from", "2024-12-20", "--format", "01/02")
	require.NoError(t, err)
	assert.Equal(t, "12/20\n12/23\n12/25\n12/27\n12/30\n", out)

	_, err = run(t, "all", "--config", f.config, "-f", f.payday)
	assert.ErrorIs(t, err, recur.ErrNoEnd)
}

func TestMatches(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "matches", "2024-01-15", "--config", f.config, "-f", f.payday)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = run(t, "matches", "2024-01-16", "--config", f.config, "-f", f.payday)
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	_, err = run(t, "matches", "someday", "--config", f.config, "-f", f.payday)
	assert.Error(t, err)
}

func TestRRule(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "rrule", "--config", f.config, "-f", f.standup)
	require.NoError(t, err)
	assert.Equal(t, "FREQ=DAILY;UNTIL=20241231T090000Z;BYDAY=MO,WE,FR\n", out)
}

func TestICSFromFile(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "ics", "--config", f.config, "-f", f.standup)
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "UID:standup")
	assert.Contains(t, out, "BYDAY=MO,WE,FR")
}

func TestSourceErrors(t *testing.T) {
	f := newFixture(t)

	_, err := run(t, "next", "--config", f.config)
	assert.ErrorContains(t, err, "--schedule or --file")

	_, err = run(t, "next", "--config", f.config, "-f", f.payday, "-s", "payday")
	assert.Error(t, err)

	_, err = run(t, "next", "--config", f.config, "-f", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = run(t, "next", "--config", f.config, "--log-level", "loud", "-f", f.payday)
	assert.ErrorContains(t, err, "unknown log level")
}

func TestCron(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "cron", "0 0 1 1 *", "--config", f.config, "--start", "2024-01-01")
	require.NoError(t, err)

	var rec recur.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "2024-01-01", rec.Start)
	require.Len(t, rec.Rules, 2)
	assert.Equal(t, recur.DaysOfMonth, rec.Rules[0].Measure)
	assert.Equal(t, recur.MonthsOfYear, rec.Rules[1].Measure)

	_, err = run(t, "cron", "*/5 * * * *", "--config", f.config)
	assert.Error(t, err)
}

func TestSchedulesAddAndQuery(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, "schedules", "add", "--config", f.config,
		"--id", "standup", "--name", "Standup", "--cron", "0 9 * * 1-5", "--start", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "standup\n", out)
	assert.FileExists(t, f.config)

	out, err = run(t, "schedules", "add", "--config", f.config, "--name", "Payday", "-f", f.payday)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = run(t, "schedules", "add", "--config", f.config, "--id", "standup", "--name", "Again", "-f", f.payday)
	assert.ErrorContains(t, err, "already exists")

	out, err = run(t, "schedules", "list", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "standup")
	assert.Contains(t, out, "Payday")
	assert.Contains(t, out, "2024-01-01")

	out, err = run(t, "next", "--config", f.config, "-s", "Standup", "--from", "2024-01-01", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T09:00:00Z\n2024-01-03T09:00:00Z\n", out)

	out, err = run(t, "ics", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "UID:standup")
	assert.Contains(t, out, "SUMMARY:Payday")

	_, err = run(t, "next", "--config", f.config, "-s", "nope")
	assert.ErrorContains(t, err, "schedule not found")
}
