package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelseq/internal/config"
)

type fakeTarget struct {
	calls []string
	err   error
}

func (f *fakeTarget) Prepare(ctx context.Context, source string) error {
	f.calls = append(f.calls, "prepare:"+source)
	return f.err
}

func (f *fakeTarget) Unprepare(ctx context.Context, source string) error {
	f.calls = append(f.calls, "unprepare:"+source)
	return f.err
}

func TestEntries(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	s, err := New(loc, config.ScheduleConfig{PowerOn: "0 7 * * *", PowerOff: "30 22 * * *"}, &fakeTarget{})
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, loc)
	entries := s.Entries(now)
	require.Len(t, entries, 2)

	assert.Equal(t, PowerOff, entries[0].Name)
	assert.Equal(t, time.Date(2024, 3, 1, 22, 30, 0, 0, loc), entries[0].Next)
	assert.Equal(t, PowerOn, entries[1].Name)
	assert.Equal(t, time.Date(2024, 3, 2, 7, 0, 0, 0, loc), entries[1].Next)
}

func TestEmptySpecsSkipped(t *testing.T) {
	s, err := New(time.UTC, config.ScheduleConfig{PowerOff: "0 23 * * *"}, &fakeTarget{})
	require.NoError(t, err)
	entries := s.Entries(time.Now())
	require.Len(t, entries, 1)
	assert.Equal(t, PowerOff, entries[0].Name)

	none, err := New(nil, config.ScheduleConfig{}, &fakeTarget{})
	require.NoError(t, err)
	assert.Empty(t, none.Entries(time.Now()))
	none.Start()
	none.Stop()
}

func TestInvalidSpec(t *testing.T) {
	_, err := New(time.UTC, config.ScheduleConfig{PowerOn: "at dawn"}, &fakeTarget{})
	assert.Error(t, err)

	_, err = New(time.UTC, config.ScheduleConfig{PowerOff: "0 0 0 * * *"}, &fakeTarget{})
	assert.Error(t, err, "seconds field is not accepted")
}

func TestRun(t *testing.T) {
	ft := &fakeTarget{}
	s, err := New(time.UTC, config.ScheduleConfig{PowerOn: "0 7 * * *", PowerOff: "0 23 * * *"}, ft)
	require.NoError(t, err)

	require.NoError(t, s.Run(PowerOn))
	require.NoError(t, s.Run(PowerOff))
	assert.Equal(t, []string{"prepare:schedule", "unprepare:schedule"}, ft.calls)

	assert.Error(t, s.Run("reboot"))

	ft.err = errors.New("busy")
	assert.NotPanics(t, func() { _ = s.Run(PowerOn) })
}

func TestStartStop(t *testing.T) {
	s, err := New(time.UTC, config.ScheduleConfig{PowerOn: "0 7 * * *"}, &fakeTarget{})
	require.NoError(t, err)
	s.Start()
	s.Stop()
	assert.Error(t, s.ctx.Err())
}
