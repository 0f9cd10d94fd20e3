package sensor

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/dht22-to-mqtt/pkg/dht22"
)

type fakeEnv struct {
	m     dht22.Measurement
	err   error
	reads int
}

func (f *fakeEnv) Read() (dht22.Measurement, error) {
	f.reads++
	return f.m, f.err
}

func (f *fakeEnv) IsAvailable() bool {
	_, err := f.Read()
	return err == nil
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestFacadeEnvironmental(t *testing.T) {
	env := &fakeEnv{m: dht22.Measurement{RawHumidity: 400, RawTemperature: 0x8064}}
	f := NewFacade(env, quiet)

	p, err := f.Read(Environmental)
	require.NoError(t, err)
	assert.Equal(t, EnvironmentalData{TemperatureC: -10, HumidityPct: 40}, p)
	assert.Equal(t, Environmental, p.Kind())
	assert.True(t, f.IsAvailable(Environmental))
	assert.Equal(t, 2, env.reads)
}

func TestFacadeEnvironmentalFailure(t *testing.T) {
	env := &fakeEnv{err: dht22.ErrNoResponse}
	f := NewFacade(env, quiet)

	p, err := f.Read(Environmental)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, dht22.ErrNoResponse))
	assert.False(t, f.IsAvailable(Environmental))
}

func TestFacadeUnsupported(t *testing.T) {
	env := &fakeEnv{}
	f := NewFacade(env, quiet)
	for _, k := range []Kind{Depth, VehiclePresence, Kind(9)} {
		p, err := f.Read(k)
		assert.Nil(t, p)
		assert.ErrorIs(t, err, ErrUnsupported)
		assert.False(t, f.IsAvailable(k))
	}
	assert.Zero(t, env.reads)
}

func TestKindNames(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("sonar")
	assert.Error(t, err)
	assert.Equal(t, "kind(7)", Kind(7).String())
	assert.False(t, Kind(3).Valid())
}

func TestReadingJSON(t *testing.T) {
	in := Reading{
		Kind:        Environmental,
		TimestampMs: 5000,
		Valid:       true,
		Payload:     EnvironmentalData{TemperatureC: 21.5, HumidityPct: 48.2},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"environmental","timestamp_ms":5000,"valid":true,"payload":{"temperature_c":21.5,"humidity_pct":48.2}}`, string(b))

	var out Reading
	require.NoError(t, json.Unmarshal(b, &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("reading mismatch (-want +got):\n%s", diff)
	}

	var invalid Reading
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"depth","timestamp_ms":0,"valid":false}`), &invalid))
	assert.Equal(t, Reading{Kind: Depth}, invalid)
	_, ok := invalid.Environmental()
	assert.False(t, ok)
}

func TestTemperatureF(t *testing.T) {
	assert.Equal(t, float32(50), EnvironmentalData{TemperatureC: 10}.TemperatureF())
	assert.Equal(t, float32(14), EnvironmentalData{TemperatureC: -10}.TemperatureF())
}
