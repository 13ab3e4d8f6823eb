package routing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/relay/internal/service/models/record"
)

func newTestRecord(routingConfig string) *record.Record {
	rec := &record.Record{
		ID:         uuid.New(),
		TenantID:   record.DefaultTenantID,
		Topic:      "order.created",
		OccurredAt: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		Payload:    []byte(`{"urgent":true,"amount":150,"region":"eu"}`),
		Metadata:   map[string]string{"correlation_id": "abc"},
		Status:     record.StatusNew,
	}
	if routingConfig != "" {
		rec.RoutingConfig = []byte(routingConfig)
	}

	return rec
}

func TestResolveBareRoutingKeyBypassesEngine(t *testing.T) {
	rec := newTestRecord("")
	rec.RoutingKey = "orders.events"

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, "orders.events", resolutions[0].Destination)
	assert.Equal(t, []byte(rec.Payload), []byte(resolutions[0].Payload))
	assert.True(t, resolutions[0].DueAt.IsZero())
}

func TestResolveNoRoutingAtAll(t *testing.T) {
	rec := newTestRecord("")

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	assert.Empty(t, resolutions)
}

func TestResolveMatchingTarget(t *testing.T) {
	rec := newTestRecord(`{
		"targets": [
			{"destination": "kafka:orders", "conditions": {"op":"eq","path":"payload.urgent","value":true}},
			{"destination": "kafka:archive", "conditions": {"op":"eq","path":"payload.region","value":"us"}}
		]
	}`)

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, "kafka:orders", resolutions[0].Destination)
}

func TestResolvePreservesTargetOrder(t *testing.T) {
	rec := newTestRecord(`{
		"targets": [
			{"destination": "first"},
			{"destination": "second"},
			{"destination": "third"}
		]
	}`)

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	require.Len(t, resolutions, 3)
	assert.Equal(t, "first", resolutions[0].Destination)
	assert.Equal(t, "second", resolutions[1].Destination)
	assert.Equal(t, "third", resolutions[2].Destination)
}

func TestResolveUnconditionalTargetAlwaysMatches(t *testing.T) {
	rec := newTestRecord(`{"targets":[{"destination":"amqp:events/all"}]}`)

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	require.Len(t, resolutions, 1)
}

func TestResolveFallbackOnZeroMatches(t *testing.T) {
	rec := newTestRecord(`{
		"targets": [
			{"destination": "kafka:us-only", "conditions": {"op":"eq","path":"payload.region","value":"us"}}
		],
		"fallback": "amqp:events/unrouted"
	}`)

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, "amqp:events/unrouted", resolutions[0].Destination)
	assert.Equal(t, []byte(rec.Payload), []byte(resolutions[0].Payload))
}

func TestResolveFallbackNotUsedWhenTargetMatched(t *testing.T) {
	rec := newTestRecord(`{
		"targets": [{"destination": "kafka:orders"}],
		"fallback": "amqp:events/unrouted"
	}`)

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, "kafka:orders", resolutions[0].Destination)
}

func TestResolveZeroMatchesNoFallback(t *testing.T) {
	rec := newTestRecord(`{
		"targets": [
			{"destination": "kafka:us-only", "conditions": {"op":"eq","path":"payload.region","value":"us"}}
		]
	}`)

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	assert.Empty(t, resolutions)
}

func TestResolveSamplingRateZeroExcludes(t *testing.T) {
	rec := newTestRecord(`{"targets":[{"destination":"kafka:analytics","sampling_rate":0.0}]}`)
	engine := NewEngine(WithRandom(func() float64 { return 0.0 }))

	resolutions, err := engine.Resolve(rec)

	require.NoError(t, err)
	assert.Empty(t, resolutions)
}

func TestResolveSamplingRateOneIncludes(t *testing.T) {
	rec := newTestRecord(`{"targets":[{"destination":"kafka:analytics","sampling_rate":1.0}]}`)
	engine := NewEngine(WithRandom(func() float64 { return 0.999999 }))

	resolutions, err := engine.Resolve(rec)

	require.NoError(t, err)
	require.Len(t, resolutions, 1)
}

func TestResolveSamplingThinsIndependently(t *testing.T) {
	rec := newTestRecord(`{"targets":[{"destination":"kafka:analytics","sampling_rate":0.5}]}`)

	draws := []float64{0.2, 0.7}
	i := 0
	engine := NewEngine(WithRandom(func() float64 {
		val := draws[i%len(draws)]
		i++

		return val
	}))

	first, err := engine.Resolve(rec)
	require.NoError(t, err)
	second, err := engine.Resolve(rec)
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Empty(t, second)
}

func TestResolveAppliesTransform(t *testing.T) {
	rec := newTestRecord(`{
		"targets": [{
			"destination": "kafka:orders",
			"transform": {"exclude": ["region"], "inject": {"source": "relay"}}
		}]
	}`)

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.JSONEq(t, `{"urgent":true,"amount":150,"source":"relay"}`, string(resolutions[0].Payload))
	// The record's own payload is untouched.
	assert.JSONEq(t, `{"urgent":true,"amount":150,"region":"eu"}`, string(rec.Payload))
}

func TestResolveDelaySetsDueAt(t *testing.T) {
	rec := newTestRecord(`{"targets":[{"destination":"kafka:digest","delay_seconds":3600}]}`)

	resolutions, err := NewEngine().Resolve(rec)

	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, rec.OccurredAt.Add(time.Hour), resolutions[0].DueAt)
}

func TestResolveMalformedConfigFails(t *testing.T) {
	rec := newTestRecord(`{"targets":[{"destination":""}]}`)

	_, err := NewEngine().Resolve(rec)

	assert.ErrorIs(t, err, ErrDestinationRequired)
}

func TestParseConfigRejectsBadSamplingRate(t *testing.T) {
	_, err := ParseConfig([]byte(`{"targets":[{"destination":"d","sampling_rate":1.5}]}`))

	assert.ErrorIs(t, err, ErrBadSamplingRate)
}

func TestParseConfigRejectsInvalidJSON(t *testing.T) {
	_, err := ParseConfig([]byte(`{not json`))

	assert.Error(t, err)
}
