package routing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc() map[string]any {
	raw := []byte(`{
		"payload": {
			"urgent": true,
			"amount": 150.5,
			"region": "eu",
			"customer": {"id": "c-42", "tier": "gold"}
		},
		"metadata": {
			"schema_version": "2",
			"correlation_id": "abc"
		}
	}`)

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(err)
	}

	return doc
}

func TestConditionEval(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{
			name: "eq bool match",
			cond: Condition{Op: OpEq, Path: "payload.urgent", Value: true},
			want: true,
		},
		{
			name: "eq string mismatch",
			cond: Condition{Op: OpEq, Path: "payload.region", Value: "us"},
			want: false,
		},
		{
			name: "eq nested path",
			cond: Condition{Op: OpEq, Path: "payload.customer.tier", Value: "gold"},
			want: true,
		},
		{
			name: "eq numeric coercion",
			cond: Condition{Op: OpEq, Path: "payload.amount", Value: 150.5},
			want: true,
		},
		{
			name: "ne on missing path matches",
			cond: Condition{Op: OpNe, Path: "payload.nope", Value: "x"},
			want: true,
		},
		{
			name: "gt true",
			cond: Condition{Op: OpGt, Path: "payload.amount", Value: 100},
			want: true,
		},
		{
			name: "gt false on equal",
			cond: Condition{Op: OpGt, Path: "payload.amount", Value: 150.5},
			want: false,
		},
		{
			name: "gte true on equal",
			cond: Condition{Op: OpGte, Path: "payload.amount", Value: 150.5},
			want: true,
		},
		{
			name: "lt false",
			cond: Condition{Op: OpLt, Path: "payload.amount", Value: 100},
			want: false,
		},
		{
			name: "lte true",
			cond: Condition{Op: OpLte, Path: "payload.amount", Value: 200},
			want: true,
		},
		{
			name: "comparison on non-numeric field fails closed",
			cond: Condition{Op: OpGt, Path: "payload.region", Value: 1},
			want: false,
		},
		{
			name: "comparison on missing path fails closed",
			cond: Condition{Op: OpGt, Path: "payload.nope", Value: 1},
			want: false,
		},
		{
			name: "in match",
			cond: Condition{Op: OpIn, Path: "payload.region", Values: []any{"eu", "us"}},
			want: true,
		},
		{
			name: "in mismatch",
			cond: Condition{Op: OpIn, Path: "payload.region", Values: []any{"apac"}},
			want: false,
		},
		{
			name: "exists true",
			cond: Condition{Op: OpExists, Path: "payload.customer.id"},
			want: true,
		},
		{
			name: "exists false",
			cond: Condition{Op: OpExists, Path: "payload.customer.email"},
			want: false,
		},
		{
			name: "exists on metadata",
			cond: Condition{Op: OpExists, Path: "metadata.correlation_id"},
			want: true,
		},
		{
			name: "not inverts",
			cond: Condition{Op: OpNot, Condition: &Condition{Op: OpEq, Path: "payload.region", Value: "eu"}},
			want: false,
		},
		{
			name: "and all match",
			cond: Condition{Op: OpAnd, Conditions: []Condition{
				{Op: OpEq, Path: "payload.urgent", Value: true},
				{Op: OpGt, Path: "payload.amount", Value: 100},
			}},
			want: true,
		},
		{
			name: "and one fails",
			cond: Condition{Op: OpAnd, Conditions: []Condition{
				{Op: OpEq, Path: "payload.urgent", Value: true},
				{Op: OpEq, Path: "payload.region", Value: "us"},
			}},
			want: false,
		},
		{
			name: "or one matches",
			cond: Condition{Op: OpOr, Conditions: []Condition{
				{Op: OpEq, Path: "payload.region", Value: "us"},
				{Op: OpEq, Path: "payload.region", Value: "eu"},
			}},
			want: true,
		},
		{
			name: "metadata string comparison",
			cond: Condition{Op: OpEq, Path: "metadata.schema_version", Value: "2"},
			want: true,
		},
	}

	doc := testDoc()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Eval(doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionEvalUnknownOperator(t *testing.T) {
	cond := Condition{Op: "regex", Path: "payload.region", Value: ".*"}

	_, err := cond.Eval(testDoc())

	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestConditionValidate(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		wantErr error
	}{
		{
			name: "valid eq",
			cond: Condition{Op: OpEq, Path: "payload.x", Value: 1},
		},
		{
			name:    "eq without path",
			cond:    Condition{Op: OpEq, Value: 1},
			wantErr: ErrBadCondition,
		},
		{
			name:    "in without values",
			cond:    Condition{Op: OpIn, Path: "payload.x"},
			wantErr: ErrBadCondition,
		},
		{
			name:    "not without nested",
			cond:    Condition{Op: OpNot},
			wantErr: ErrBadCondition,
		},
		{
			name:    "and without nested",
			cond:    Condition{Op: OpAnd},
			wantErr: ErrBadCondition,
		},
		{
			name: "nested invalid surfaces",
			cond: Condition{Op: OpAnd, Conditions: []Condition{
				{Op: OpEq, Path: "payload.x", Value: 1},
				{Op: "bogus"},
			}},
			wantErr: ErrUnknownOperator,
		},
		{
			name:    "unknown operator",
			cond:    Condition{Op: "between", Path: "payload.x"},
			wantErr: ErrUnknownOperator,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cond.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConditionRoundTripsThroughJSON(t *testing.T) {
	raw := []byte(`{"op":"and","conditions":[
		{"op":"eq","path":"payload.urgent","value":true},
		{"op":"not","condition":{"op":"in","path":"payload.region","values":["apac"]}}
	]}`)

	var cond Condition
	require.NoError(t, json.Unmarshal(raw, &cond))
	require.NoError(t, cond.Validate())

	got, err := cond.Eval(testDoc())
	require.NoError(t, err)
	assert.True(t, got)
}
