package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return New(
		Field{Name: "port", Type: TypeString, Required: true},
		Field{Name: "gpib_address", Type: TypeInt, Default: 2},
		Field{Name: "settling_time", Type: TypeFloat, Default: 0.1},
		Field{Name: "offline", Type: TypeBool},
	)
}

func TestValidateAppliesDefaults(t *testing.T) {
	values, problems := testSchema().Validate(map[string]any{"port": "/dev/ttyUSB0"})
	require.Empty(t, problems)

	assert.Equal(t, "/dev/ttyUSB0", values["port"])
	assert.Equal(t, 2, values["gpib_address"])
	assert.Equal(t, 0.1, values["settling_time"])
	_, present := values["offline"]
	assert.False(t, present, "optional field without default stays absent")
}

func TestValidateRequiredMissing(t *testing.T) {
	_, problems := testSchema().Validate(map[string]any{})
	require.Len(t, problems, 1)
	assert.Equal(t, "port", problems[0].Field)
	assert.Contains(t, problems[0].Message, "required")
}

func TestValidateUnrecognizedField(t *testing.T) {
	_, problems := testSchema().Validate(map[string]any{
		"port":      "/dev/ttyUSB0",
		"baud_rate": 9600,
	})
	require.Len(t, problems, 1)
	assert.Equal(t, "baud_rate", problems[0].Field)
	assert.Equal(t, "unrecognized field", problems[0].Message)
}

func TestValidateCoercion(t *testing.T) {
	tests := []struct {
		name  string
		raw   map[string]any
		field string
		want  any
	}{
		{
			name:  "int widens to float",
			raw:   map[string]any{"port": "p", "settling_time": 1},
			field: "settling_time",
			want:  1.0,
		},
		{
			name:  "whole float narrows to int",
			raw:   map[string]any{"port": "p", "gpib_address": 4.0},
			field: "gpib_address",
			want:  4,
		},
		{
			name:  "int64 accepted for int",
			raw:   map[string]any{"port": "p", "gpib_address": int64(7)},
			field: "gpib_address",
			want:  7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, problems := testSchema().Validate(tt.raw)
			require.Empty(t, problems)
			assert.Equal(t, tt.want, values[tt.field])
		})
	}
}

func TestValidateCoercionFailures(t *testing.T) {
	_, problems := testSchema().Validate(map[string]any{
		"port":         123,
		"gpib_address": 2.5,
		"offline":      "yes",
	})
	require.Len(t, problems, 3)
	fields := []string{problems[0].Field, problems[1].Field, problems[2].Field}
	assert.Equal(t, []string{"gpib_address", "offline", "port"}, fields,
		"problems come back in sorted field order")
}

func TestValidateAccumulatesAllProblems(t *testing.T) {
	// Missing required, bad type, unrecognized: all three reported together.
	_, problems := testSchema().Validate(map[string]any{
		"gpib_address": "two",
		"mystery":      true,
	})
	assert.Len(t, problems, 3)
}

func TestNewPanicsOnDuplicateField(t *testing.T) {
	assert.Panics(t, func() {
		New(
			Field{Name: "port", Type: TypeString},
			Field{Name: "port", Type: TypeInt},
		)
	})
}

func TestFieldsSorted(t *testing.T) {
	fields := testSchema().Fields()
	require.Len(t, fields, 4)
	assert.Equal(t, "gpib_address", fields[0].Name)
	assert.Equal(t, "settling_time", fields[2].Name)
}
