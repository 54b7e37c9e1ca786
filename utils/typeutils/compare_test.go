package typeutils

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	baseTime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	laterTime := baseTime.Add(time.Hour)

	testCases := []struct {
		name          string
		leftArgument  interface{}
		rightArgument interface{}
		expected      int
	}{
		// nil cases
		{"nil_vs_nil", nil, nil, 0},
		{"nil_vs_value", nil, 1, -1},
		{"value_vs_nil", 1, nil, 1},

		// integers
		{"signed_int_equal", int64(5), int(5), 0},
		{"signed_int_less", int64(-1), int(1), -1},
		{"signed_int_greater", int32(10), int8(2), 1},
		{"unsigned_int_equal", uint64(5), uint(5), 0},
		{"int64_min_vs_max", int64(math.MinInt64), int64(math.MaxInt64), -1},
		{"uint64_max_vs_int", uint64(math.MaxUint64), int64(1), 1},

		// floats
		{"float_equal_within_eps", 1.0000001, 1.0, 0},
		{"float_less", 1.5, 2.5, -1},
		{"nan_vs_number", math.NaN(), 1.0, -1},
		{"int_vs_float", int64(2), 2.5, -1},

		// json numbers read back from state
		{"json_number_vs_int", json.Number("42"), int64(42), 0},
		{"json_number_vs_larger_int", json.Number("41"), int64(42), -1},
		{"json_number_float", json.Number("1.5"), 1.25, 1},

		// timestamps
		{"time_less", baseTime, laterTime, -1},
		{"time_equal", baseTime, baseTime, 0},
		{"custom_time_greater", Time{laterTime}, Time{baseTime}, 1},
		{"rfc3339_string_vs_time", "2024-01-02T03:04:05Z", baseTime, 0},
		{"rfc3339_offsets", "2024-01-02T05:00:00+02:00", "2024-01-02T04:00:00Z", -1},
		{"naive_string_vs_rfc3339", "2024-01-02T04:04:05.000000", "2024-01-02T03:04:05Z", 1},

		// bool and strings
		{"bool_false_vs_true", false, true, -1},
		{"string_less", "abc", "abd", -1},
		{"short_numeric_strings", "12", "12", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Compare(tc.leftArgument, tc.rightArgument))
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: "2024-03-01T10:00:00Z", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{input: "2024-03-01T12:00:00+02:00", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{input: "2024-03-01T10:00:00.123456", want: time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC)},
		{input: "2024-03-01", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{input: "yesterday", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
