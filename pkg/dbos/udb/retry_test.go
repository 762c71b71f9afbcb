package udb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSerializationFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"serialization failure sqlstate", errors.New(`pq: ERROR: could not serialize access (SQLSTATE 40001)`), true},
		{"deadlock sqlstate", errors.New(`pq: ERROR: deadlock detected (SQLSTATE 40P01)`), true},
		{"unrelated error", errors.New("connection refused"), false},
		{"unique violation is not a serialization failure", errors.New("SQLSTATE 23505"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsSerializationFailure(tc.err))
		})
	}
}
