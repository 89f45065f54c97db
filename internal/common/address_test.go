package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "mixed case is lowered",
			input: "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
			want:  "0xabcdef0123456789abcdef0123456789abcdef01",
		},
		{
			name:  "surrounding whitespace is trimmed",
			input: "  0x0000000000000000000000000000000000000001 ",
			want:  "0x0000000000000000000000000000000000000001",
		},
		{name: "missing prefix", input: "0000000000000000000000000000000000000001", wantErr: true},
		{name: "too short", input: "0x1234", wantErr: true},
		{name: "non hex", input: "0xzz00000000000000000000000000000000000001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAddress))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
