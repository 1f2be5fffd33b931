package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/directchat/internal/auth"
	"github.com/aelexs/directchat/internal/domain"
)

func TestParseBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"bearer token", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"lowercase scheme", "bearer abc", "abc", false},
		{"surrounding whitespace", "  Bearer   abc  ", "abc", false},
		{"missing header", "", "", true},
		{"whitespace only", "   ", "", true},
		{"scheme without token", "Bearer", "", true},
		{"scheme with blank token", "Bearer    ", "", true},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", true},
		{"token without scheme", "abc.def.ghi", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.ParseBearer(tt.header)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
