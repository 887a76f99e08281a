package kwstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		caller string
		want   string
	}{
		{"test_long_name", "Web.Login.Valid Login", "a397b484248109c5"},
		{"empty", "", "c8b567dc185a756e"},
		{"unicode", "Ünïcødé テスト", "f10cacdccc81ad43"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := Anonymize(tt.caller)
			assert.Equal(t, tt.want, token.String())
			assert.Equal(t, token, Anonymize(tt.caller))

			parsed, err := ParseCallerToken(token.String())
			require.NoError(t, err)
			assert.Equal(t, token, parsed)
		})
	}

	t.Run("distinct_names", func(t *testing.T) {
		seen := make(map[CallerToken]string)
		for _, name := range []string{"Root.T1", "Root.T2", "Root.T1 ", "root.t1", "Root", "Root.Child.T1"} {
			token := Anonymize(name)
			prior, ok := seen[token]
			assert.False(t, ok, "token collision between %q and %q", name, prior)
			seen[token] = name
		}
	})
}

func TestParseCallerTokenError(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "abc", "zzzzzzzzzzzzzzzz", "a397b484248109c5aa"} {
		_, err := ParseCallerToken(s)
		assert.Error(t, err, s)
	}
}
