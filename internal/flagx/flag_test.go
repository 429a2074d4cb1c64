package flagx

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

var serverFlags = []string{"-a", "-d", "-k", "-n"}

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "separate values",
			args: []string{"-a", ":8000", "-k", "local"},
			want: []string{"-a", ":8000", "-k", "local"},
		},
		{
			name: "equals form",
			args: []string{"-d=postgres://db", "-x=1"},
			want: []string{"-d=postgres://db"},
		},
		{
			name: "config flags belong to someone else",
			args: []string{"-c", "ttsgate.json", "-n", "8", "-config=other.json"},
			want: []string{"-n", "8"},
		},
		{
			name: "trailing flag without value",
			args: []string{"-k"},
			want: []string{"-k"},
		},
		{
			name: "next token starting with dash is not a value",
			args: []string{"-a", "-n", "2"},
			want: []string{"-a", "-n", "2"},
		},
		{
			name: "equals value may start with dash",
			args: []string{"-d=-weird"},
			want: []string{"-d=-weird"},
		},
		{
			name: "positional arguments dropped",
			args: []string{"serve", "-a", ":9000", "extra"},
			want: []string{"-a", ":9000"},
		},
		{
			name: "repeats kept in order",
			args: []string{"-n", "1", "-n", "4"},
			want: []string{"-n", "1", "-n", "4"},
		},
		{
			name: "empty",
			args: nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, serverFlags)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FilterArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		name string
		env  string
		args []string
		want string
	}{
		{name: "short", args: []string{"-c", "/etc/short.json"}, want: "/etc/short.json"},
		{name: "long", args: []string{"-config", "/etc/long.json"}, want: "/etc/long.json"},
		{name: "long with equals", args: []string{"-config=/etc/eq.json", "-a", ":8000"}, want: "/etc/eq.json"},
		{name: "last wins", args: []string{"-c", "one.json", "-config", "two.json"}, want: "two.json"},
		{name: "none", args: []string{"-a", ":8000"}, want: ""},
		{name: "env fallback", env: "/etc/ttsgate.json", args: []string{"-k", "s3"}, want: "/etc/ttsgate.json"},
		{name: "flag beats env", env: "/etc/ttsgate.json", args: []string{"-c", "local.json"}, want: "local.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ConfigEnv, tt.env)
			assert.Equal(t, tt.want, ConfigPath(tt.args))
		})
	}
}
