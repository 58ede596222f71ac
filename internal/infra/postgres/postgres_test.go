package postgres

import (
	"testing"
	"time"

	"github.com/sifan077/linkgate/config"
	"github.com/stretchr/testify/assert"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.PostgresConfig
		want string
	}{
		{
			name: "defaults",
			cfg:  config.PostgresConfig{User: "postgres", Database: "linkgate"},
			want: "postgres://postgres@localhost:5432/linkgate?application_name=linkgate&sslmode=disable",
		},
		{
			name: "escapes credentials",
			cfg: config.PostgresConfig{
				Host:     "db",
				Port:     6543,
				User:     "app user",
				Password: "p@ss/word",
				Database: "links",
				SSLMode:  "require",
			},
			want: "postgres://app%20user:p%40ss%2Fword@db:6543/links?application_name=linkgate&sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConnString(tt.cfg))
		})
	}
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 30*time.Minute, parseDuration("30m", time.Second))
	assert.Equal(t, time.Second, parseDuration("", time.Second))
	assert.Equal(t, time.Second, parseDuration("soon", time.Second))
}
