package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want TestDBConfig
	}{
		{
			name: "local docker-compose defaults",
			want: TestDBConfig{Host: "localhost", Port: "55432", User: "tribunal", Password: "tribunal", DBName: "tribunal"},
		},
		{
			name: "ci overrides",
			env: map[string]string{
				"TEST_DB_HOST":     "postgres",
				"TEST_DB_PORT":     "5432",
				"TEST_DB_USER":     "ci",
				"TEST_DB_PASSWORD": "ci-pass",
				"TEST_DB_NAME":     "portal_test",
			},
			want: TestDBConfig{Host: "postgres", Port: "5432", User: "ci", Password: "ci-pass", DBName: "portal_test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
				t.Setenv(key, tt.env[key])
			}
			assert.Equal(t, tt.want, DefaultTestDBConfig())
		})
	}
}

func TestBuildBaseDSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	dsn := buildBaseDSN(TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "portal"})
	assert.True(t, strings.HasPrefix(dsn, "postgres://u:p%40ss@db:5432/portal"), dsn)
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestGenerateSchemaNameIsUnique(t *testing.T) {
	a, b := generateSchemaName(), generateSchemaName()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "t_"), a)
}

func TestFixedTimeFunc(t *testing.T) {
	now := TestTime()
	clock := FixedTimeFunc(now)
	assert.Equal(t, now, clock())
	assert.Equal(t, now, clock(), "clock must not advance")
	assert.Equal(t, time.UTC, now.Location())
}
