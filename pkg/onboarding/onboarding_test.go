package onboarding

import (
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/actuator/pkg/session"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestSubmission_Credentials(t *testing.T) {
	s := Submission{Host: "broker.local", Port: 4222, UserName: "relay", Password: "secret"}
	require.NoError(t, s.Validate())

	creds := s.Credentials()
	assert.True(t, creds.Complete())
	assert.Equal(t, session.HashMethodPBKDF2SHA256, creds.PasswordHashMethod)
	assert.NotEqual(t, "secret", creds.PasswordHash)

	hash, _ := session.HashPassword("relay", "secret")
	assert.Equal(t, hash, creds.PasswordHash, "hashing is deterministic")
}

func TestSubmission_Validate(t *testing.T) {
	valid := Submission{Host: "h", Port: 1, UserName: "u", Password: "p"}

	cases := map[string]func(s *Submission){
		"no host":     func(s *Submission) { s.Host = "" },
		"bad host":    func(s *Submission) { s.Host = "a b" },
		"zero port":   func(s *Submission) { s.Port = 0 },
		"high port":   func(s *Submission) { s.Port = 70000 },
		"no user":     func(s *Submission) { s.UserName = "  " },
		"no password": func(s *Submission) { s.Password = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := valid
			mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestEnvCollector(t *testing.T) {
	c := &EnvCollector{lookup: envFrom(map[string]string{
		EnvHost:     "broker.local",
		EnvUser:     "relay",
		EnvPassword: "secret",
	})}

	s, err := c.CollectCredentials(context.Background(), Hints{Host: "localhost", Port: 4222})
	require.NoError(t, err)
	assert.Equal(t, Submission{Host: "broker.local", Port: 4222, UserName: "relay", Password: "secret"}, s)
}

func TestEnvCollector_PortOverride(t *testing.T) {
	c := &EnvCollector{lookup: envFrom(map[string]string{
		EnvHost: "h", EnvPort: "5222", EnvUser: "u", EnvPassword: "p",
	})}

	s, err := c.CollectCredentials(context.Background(), Hints{Port: 4222})
	require.NoError(t, err)
	assert.Equal(t, 5222, s.Port)

	c.lookup = envFrom(map[string]string{EnvHost: "h", EnvPort: "x", EnvUser: "u", EnvPassword: "p"})
	_, err = c.CollectCredentials(context.Background(), Hints{Port: 4222})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestEnvCollector_CancelsWhenIncomplete(t *testing.T) {
	c := &EnvCollector{lookup: envFrom(map[string]string{EnvUser: "relay"})}

	_, err := c.CollectCredentials(context.Background(), Hints{Host: "localhost", Port: 4222})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestEnvCollector_CancelsOnRetry(t *testing.T) {
	c := &EnvCollector{lookup: envFrom(map[string]string{
		EnvHost: "h", EnvUser: "u", EnvPassword: "p",
	})}

	_, err := c.CollectCredentials(context.Background(), Hints{Port: 4222, Retry: true})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestNoneCollector(t *testing.T) {
	_, err := NoneCollector{}.CollectCredentials(context.Background(), Hints{})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestFormValues(t *testing.T) {
	v := newFormValues(Hints{Host: "broker.local", Port: 4222, UserName: "relay"})
	assert.Equal(t, "4222", v.port)
	assert.True(t, v.confirm)

	v.password = "secret"
	s, err := v.submission()
	require.NoError(t, err)
	assert.Equal(t, "broker.local", s.Host)
	assert.Equal(t, 4222, s.Port)

	v.confirm = false
	_, err = v.submission()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestFormCollector_Abort(t *testing.T) {
	c := NewFormCollector()
	c.run = func(context.Context, *huh.Form) error { return huh.ErrUserAborted }

	_, err := c.CollectCredentials(context.Background(), Hints{Retry: true})
	assert.ErrorIs(t, err, ErrCancelled)

	boom := errors.New("no tty")
	c.run = func(context.Context, *huh.Form) error { return boom }
	_, err = c.CollectCredentials(context.Background(), Hints{})
	assert.ErrorIs(t, err, boom)
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validatePort("4222"))
	assert.Error(t, validatePort("0"))
	assert.Error(t, validatePort("abc"))
	assert.NoError(t, validateHost("10.0.0.2"))
	assert.Error(t, validateHost(""))
	assert.Error(t, validateRequired(" "))
}
