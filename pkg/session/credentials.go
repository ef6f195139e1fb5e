package session

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

// Default connection hints offered to the onboarding collector when nothing
// has been stored yet.
const (
	DefaultHost = "localhost"
	DefaultPort = 4222
)

// HashMethodPBKDF2SHA256 derives the stored secret from the plaintext password
// with PBKDF2-HMAC-SHA256, salted with the user name.
const HashMethodPBKDF2SHA256 = "PBKDF2-SHA256"

const pbkdf2Iterations = 4096

// Credentials are the session parameters persisted as a unit.
// A partially filled value is treated the same as an absent one.
type Credentials struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	UserName           string `json:"user_name"`
	PasswordHash       string `json:"-"`
	PasswordHashMethod string `json:"password_hash_method"`
}

// Complete reports whether every field is present and the port is in range.
func (c Credentials) Complete() bool {
	return c.Host != "" &&
		c.Port > 0 && c.Port <= 65535 &&
		c.UserName != "" &&
		c.PasswordHash != "" &&
		c.PasswordHashMethod != ""
}

// Address returns host:port.
func (c Credentials) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HashPassword derives the secret presented to the broker so the plaintext
// password never has to be stored.
func HashPassword(userName, password string) (hash, method string) {
	key := pbkdf2.Key([]byte(password), []byte("actuator:"+userName), pbkdf2Iterations, sha256.Size, sha256.New)
	return base64.StdEncoding.EncodeToString(key), HashMethodPBKDF2SHA256
}

// secret returns the value sent to the broker for the stored hash.
func (c Credentials) secret() (string, error) {
	switch c.PasswordHashMethod {
	case HashMethodPBKDF2SHA256:
		return c.PasswordHash, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedHashMethod, c.PasswordHashMethod)
	}
}
