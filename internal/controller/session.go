package controller

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials are presented to the controller when a session is opened.
type Credentials struct {
	Username string
	Token    string
}

// Validate checks that the username is set and the token is a well-formed
// JWT. The signature is not verified; only the controller can do that.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is empty", ErrInvalidCredentials)
	}
	if c.Token == "" {
		return fmt.Errorf("%w: token is empty", ErrInvalidCredentials)
	}
	if _, _, err := jwt.NewParser().ParseUnverified(c.Token, jwt.MapClaims{}); err != nil {
		return fmt.Errorf("%w: token: %w", ErrInvalidCredentials, err)
	}
	return nil
}

// ExpiresAt returns the token's exp claim, if present and parseable.
func (c Credentials) ExpiresAt() (time.Time, bool) {
	tok, _, err := jwt.NewParser().ParseUnverified(c.Token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// SessionHandlers receive transport events. Handlers of one session are
// invoked sequentially, never concurrently with each other.
type SessionHandlers struct {
	// OnConnect fires each time the transport (re)establishes the session.
	OnConnect func()

	// OnMessage delivers an inbound payload, in arrival order.
	OnMessage func(topic string, payload []byte)

	// OnError reports a connection attempt or protocol failure.
	OnError func(err error)

	// OnClose reports that an established session was lost.
	OnClose func(err error)
}

// Session is one transport session to a controller. It reconnects on its own
// after transient failures until Close is called.
type Session interface {
	// Open starts connecting in the background and returns immediately.
	Open()

	// Subscribe registers interest in topic.
	Subscribe(topic string) error

	// Publish sends payload and blocks until the transport acknowledges it.
	Publish(topic string, payload []byte) error

	// Close tears the session down without waiting and stops reconnecting.
	Close()
}

// Dialer creates transport sessions. A new session must not invoke its
// handlers before Open is called.
type Dialer interface {
	NewSession(creds Credentials, handlers SessionHandlers) (Session, error)
}
