// Package render formats minted tokens for a human at a terminal.
package render

import (
	"fmt"
	"io"
	"time"

	"github.com/dskow/devtoken/internal/token"
)

// Command returns a curl invocation that sends tok as a bearer credential to url.
func Command(url, tok string) string {
	return fmt.Sprintf(`curl -H "Authorization: Bearer %s" "%s"`, tok, url)
}

// Write prints the token block:
//
//	Access Token:
//	<token>
//
//	Test command:
//	<command>
func Write(w io.Writer, tok, command string) error {
	_, err := fmt.Fprintf(w, "Access Token:\n%s\n\nTest command:\n%s\n", tok, command)
	return err
}

// WriteClaims prints the claims of a verified token, with expiry relative to now.
func WriteClaims(w io.Writer, c *token.Claims, now time.Time) error {
	remaining := c.Expiry().Sub(now).Truncate(time.Second)
	_, err := fmt.Fprintf(w, "Token valid\n  sub: %d\n  iat: %d (%s)\n  exp: %d (%s, in %s)\n",
		c.UserID(),
		c.IssuedAt, time.Unix(c.IssuedAt, 0).UTC().Format(time.RFC3339),
		c.ExpiresAt, c.Expiry().UTC().Format(time.RFC3339), remaining,
	)
	return err
}
