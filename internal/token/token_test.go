package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "secret"

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testSettings() Settings {
	return Settings{
		Secret:   []byte(testSecret),
		Validity: time.Hour,
		UserID:   1,
	}
}

func signMap(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewClaims_Window(t *testing.T) {
	c := NewClaims(1, fixedNow, time.Hour)

	if c.IssuedAt != fixedNow.Unix() {
		t.Errorf("expected iat %d, got %d", fixedNow.Unix(), c.IssuedAt)
	}
	if c.ExpiresAt-c.IssuedAt != 3600 {
		t.Errorf("expected exp - iat = 3600, got %d", c.ExpiresAt-c.IssuedAt)
	}
	if c.Subject != 1.0 {
		t.Errorf("expected sub 1.0, got %v", c.Subject)
	}
	if c.UserID() != 1 {
		t.Errorf("expected user id 1, got %d", c.UserID())
	}
	if !c.Expiry().Equal(fixedNow.Add(time.Hour)) {
		t.Errorf("expected expiry %v, got %v", fixedNow.Add(time.Hour), c.Expiry())
	}
}

func TestNewClaims_TruncatesSubSecond(t *testing.T) {
	now := fixedNow.Add(999 * time.Millisecond)
	c := NewClaims(1, now, time.Hour)
	if c.IssuedAt != fixedNow.Unix() {
		t.Errorf("expected iat truncated to %d, got %d", fixedNow.Unix(), c.IssuedAt)
	}
	if c.ExpiresAt-c.IssuedAt != 3600 {
		t.Errorf("expected exp - iat = 3600, got %d", c.ExpiresAt-c.IssuedAt)
	}
}

func TestMint_RoundTrip(t *testing.T) {
	m := New(testSettings(), WithClock(fixedClock))

	tok, err := m.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	claims, err := m.Verify(tok.Raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != 1 {
		t.Errorf("expected sub 1, got %v", claims.Subject)
	}
	if claims.IssuedAt != tok.Claims.IssuedAt || claims.ExpiresAt != tok.Claims.ExpiresAt {
		t.Errorf("claims mismatch: minted %+v, parsed %+v", tok.Claims, *claims)
	}
}

func TestMint_WallClock(t *testing.T) {
	m := New(testSettings())

	before := time.Now().Unix()
	tok, err := m.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	claims, err := Parse(tok.Raw, []byte(testSecret), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d := claims.IssuedAt - before; d < 0 || d > 2 {
		t.Errorf("iat %d not within 2s of invocation time %d", claims.IssuedAt, before)
	}
	if claims.ExpiresAt-claims.IssuedAt != 3600 {
		t.Errorf("expected exp - iat = 3600, got %d", claims.ExpiresAt-claims.IssuedAt)
	}
}

func TestMint_CompactSerialization(t *testing.T) {
	tok, err := New(testSettings(), WithClock(fixedClock)).Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	parts := strings.Split(tok.Raw, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(parts))
	}

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("decoding header: %v", err)
	}
	var h map[string]string
	if err := json.Unmarshal(header, &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h["alg"] != "HS256" || h["typ"] != "JWT" {
		t.Errorf("unexpected header %v", h)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	var p map[string]any
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(p) != 3 {
		t.Errorf("expected exactly sub, exp, iat; got %v", p)
	}
	if p["sub"] != float64(1) {
		t.Errorf("expected sub 1, got %v", p["sub"])
	}

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if parts[2] != want {
		t.Errorf("signature = %q, want HMAC-SHA256 %q", parts[2], want)
	}
}

func TestMint_Deterministic(t *testing.T) {
	a, err := New(testSettings(), WithClock(fixedClock)).Mint()
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(testSettings(), WithClock(fixedClock)).Mint()
	if err != nil {
		t.Fatal(err)
	}
	if a.Raw != b.Raw {
		t.Errorf("expected identical tokens for identical claims, got %q and %q", a.Raw, b.Raw)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	tok, err := New(testSettings(), WithClock(fixedClock)).Mint()
	if err != nil {
		t.Fatal(err)
	}

	_, err = Parse(tok.Raw, []byte("not-the-secret"), fixedClock)
	if err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
	if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Errorf("expected signature error, got %v", err)
	}
}

func TestParse_Expired(t *testing.T) {
	tok, err := New(testSettings(), WithClock(fixedClock)).Mint()
	if err != nil {
		t.Fatal(err)
	}

	later := func() time.Time { return fixedNow.Add(2 * time.Hour) }
	_, err = Parse(tok.Raw, []byte(testSecret), later)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expected expired error, got %v", err)
	}
}

func TestParse_Rejections(t *testing.T) {
	exp := fixedNow.Add(time.Hour).Unix()

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": 1, "exp": exp}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": 1, "exp": exp}).
		SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "string subject", raw: signMap(t, jwt.MapClaims{"sub": "user-1", "exp": exp}), wantErr: ErrSubjectType},
		{name: "fractional subject", raw: signMap(t, jwt.MapClaims{"sub": 1.5, "exp": exp}), wantErr: ErrSubjectType},
		{name: "zero subject", raw: signMap(t, jwt.MapClaims{"sub": 0, "exp": exp}), wantErr: ErrSubjectType},
		{name: "missing subject", raw: signMap(t, jwt.MapClaims{"exp": exp}), wantErr: ErrSubjectType},
		{name: "subject beyond 2^53", raw: signMap(t, jwt.MapClaims{"sub": 1e20, "exp": exp}), wantErr: ErrSubjectType},
		{name: "subject just past 2^53", raw: signMap(t, jwt.MapClaims{"sub": float64(1<<53) + 2, "exp": exp}), wantErr: ErrSubjectType},
		{name: "missing exp", raw: signMap(t, jwt.MapClaims{"sub": 1}), wantErr: jwt.ErrTokenRequiredClaimMissing},
		{name: "alg none", raw: none, wantErr: jwt.ErrTokenSignatureInvalid},
		{name: "other hmac", raw: hs512, wantErr: jwt.ErrTokenSignatureInvalid},
		{name: "garbage", raw: "not.a.jwt", wantErr: jwt.ErrTokenMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, []byte(testSecret), fixedClock)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParse_AcceptsIntegerEncodedSubject(t *testing.T) {
	raw := signMap(t, jwt.MapClaims{"sub": 5, "exp": fixedNow.Add(time.Hour).Unix()})

	claims, err := Parse(raw, []byte(testSecret), fixedClock)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID() != 5 {
		t.Errorf("expected user id 5, got %d", claims.UserID())
	}
	if claims.IssuedAt != 0 {
		t.Errorf("expected zero iat when absent, got %d", claims.IssuedAt)
	}
}

func TestParse_LargestExactSubject(t *testing.T) {
	raw := signMap(t, jwt.MapClaims{"sub": float64(1 << 53), "exp": fixedNow.Add(time.Hour).Unix()})

	claims, err := Parse(raw, []byte(testSecret), fixedClock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID() != 1<<53 {
		t.Errorf("expected user id %d, got %d", int64(1)<<53, claims.UserID())
	}
}
