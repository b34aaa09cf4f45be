package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignAndParseAccessToken(t *testing.T) {
	SetSecret("test-secret")

	token, _, err := SignAccessToken(42, "alice", "editor", time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" || claims.Role != "editor" {
		t.Fatalf("claims = %+v, want userID 42 alice editor", claims)
	}
	if claims.Type != "access" {
		t.Fatalf("Type = %q, want %q", claims.Type, "access")
	}
}

func TestRefreshTokenType(t *testing.T) {
	SetSecret("test-secret")

	token, _, err := SignRefreshToken(7, "bob", "admin", time.Hour)
	if err != nil {
		t.Fatalf("SignRefreshToken() error = %v", err)
	}
	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Type != "refresh" {
		t.Fatalf("Type = %q, want %q", claims.Type, "refresh")
	}
}

func TestParseExpiredToken(t *testing.T) {
	SetSecret("test-secret")

	token, _, err := SignAccessToken(1, "carol", "editor", -time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken() error = %v", err)
	}
	if _, err := ParseToken(token); err == nil {
		t.Fatalf("ParseToken() = nil error, want expiry error")
	}
}

// 签名算法钉死在 HS256，alg=none 的 token 必须被拒
func TestParseRejectsUnsignedToken(t *testing.T) {
	SetSecret("test-secret")

	claims := &Claims{
		UserID:   9,
		Username: "mallory",
		Role:     "admin",
		Type:     "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing unsigned token: %v", err)
	}
	if _, err := ParseToken(token); err == nil {
		t.Fatalf("ParseToken() = nil error, want signature method rejection")
	}
}

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc.def.ghi", "abc.def.ghi"},
		{"Basic abc", ""},
		{"", ""},
		{"Bearer ", ""},
	}
	for _, tc := range cases {
		if got := extractBearer(tc.header); got != tc.want {
			t.Fatalf("extractBearer(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
