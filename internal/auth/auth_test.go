package auth

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken("secret", 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseToken("secret", tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 7 {
		t.Fatalf("user id = %d, want 7", claims.UserID)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, err := GenerateToken("secret", 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken("other", tok); err == nil {
		t.Fatalf("wrong secret accepted")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "hunter22") {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword(hash, "hunter23") {
		t.Fatalf("wrong password accepted")
	}
}
