package utils

import (
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	m, err := NewManager("test-signing-key")
	if err != nil {
		t.Fatal(err)
	}
	token, err := m.NewJWT("42", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := m.Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	if sub != "42" {
		t.Errorf("subject = %q, want 42", sub)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager("test-signing-key")
	token, err := m.NewJWT("42", -time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	m1, _ := NewManager("key-one")
	m2, _ := NewManager("key-two")
	token, err := m1.NewJWT("42", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m2.Parse(token); err == nil {
		t.Fatal("token signed with another key accepted")
	}
}

func TestNewManagerEmptyKey(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Fatal("empty signing key accepted")
	}
}
