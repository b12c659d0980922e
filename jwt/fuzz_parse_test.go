package jwt

import (
	"testing"
	"time"
)

// FuzzJWTParseAccess exercises the parser with arbitrary token strings.
func FuzzJWTParseAccess(f *testing.F) {
	mgr, err := NewManager(Config{
		AccessTTL:    5 * time.Minute,
		Secret:       testSecret,
		Issuer:       "fuzz-test",
		Leeway:       30 * time.Second,
		MaxFutureIAT: 10 * time.Minute,
	})
	if err != nil {
		f.Fatal(err)
	}

	valid, _, err := mgr.CreateAccess(AccessInput{UserID: "u1", Email: "e@x", Version: 1, JTI: "j1"})
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.e30.")
	f.Add(valid[:len(valid)/2])

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := mgr.ParseAccess(token)
		if err == nil && claims == nil {
			t.Fatal("nil claims without error")
		}
	})
}
