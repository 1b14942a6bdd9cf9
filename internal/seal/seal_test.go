package seal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	key := DeriveKey("correct horse", salt)

	sealed, err := Seal(key, []byte("token-abc"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("token-abc")) {
		t.Error("sealed output contains plaintext")
	}

	got, err := Open(key, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != "token-abc" {
		t.Errorf("plaintext = %q, want %q", got, "token-abc")
	}
}

func TestOpenWrongKey(t *testing.T) {
	salt, _ := GenerateSalt()
	sealed, err := Seal(DeriveKey("right", salt), []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := Open(DeriveKey("wrong", salt), sealed); err == nil {
		t.Fatal("expected error for wrong key")
	}
}

func TestOpenTooSmall(t *testing.T) {
	if _, err := Open(make([]byte, keySize), []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestEncryptDecryptFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "state.db")
	enc := filepath.Join(dir, "state.db.enc")
	dec := filepath.Join(dir, "restored.db")

	original := []byte("SQLite format 3\x00 pretend pages")
	if err := os.WriteFile(src, original, 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if err := EncryptFile(src, enc, "passphrase"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := DecryptFile(enc, dec, "passphrase"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}

	got, err := os.ReadFile(dec)
	if err != nil {
		t.Fatalf("read decrypted: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("decrypted = %q, want %q", got, original)
	}

	if err := DecryptFile(enc, dec, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}
