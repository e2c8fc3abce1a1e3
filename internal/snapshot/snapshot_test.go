package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"cachedb/internal/hll"
	"cachedb/internal/store"
)

// corrupt truncates path so the ciphertext is no longer block-aligned,
// guaranteeing decryptECB rejects it.
func corrupt(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b[:len(b)-3], 0600)
}

func TestEncryptDecryptECB_RoundTrip(t *testing.T) {
	key := EncryptionKey()
	plaintext := []byte("hello, this is a snapshot payload")

	ciphertext, err := encryptECB(plaintext, key)
	if err != nil {
		t.Fatalf("encryptECB: %v", err)
	}
	if len(ciphertext)%16 != 0 {
		t.Errorf("ciphertext length %d not block-aligned", len(ciphertext))
	}

	decrypted, err := decryptECB(ciphertext, key)
	if err != nil {
		t.Fatalf("decryptECB: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptECB_EmptyInput(t *testing.T) {
	key := EncryptionKey()
	ciphertext, err := encryptECB(nil, key)
	if err != nil {
		t.Fatalf("encryptECB: %v", err)
	}
	decrypted, err := decryptECB(ciphertext, key)
	if err != nil {
		t.Fatalf("decryptECB: %v", err)
	}
	if len(decrypted) != 0 {
		t.Errorf("decrypted = %q, want empty", decrypted)
	}
}

func TestPadOrTrimKey_Produces16ByteKeyForShortInput(t *testing.T) {
	k := padOrTrimKey("short")
	if len(k) != 16 {
		t.Errorf("len(key) = %d, want 16", len(k))
	}
}

func TestPadOrTrimKey_Produces32ByteKeyForLongInput(t *testing.T) {
	k := padOrTrimKey("this_is_a_very_long_encryption_key_value")
	if len(k) != 32 {
		t.Errorf("len(key) = %d, want 32", len(k))
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.db")

	data := store.New()
	data.SetString("s", "hello")
	data.RPush("l", "a", "b")
	data.SAdd("set1", "x", "y")
	data.HSet("h", "f", "v")

	h := hll.New(8)
	h.Add("elem1")
	hlls := map[string]*hll.HLL{"card": h}
	expires := map[string]int64{"s": 42}

	if err := Save(path, data, hlls, expires); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if v, ok := loaded.Items["s"]; !ok || v.Str != "hello" {
		t.Errorf("Items[s] = %+v, ok=%v", v, ok)
	}
	if v, ok := loaded.Items["l"]; !ok || len(v.List) != 2 {
		t.Errorf("Items[l] = %+v, ok=%v", v, ok)
	}
	if v, ok := loaded.Items["set1"]; !ok || len(v.Set) != 2 {
		t.Errorf("Items[set1] = %+v, ok=%v", v, ok)
	}
	if v, ok := loaded.Items["h"]; !ok || v.Hash["f"] != "v" {
		t.Errorf("Items[h] = %+v, ok=%v", v, ok)
	}
	if len(loaded.HLLs["card"]) != 256 {
		t.Errorf("len(HLLs[card]) = %d, want 256", len(loaded.HLLs["card"]))
	}
	if loaded.Expires["s"] != 42 {
		t.Errorf("Expires[s] = %d, want 42", loaded.Expires["s"])
	}
}

func TestSave_WritesBackupFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.db")

	data := store.New()
	data.SetString("k", "v")

	if err := Save(path, data, nil, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	matches, err := filepath.Glob(path + ".backup_*")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("found %d backup files, want 1", len(matches))
	}
}

func TestLoad_CorruptFile_Errors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.db")

	data := store.New()
	data.SetString("k", "v")
	if err := Save(path, data, nil, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Corrupt the file so decryption fails.
	if err := corrupt(path); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected Load to fail on corrupted ciphertext")
	}
}
