// Package snapshot implements SAVE/LOAD: the full keyspace encoded as JSON
// and encrypted with AES in ECB mode, written to a primary file plus a
// timestamped backup.
//
// Ported from the reference implementation's encrypt_data/decrypt_data
// (built there on plusaes's encrypt_ecb/decrypt_ecb) and LRUDB::save/load.
// ECB mode has no ready-made Go library in the supporting example pack, so
// the block loop is hand-rolled here directly on crypto/aes + crypto/cipher
// (see DESIGN.md).
package snapshot

import (
	"crypto/aes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cachedb/internal/hll"
	"cachedb/internal/store"
)

const envEncryptionKey = "MYDB_ENCRYPTION_KEY"
const defaultEncryptionKey = "default_secure_key_32_bytes_long_12345678"

// EncryptionKey returns the configured AES key, or the reference
// implementation's default if unset.
func EncryptionKey() []byte {
	if k := os.Getenv(envEncryptionKey); k != "" {
		return padOrTrimKey(k)
	}
	return padOrTrimKey(defaultEncryptionKey)
}

// padOrTrimKey coerces an arbitrary-length key string to a valid AES key
// size (16, 24 or 32 bytes), truncating or zero-padding as needed.
func padOrTrimKey(key string) []byte {
	b := []byte(key)
	switch {
	case len(b) >= 32:
		return b[:32]
	case len(b) >= 24:
		return b[:24]
	case len(b) >= 16:
		return b[:16]
	default:
		out := make([]byte, 16)
		copy(out, b)
		return out
	}
}

// document is the on-disk (pre-encryption) JSON shape.
type document struct {
	Data    map[string]string     `json:"data"`
	Lists   map[string][]string   `json:"lists"`
	Sets    map[string][]string   `json:"sets"`
	Hashes  map[string]map[string]string `json:"hashes"`
	HLLs    map[string][]uint8    `json:"hlls"`
	Expires map[string]int64      `json:"expires"`
}

// Save encodes the keyspace, HLL registers and TTL deadlines to JSON,
// encrypts the document, and writes it to path plus a
// path.backup_YYYYMMDD_HHMMSS sibling.
func Save(path string, data *store.Data, hlls map[string]*hll.HLL, expires map[string]int64) error {
	doc := document{
		Data:    make(map[string]string),
		Lists:   make(map[string][]string),
		Sets:    make(map[string][]string),
		Hashes:  make(map[string]map[string]string),
		HLLs:    make(map[string][]uint8),
		Expires: expires,
	}

	key := EncryptionKey()
	for k, v := range data.Raw() {
		switch v.Type {
		case store.TypeString:
			ciphertext, err := encryptECB([]byte(v.Str), key)
			if err != nil {
				return fmt.Errorf("encrypt value for %q: %w", k, err)
			}
			doc.Data[k] = string(ciphertext)
		case store.TypeList:
			doc.Lists[k] = v.List
		case store.TypeSet:
			members := make([]string, 0, len(v.Set))
			for m := range v.Set {
				members = append(members, m)
			}
			doc.Sets[k] = members
		case store.TypeHash:
			doc.Hashes[k] = v.Hash
		}
	}
	for k, h := range hlls {
		doc.HLLs[k] = h.Registers()
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ciphertext, err := encryptECB(jsonBytes, key)
	if err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}

	if err := os.WriteFile(path, ciphertext, 0600); err != nil {
		return fmt.Errorf("write snapshot %q: %w", path, err)
	}

	backupPath := fmt.Sprintf("%s.backup_%s", path, time.Now().Format("20060102_150405"))
	if err := os.WriteFile(backupPath, ciphertext, 0600); err != nil {
		return fmt.Errorf("write snapshot backup %q: %w", backupPath, err)
	}
	return nil
}

// Loaded is the decoded result of Load, ready for the caller to reinstall
// through the cache and TTL index.
type Loaded struct {
	Items   map[string]store.Value
	HLLs    map[string][]uint8
	Expires map[string]int64
}

// Load reads, decrypts and parses the snapshot at path.
func Load(path string) (*Loaded, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", path, err)
	}

	key := EncryptionKey()
	plaintext, err := decryptECB(ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("decrypt snapshot %q: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot %q: %w", path, err)
	}

	items := make(map[string]store.Value)
	for k, ciphertext := range doc.Data {
		plain, err := decryptECB([]byte(ciphertext), key)
		if err != nil {
			return nil, fmt.Errorf("decrypt value for %q: %w", k, err)
		}
		items[k] = store.NewString(string(plain))
	}
	for k, list := range doc.Lists {
		items[k] = store.NewList(list)
	}
	for k, members := range doc.Sets {
		items[k] = store.NewSet(members...)
	}
	for k, fields := range doc.Hashes {
		items[k] = store.NewHash(fields)
	}

	return &Loaded{Items: items, HLLs: doc.HLLs, Expires: doc.Expires}, nil
}

// encryptECB pads plaintext with PKCS#7 and encrypts it block-by-block in
// ECB mode (each block independently, no chaining) with key.
func encryptECB(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], padded[i:i+block.BlockSize()])
	}
	return out, nil
}

// decryptECB reverses encryptECB: decrypt block-by-block, then strip the
// PKCS#7 padding.
func decryptECB(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d not a multiple of block size %d", len(ciphertext), block.BlockSize())
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], ciphertext[i:i+block.BlockSize()])
	}
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("invalid pkcs7 padding")
	}
	return data[:len(data)-padLen], nil
}
