package sealed

import (
	"crypto/rand"
	"errors"
	"testing"
)

type testRecord struct {
	UserID string   `json:"userId"`
	Name   string   `json:"name"`
	Tags   []string `json:"tags"`
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return key
}

func TestContainer_RoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	key := testKey(t)
	c := NewContainer[[]testRecord](backend, "credentials")

	want := []testRecord{
		{UserID: "u1", Name: "First", Tags: []string{"mail", "vpn"}},
		{UserID: "u2", Name: "Second"},
	}

	if err := c.Seal(want, key); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	got, err := c.Unseal(key)
	if err != nil {
		t.Fatalf("Unseal() error = %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("Unseal() returned %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].UserID != want[i].UserID || got[i].Name != want[i].Name {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestContainer_KeyMismatchFailsClosed(t *testing.T) {
	backend := NewMemoryBackend()
	c := NewContainer[testRecord](backend, "profiles")

	if err := c.Seal(testRecord{UserID: "u1"}, testKey(t)); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	got, err := c.Unseal(testKey(t))
	if !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("Unseal() error = %v, want ErrKeyMismatch", err)
	}
	if got.UserID != "" {
		t.Errorf("Unseal() returned partial value %+v on key mismatch", got)
	}
}

func TestContainer_Absent(t *testing.T) {
	c := NewContainer[testRecord](NewMemoryBackend(), "mailsettings")

	_, err := c.Unseal(testKey(t))
	if !errors.Is(err, ErrAbsent) {
		t.Fatalf("Unseal() error = %v, want ErrAbsent", err)
	}
	if c.Exists() {
		t.Error("Exists() = true for absent blob")
	}
}

func TestContainer_CorruptBlob(t *testing.T) {
	backend := NewMemoryBackend()
	key := testKey(t)
	c := NewContainer[testRecord](backend, "profiles")

	if err := c.Seal(testRecord{UserID: "u1"}, key); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	// Flip a ciphertext byte; GCM must refuse to open it.
	data, err := backend.Get("profiles")
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := backend.Set("profiles", data); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Unseal(key); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("Unseal() error = %v, want ErrKeyMismatch", err)
	}
}

func TestContainer_TruncatedBlobIsCorrupt(t *testing.T) {
	backend := NewMemoryBackend()
	if err := backend.Set("credentials", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	c := NewContainer[testRecord](backend, "credentials")
	if _, err := c.Unseal(testKey(t)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Unseal() error = %v, want ErrCorrupt", err)
	}
}

func TestContainer_DistinctBlobKeys(t *testing.T) {
	key := testKey(t)

	k1, err := deriveBlobKey(key, "credentials")
	if err != nil {
		t.Fatalf("deriveBlobKey() error = %v", err)
	}
	k2, err := deriveBlobKey(key, "profiles")
	if err != nil {
		t.Fatalf("deriveBlobKey() error = %v", err)
	}

	same := true
	for i := range k1 {
		if k1[i] != k2[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("blob keys for distinct names are identical")
	}
}

func TestContainer_Clear(t *testing.T) {
	backend := NewMemoryBackend()
	key := testKey(t)
	c := NewContainer[testRecord](backend, "handles")

	if err := c.Seal(testRecord{UserID: "u1"}, key); err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := c.Unseal(key); !errors.Is(err, ErrAbsent) {
		t.Fatalf("Unseal() after Clear() error = %v, want ErrAbsent", err)
	}

	// Clearing again is a no-op.
	if err := c.Clear(); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
}

func TestWipe(t *testing.T) {
	backend := NewMemoryBackend()
	key := testKey(t)

	for _, name := range []string{"credentials", "profiles", "mailsettings"} {
		c := NewContainer[testRecord](backend, name)
		if err := c.Seal(testRecord{UserID: "u1"}, key); err != nil {
			t.Fatalf("Seal(%s) error = %v", name, err)
		}
	}

	if err := Wipe(backend); err != nil {
		t.Fatalf("Wipe() error = %v", err)
	}

	names, err := backend.Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("Names() after Wipe() = %v, want empty", names)
	}
}
