package storage

import (
	"bytes"
	"errors"
	"testing"
)

// testDB runs the shared test suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := db.Put([]byte("key1"), []byte("value1")); err != nil {
			t.Fatalf("Put() error: %v", err)
		}

		val, err := db.Get([]byte("key1"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("value1")) {
			t.Errorf("Get() = %q, want %q", val, "value1")
		}
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		if _, err := db.Get([]byte("nonexistent")); err == nil {
			t.Error("Get() for missing key should return error")
		}
	})

	t.Run("Has", func(t *testing.T) {
		db.Put([]byte("exists"), []byte("yes"))

		ok, err := db.Has([]byte("exists"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if !ok {
			t.Error("Has() = false for existing key")
		}

		ok, err = db.Has([]byte("missing"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if ok {
			t.Error("Has() = true for missing key")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		db.Put([]byte("ow"), []byte("first"))
		db.Put([]byte("ow"), []byte("second"))

		val, err := db.Get([]byte("ow"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("second")) {
			t.Errorf("Get() after overwrite = %q, want %q", val, "second")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db.Put([]byte("del"), []byte("value"))

		if err := db.Delete([]byte("del")); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if ok, _ := db.Has([]byte("del")); ok {
			t.Error("key should be gone after Delete()")
		}
	})

	t.Run("ForEachPrefix", func(t *testing.T) {
		db.Put([]byte("fe/a"), []byte("1"))
		db.Put([]byte("fe/b"), []byte("2"))
		db.Put([]byte("other"), []byte("3"))

		seen := make(map[string]string)
		err := db.ForEach([]byte("fe/"), func(key, value []byte) error {
			seen[string(key)] = string(value)
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if len(seen) != 2 || seen["fe/a"] != "1" || seen["fe/b"] != "2" {
			t.Errorf("ForEach() visited %v, want fe/a and fe/b", seen)
		}
	})

	t.Run("ForEachStopsOnError", func(t *testing.T) {
		db.Put([]byte("stop/a"), []byte("1"))
		db.Put([]byte("stop/b"), []byte("2"))

		sentinel := errors.New("stop")
		count := 0
		err := db.ForEach([]byte("stop/"), func(key, value []byte) error {
			count++
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Errorf("ForEach() error = %v, want sentinel", err)
		}
		if count != 1 {
			t.Errorf("callback ran %d times after error, want 1", count)
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	if err := db.Put([]byte("durable"), []byte("yes")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() reopen error: %v", err)
	}
	defer reopened.Close()

	val, err := reopened.Get([]byte("durable"))
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !bytes.Equal(val, []byte("yes")) {
		t.Errorf("Get() = %q, want %q", val, "yes")
	}
}
