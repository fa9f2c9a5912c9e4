package boltstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/milanoid/powerauth-mobile-sdk/internal/crypto"
	"github.com/milanoid/powerauth-mobile-sdk/pkg/powerauth/token"
)

func newTestStore(t *testing.T) token.LocalStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "tokens.db"))
	if nil != err {
		t.Fatalf("Failed New, got error %v", err)
	}
	return store
}

func newTestRecord(t *testing.T, name string) token.Record {
	t.Helper()
	secret, err := crypto.RandomBytes(16)
	if nil != err {
		t.Fatalf("Failed secret generation, got error %v", err)
	}
	return token.Record{Name: name, Identifier: "id-" + name, Secret: secret}
}

func TestSaveLoadRemove(t *testing.T) {
	store := newTestStore(t)
	rec := newTestRecord(t, "login")

	// missing record
	_, found, err := store.Load("login")
	if nil != err {
		t.Fatalf("Failed Load, got error %v", err)
	}
	if found {
		t.Fatal("unexpected record")
	}

	// save & reload
	err = store.Save(rec)
	if nil != err {
		t.Fatalf("Failed Save, got error %v", err)
	}
	got, found, err := store.Load("login")
	if nil != err {
		t.Fatalf("Failed Load, got error %v", err)
	}
	if !found {
		t.Fatal("record not found after Save")
	}
	if (got.Name != rec.Name) || (got.Identifier != rec.Identifier) || !bytes.Equal(got.Secret, rec.Secret) {
		t.Fatalf("Failed record control, got %+v != %+v", got, rec)
	}

	// replace under the same name
	rec2 := newTestRecord(t, "login")
	err = store.Save(rec2)
	if nil != err {
		t.Fatalf("Failed Save, got error %v", err)
	}
	got, _, err = store.Load("login")
	if nil != err {
		t.Fatalf("Failed Load, got error %v", err)
	}
	if got.Identifier != rec2.Identifier {
		t.Error("Failed replacement control")
	}

	// an invalid record is rejected
	err = store.Save(token.Record{Name: "bad"})
	if nil == err {
		t.Error("Expected Save to fail for invalid record")
	}

	// remove
	removed, err := store.Remove("login")
	if nil != err {
		t.Fatalf("Failed Remove, got error %v", err)
	}
	if !removed {
		t.Error("Failed removal control")
	}
	removed, err = store.Remove("login")
	if nil != err {
		t.Fatalf("Failed Remove, got error %v", err)
	}
	if removed {
		t.Error("removal of a missing record reported true")
	}
}

func TestRemoveAll(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"a", "b", "c"} {
		err := store.Save(newTestRecord(t, name))
		if nil != err {
			t.Fatalf("Failed Save, got error %v", err)
		}
	}

	err := store.RemoveAll()
	if nil != err {
		t.Fatalf("Failed RemoveAll, got error %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		_, found, err := store.Load(name)
		if nil != err {
			t.Fatalf("Failed Load, got error %v", err)
		}
		if found {
			t.Errorf("record %s survived RemoveAll", name)
		}
	}

	// the store stays usable after RemoveAll
	err = store.Save(newTestRecord(t, "fresh"))
	if nil != err {
		t.Fatalf("Failed Save after RemoveAll, got error %v", err)
	}
}
