// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package river

import (
	"testing"
	"time"
)

func Test_New_RequiresCoreFields(t *testing.T) {
	if _, err := New("", "db", "coll", "idx", "typ", -1, 100, time.Second); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := New("r1", "db", "coll", "idx", "typ", -2, 100, time.Second); err == nil {
		t.Error("expected error for invalid throttleSize")
	}
	if _, err := New("r1", "db", "coll", "idx", "typ", -1, 0, time.Second); err == nil {
		t.Error("expected error for zero bulkSize")
	}
	if _, err := New("r1", "db", "coll", "idx", "typ", -1, 100, 0); err == nil {
		t.Error("expected error for zero bulkTimeout")
	}
}

func Test_New_DefaultsAndOptions(t *testing.T) {
	d, err := New("r1", "mydb", "mycoll", "myindex", "mytype", -1, 500, 5*time.Second,
		WithIncludeCollectionField("_collection"),
		WithDropCollectionPolicy(true),
		WithGridFS(true),
	)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if d.Namespace() != "mydb.mycoll" {
		t.Errorf("expected namespace mydb.mycoll, got %s", d.Namespace())
	}
	if !d.IsGridFS() || !d.DropCollectionPolicy() {
		t.Error("expected GridFS and drop-collection policy to be set")
	}
	if d.IncludeCollectionField() != "_collection" {
		t.Errorf("expected include-collection field to be set, got %q", d.IncludeCollectionField())
	}
	if d.Username() != "" {
		t.Error("expected no username when WithCredentials was not applied")
	}
	if pass, err := d.Password(); err != nil || pass != "" {
		t.Errorf("expected empty password with no error, got %q / %v", pass, err)
	}
}

func Test_New_EncryptsCredentialsAtRest(t *testing.T) {
	d, err := New("r2", "db", "coll", "idx", "typ", -1, 100, time.Second,
		WithCredentials("river-user", "hunter2"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if d.Username() != "river-user" {
		t.Errorf("expected username to be preserved, got %q", d.Username())
	}
	if d.encryptedPassword == "" || d.encryptedPassword == "hunter2" {
		t.Errorf("expected password to be stored encrypted, got %q", d.encryptedPassword)
	}

	pass, err := d.Password()
	if err != nil {
		t.Fatalf("unexpected error decrypting password: %s", err)
	}
	if pass != "hunter2" {
		t.Errorf("expected decrypted password to round-trip, got %q", pass)
	}
}

func Test_New_InitialTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d, err := New("r3", "db", "coll", "idx", "typ", 1000, 100, time.Second, WithInitialTimestamp(ts))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if d.InitialTimestamp() == nil || !d.InitialTimestamp().Equal(ts) {
		t.Errorf("expected initial timestamp %v, got %v", ts, d.InitialTimestamp())
	}
}
