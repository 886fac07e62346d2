package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestEncryptAddressVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")

	var out bytes.Buffer
	if err := encrypt(path, testKey, "hunter2", &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "wrote "+path) {
		t.Fatalf("encrypt output = %q", out.String())
	}

	out.Reset()
	if err := address(path, &out); err != nil {
		t.Fatal(err)
	}
	addr := strings.TrimSpace(out.String())
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		t.Fatalf("address = %q", addr)
	}

	out.Reset()
	if err := verify(path, "hunter2", &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "ok "+addr+"\n" {
		t.Fatalf("verify output = %q", out.String())
	}

	if err := verify(path, "wrong", &out); err == nil {
		t.Fatal("wrong password should fail")
	}
}

func TestEncryptRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	var out bytes.Buffer
	if err := encrypt(path, testKey, "pw", &out); err != nil {
		t.Fatal(err)
	}
	if err := encrypt(path, testKey, "pw", &out); err == nil {
		t.Fatal("second encrypt should not replace the key file")
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	if err := run(nil, &out); err == nil {
		t.Fatal("missing command should fail")
	}
	if err := run([]string{"sign"}, &out); err == nil {
		t.Fatal("unknown command should fail")
	}
	if err := encrypt(filepath.Join(t.TempDir(), "w.json"), "", "pw", &out); err == nil {
		t.Fatal("missing key should fail")
	}
}
