package filestore

import (
	"testing"

	"github.com/Snider/Fabric/pkg/ferrors"
)

type fakeOwnedChecker map[string]bool

func (f fakeOwnedChecker) IsOwned(filename string) bool { return f[filename] }

func TestPutGetRoundTrip(t *testing.T) {
	s := New(t.TempDir(), nil)
	if err := s.Put("hello.txt", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := s.Get("hello.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
}

func TestGetMissingFileReturnsNotFound(t *testing.T) {
	s := New(t.TempDir(), nil)
	_, err := s.Get("missing.txt")
	fe, ok := err.(*ferrors.FabricError)
	if !ok || fe.Code != ferrors.CodeNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	s := New(t.TempDir(), nil)
	for _, name := range []string{"../escape.txt", "a/b.txt", ".", "..", ""} {
		if err := s.Put(name, []byte("x")); err == nil {
			t.Fatalf("expected validation error for filename %q", name)
		}
	}
}

func TestOwnedFileForbiddenOnPublicGet(t *testing.T) {
	checker := fakeOwnedChecker{"notes.txt": true}
	s := New(t.TempDir(), checker)
	if err := s.Put("notes.txt", []byte("public copy")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, err := s.Get("notes.txt")
	fe, ok := err.(*ferrors.FabricError)
	if !ok || fe.Code != ferrors.CodeOwnedForbidden {
		t.Fatalf("expected OwnedFileForbidden, got %v", err)
	}
}
