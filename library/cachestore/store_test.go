package cachestore

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestArtistUpsertGetInvalidate(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetArtist("SERIAL1", "Radiohead")
	if err != nil {
		t.Fatalf("GetArtist (miss): %v", err)
	}
	if got != nil {
		t.Fatalf("expected cache miss, got %+v", got)
	}

	rec := ArtistRecord{DeviceSerial: "SERIAL1", Name: "Radiohead", ObjectID: 0x100, MusicFolderID: 0x200, Guid: []byte{1, 2, 3}}
	if err := s.UpsertArtist(rec); err != nil {
		t.Fatalf("UpsertArtist: %v", err)
	}

	got, err = s.GetArtist("SERIAL1", "Radiohead")
	if err != nil {
		t.Fatalf("GetArtist (hit): %v", err)
	}
	if got == nil || got.ObjectID != rec.ObjectID || got.MusicFolderID != rec.MusicFolderID {
		t.Fatalf("got %+v, want %+v", got, rec)
	}

	rec.MusicFolderID = 0x300
	if err := s.UpsertArtist(rec); err != nil {
		t.Fatalf("UpsertArtist (update): %v", err)
	}
	got, _ = s.GetArtist("SERIAL1", "Radiohead")
	if got.MusicFolderID != 0x300 {
		t.Fatalf("update did not take, got %+v", got)
	}

	if err := s.InvalidateArtist("SERIAL1", "Radiohead"); err != nil {
		t.Fatalf("InvalidateArtist: %v", err)
	}
	got, err = s.GetArtist("SERIAL1", "Radiohead")
	if err != nil {
		t.Fatalf("GetArtist (post-invalidate): %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss after invalidate, got %+v", got)
	}
}

func TestAlbumUpsertGetInvalidate(t *testing.T) {
	s := openTestStore(t)

	rec := AlbumRecord{DeviceSerial: "SERIAL1", ArtistRef: "Radiohead", Name: "OK Computer", ObjectID: 0x400, MusicFolderID: 0x500, Year: 1997}
	if err := s.UpsertAlbum(rec); err != nil {
		t.Fatalf("UpsertAlbum: %v", err)
	}

	got, err := s.GetAlbum("SERIAL1", "Radiohead", "OK Computer")
	if err != nil {
		t.Fatalf("GetAlbum: %v", err)
	}
	if got == nil || got.Year != 1997 {
		t.Fatalf("got %+v, want year 1997", got)
	}

	if err := s.InvalidateAlbum("SERIAL1", "Radiohead", "OK Computer"); err != nil {
		t.Fatalf("InvalidateAlbum: %v", err)
	}
	got, err = s.GetAlbum("SERIAL1", "Radiohead", "OK Computer")
	if err != nil {
		t.Fatalf("GetAlbum (post-invalidate): %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss after invalidate, got %+v", got)
	}
}

func TestDeviceSerialIsolation(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertArtist(ArtistRecord{DeviceSerial: "A", Name: "X", ObjectID: 1, MusicFolderID: 2}); err != nil {
		t.Fatalf("UpsertArtist: %v", err)
	}
	got, err := s.GetArtist("B", "X")
	if err != nil {
		t.Fatalf("GetArtist: %v", err)
	}
	if got != nil {
		t.Fatalf("expected a different device serial to miss, got %+v", got)
	}
}
