// Package cachestore persists a local record of the device's artist and
// album objects, keyed by device serial number. Library writes rows as
// it hydrates and creates artists and albums, and deletes an album's row
// when UpdateAlbumArtist's device write fails. Library construction does
// not read rows back, and Library does not re-read from the device or
// retry after a failed write.
package cachestore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ArtistRecord mirrors the fields of library.ArtistRecord worth
// persisting across process restarts.
type ArtistRecord struct {
	DeviceSerial  string
	Name          string
	ObjectID      uint32
	MusicFolderID uint32
	Guid          []byte // 16 bytes, or nil if the device has no ObjectFormat::Artist object for this artist
}

// AlbumRecord mirrors library.AlbumRecord.
type AlbumRecord struct {
	DeviceSerial  string
	ArtistRef     string
	Name          string
	ObjectID      uint32
	MusicFolderID uint32
	Year          int
}

// Store wraps a *sql.DB over a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path and ensures the
// artists/albums tables exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("cachestore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // a single long-lived Library owns this store

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cachestore: set journal_mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS artists (
			device_serial   TEXT NOT NULL,
			name            TEXT NOT NULL,
			object_id       INTEGER NOT NULL,
			music_folder_id INTEGER NOT NULL,
			guid            BLOB,
			PRIMARY KEY (device_serial, name)
		);`,
		`CREATE TABLE IF NOT EXISTS albums (
			device_serial   TEXT NOT NULL,
			artist_ref      TEXT NOT NULL,
			name            TEXT NOT NULL,
			object_id       INTEGER NOT NULL,
			music_folder_id INTEGER NOT NULL,
			year            INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (device_serial, artist_ref, name)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("cachestore: create tables: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetArtist returns the cached row, or nil if there is no hit.
func (s *Store) GetArtist(deviceSerial, name string) (*ArtistRecord, error) {
	row := s.db.QueryRow(
		`SELECT object_id, music_folder_id, guid FROM artists WHERE device_serial = ? AND name = ?`,
		deviceSerial, name)

	var rec ArtistRecord
	rec.DeviceSerial, rec.Name = deviceSerial, name
	if err := row.Scan(&rec.ObjectID, &rec.MusicFolderID, &rec.Guid); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("cachestore: GetArtist: %w", err)
	}
	return &rec, nil
}

// UpsertArtist inserts or replaces the row for (DeviceSerial, Name).
func (s *Store) UpsertArtist(rec ArtistRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO artists (device_serial, name, object_id, music_folder_id, guid)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_serial, name) DO UPDATE SET
			object_id = excluded.object_id,
			music_folder_id = excluded.music_folder_id,
			guid = excluded.guid`,
		rec.DeviceSerial, rec.Name, rec.ObjectID, rec.MusicFolderID, rec.Guid)
	if err != nil {
		return fmt.Errorf("cachestore: UpsertArtist: %w", err)
	}
	return nil
}

// InvalidateArtist deletes the cached row, forcing the next lookup
// back to the device.
func (s *Store) InvalidateArtist(deviceSerial, name string) error {
	_, err := s.db.Exec(`DELETE FROM artists WHERE device_serial = ? AND name = ?`, deviceSerial, name)
	if err != nil {
		return fmt.Errorf("cachestore: InvalidateArtist: %w", err)
	}
	return nil
}

// GetAlbum returns the cached row, or nil if there is no hit.
func (s *Store) GetAlbum(deviceSerial, artistRef, name string) (*AlbumRecord, error) {
	row := s.db.QueryRow(
		`SELECT object_id, music_folder_id, year FROM albums WHERE device_serial = ? AND artist_ref = ? AND name = ?`,
		deviceSerial, artistRef, name)

	var rec AlbumRecord
	rec.DeviceSerial, rec.ArtistRef, rec.Name = deviceSerial, artistRef, name
	if err := row.Scan(&rec.ObjectID, &rec.MusicFolderID, &rec.Year); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("cachestore: GetAlbum: %w", err)
	}
	return &rec, nil
}

// UpsertAlbum inserts or replaces the row for (DeviceSerial, ArtistRef, Name).
func (s *Store) UpsertAlbum(rec AlbumRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO albums (device_serial, artist_ref, name, object_id, music_folder_id, year)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_serial, artist_ref, name) DO UPDATE SET
			object_id = excluded.object_id,
			music_folder_id = excluded.music_folder_id,
			year = excluded.year`,
		rec.DeviceSerial, rec.ArtistRef, rec.Name, rec.ObjectID, rec.MusicFolderID, rec.Year)
	if err != nil {
		return fmt.Errorf("cachestore: UpsertAlbum: %w", err)
	}
	return nil
}

// InvalidateAlbum deletes the cached row, forcing the next lookup back
// to the device.
func (s *Store) InvalidateAlbum(deviceSerial, artistRef, name string) error {
	_, err := s.db.Exec(`DELETE FROM albums WHERE device_serial = ? AND artist_ref = ? AND name = ?`, deviceSerial, artistRef, name)
	if err != nil {
		return fmt.Errorf("cachestore: InvalidateAlbum: %w", err)
	}
	return nil
}
