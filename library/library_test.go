package library

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"mtpzhost/mtp"
	"mtpzhost/mtpz"
	"mtpzhost/ptp"
)

// mockTransport mirrors the mtp/mtpz packages' own test double: an
// in-memory ptp.Transport that serves a pre-queued packet sequence.
type mockTransport struct {
	mu    sync.Mutex
	reads [][]byte
}

func (m *mockTransport) BulkWrite(buf []byte) (int, error) { return len(buf), nil }

func (m *mockTransport) BulkRead(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reads) == 0 {
		return 0, io.EOF
	}
	pkt := m.reads[0]
	m.reads = m.reads[1:]
	return copy(buf, pkt), nil
}

func (m *mockTransport) InterruptRead(buf []byte) (int, error) { return 0, io.EOF }
func (m *mockTransport) Cancel(uint32) error                   { return nil }
func (m *mockTransport) Reset() error                          { return nil }
func (m *mockTransport) Close() error                          { return nil }
func (m *mockTransport) MaxPacketSize() int                    { return 512 }
func (m *mockTransport) SetTimeout(time.Duration)              {}

func (m *mockTransport) queueResponse(code uint16, tid uint32, params ...uint32) {
	buf := make([]byte, ptp.HeaderLen+4*len(params))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(ptp.ContainerResponse))
	binary.LittleEndian.PutUint16(buf[6:8], code)
	binary.LittleEndian.PutUint32(buf[8:12], tid)
	for i, p := range params {
		binary.LittleEndian.PutUint32(buf[ptp.HeaderLen+4*i:], p)
	}
	m.mu.Lock()
	m.reads = append(m.reads, buf)
	m.mu.Unlock()
}

func (m *mockTransport) queueData(opCode uint16, tid uint32, payload []byte) {
	buf := make([]byte, ptp.HeaderLen+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(ptp.ContainerData))
	binary.LittleEndian.PutUint16(buf[6:8], opCode)
	binary.LittleEndian.PutUint32(buf[8:12], tid)
	copy(buf[ptp.HeaderLen:], payload)
	m.mu.Lock()
	m.reads = append(m.reads, buf)
	m.mu.Unlock()
}

// tidSeq mirrors Session.nextTransactionID's counter (starts at 0, the
// value OpenSession's own transaction consumes) so queued response
// transaction ids line up with what the session will actually send.
type tidSeq struct{ n uint32 }

func (t *tidSeq) next() uint32 { v := t.n; t.n++; return v }

func newAuthenticatedSession(t *testing.T) (*mtp.Session, *mockTransport, *tidSeq) {
	t.Helper()
	tr := &mockTransport{}
	s := mtp.NewSession(tr, nil)
	tids := &tidSeq{}

	tr.queueResponse(mtp.RC_OK, tids.next())
	if err := s.OpenSession(); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	info := &mtp.DeviceInfo{
		OperationsSupported: []uint16{
			mtp.OC_MTP_SendObjectPropList, mtp.OC_MTP_GetObjPropList, mtp.OC_MTP_SetObjectReferences,
			mtp.OC_MTP_GetObjectReferences, mtp.OC_SendObject, mtp.OC_SendObjectInfo,
			mtp.OC_MTP_GetObjectPropsSupported, mtp.OC_MTP_SetObjectPropValue,
		},
		PlaybackFormats: []uint16{mtpz.OFC_Artist, mtp.OFC_MTP_AbstractAudioAlbum, audiobookFormat},
	}
	var infoBuf bytes.Buffer
	if err := mtp.Encode(&infoBuf, info); err != nil {
		t.Fatalf("Encode(DeviceInfo): %v", err)
	}
	tid := tids.next()
	tr.queueData(mtp.OC_GetDeviceInfo, tid, infoBuf.Bytes())
	tr.queueResponse(mtp.RC_OK, tid)
	if _, err := s.GetDeviceInfo(); err != nil {
		t.Fatalf("GetDeviceInfo: %v", err)
	}

	return s, tr, tids
}

// expectEmptyPropList queues the response to one GetObjectPropertyList
// call that finds no matching objects.
func expectEmptyPropList(t *testing.T, tr *mockTransport, tids *tidSeq) {
	t.Helper()
	payload, err := mtp.EncodeObjectPropList(nil)
	if err != nil {
		t.Fatalf("EncodeObjectPropList: %v", err)
	}
	tid := tids.next()
	tr.queueData(mtp.OC_MTP_GetObjPropList, tid, payload)
	tr.queueResponse(mtp.RC_OK, tid)
}

// expectCreateDirectory queues the SendObjectInfo+SendObject response
// pair CreateDirectory issues, returning handle.
func expectCreateDirectory(tr *mockTransport, tids *tidSeq, handle uint32) {
	tr.queueResponse(mtp.RC_OK, tids.next(), 1, 0, handle)
	tr.queueResponse(mtp.RC_OK, tids.next())
}

func newTestLibrary(t *testing.T) (*Library, *mtp.Session, *mockTransport, *tidSeq) {
	t.Helper()
	s, tr, tids := newAuthenticatedSession(t)
	l := &Library{
		session:                    s,
		log:                        logrus.NewEntry(logrus.New()),
		storageID:                  1,
		deviceSerial:               "TESTSERIAL",
		artistSupported:            true,
		albumDateAuthoredSupported: true,
		albumCoverSupported:        true,
		artistsFolder:              0x2000,
		albumsFolder:               0x2001,
		musicFolder:                0x2002,
		artists:                    make(map[string]*ArtistRecord),
		albums:                     make(map[albumKey]*AlbumRecord),
		audiobooks:                 make(map[string]*Audiobook),
	}
	return l, s, tr, tids
}

func TestCreateArtistIdempotent(t *testing.T) {
	l, _, tr, tids := newTestLibrary(t)

	expectEmptyPropList(t, tr, tids)       // music folder listing
	expectCreateDirectory(tr, tids, 0x3001) // music folder creation
	tr.queueResponse(mtp.RC_OK, tids.next(), 0, 0, 0x4001) // artist object SendObjectPropList

	artist, err := l.CreateArtist("Radiohead")
	if err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}
	if artist.ObjectID != 0x4001 || artist.MusicFolderID != 0x3001 {
		t.Fatalf("got %+v", artist)
	}

	again, err := l.CreateArtist("Radiohead")
	if err != nil {
		t.Fatalf("CreateArtist (again): %v", err)
	}
	if again != artist {
		t.Fatalf("expected the same record back, got a new one")
	}
}

func TestCreateAlbumAndTrack(t *testing.T) {
	l, _, tr, tids := newTestLibrary(t)

	expectEmptyPropList(t, tr, tids)
	expectCreateDirectory(tr, tids, 0x3001)
	tr.queueResponse(mtp.RC_OK, tids.next(), 0, 0, 0x4001)
	artist, err := l.CreateArtist("Radiohead")
	if err != nil {
		t.Fatalf("CreateArtist: %v", err)
	}

	expectEmptyPropList(t, tr, tids)
	expectCreateDirectory(tr, tids, 0x3100)
	tr.queueResponse(mtp.RC_OK, tids.next(), 0, 0, 0x4100)
	album, err := l.CreateAlbum(artist, "OK Computer", 1997)
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	if album.Year != 1997 || album.ObjectID != 0x4100 {
		t.Fatalf("got %+v", album)
	}

	sameAlbum, err := l.CreateAlbum(artist, "OK Computer", 1997)
	if err != nil || sameAlbum != album {
		t.Fatalf("expected CreateAlbum to be idempotent, got %+v, %v", sameAlbum, err)
	}

	tr.queueResponse(mtp.RC_OK, tids.next(), 0, 0, 0x5000) // track SendObjectPropList
	track, err := l.CreateTrack(artist, album, 0x3009, "Paranoid Android", "Alternative", 2, "02 paranoid android.mp3", 4_000_000, 0)
	if err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}

	var refsBuf bytes.Buffer
	if err := mtp.Encode(&refsBuf, &mtp.Uint32Array{}); err != nil {
		t.Fatalf("Encode(Uint32Array): %v", err)
	}
	refsTID := tids.next()
	tr.queueData(mtp.OC_MTP_GetObjectReferences, refsTID, refsBuf.Bytes())
	tr.queueResponse(mtp.RC_OK, refsTID)             // GetObjectReferences (empty refs)
	tr.queueResponse(mtp.RC_OK, tids.next())         // SetObjectReferences
	if err := l.AddTrack(album, track); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}

	if !l.HasTrack(album, "Paranoid Android", 2) {
		t.Errorf("expected HasTrack to find the just-added track")
	}
}

func TestUpdateAlbumArtistMovesCacheEntry(t *testing.T) {
	l, _, tr, tids := newTestLibrary(t)
	l.artistSupported = false // exercise the Artist-string fallback path

	old := &ArtistRecord{Name: "Old Artist", MusicFolderID: 1}
	next := &ArtistRecord{Name: "New Artist", MusicFolderID: 2}
	album := &AlbumRecord{ArtistRef: old.Name, Name: "Some Album", ObjectID: 0x9000}
	l.albums[albumKey{artist: old.Name, name: album.Name}] = album

	tr.queueResponse(mtp.RC_OK, tids.next()) // SetObjectStringProperty(Artist)
	if err := l.UpdateAlbumArtist(album, next); err != nil {
		t.Fatalf("UpdateAlbumArtist: %v", err)
	}

	if _, stillUnderOld := l.albums[albumKey{artist: old.Name, name: album.Name}]; stillUnderOld {
		t.Errorf("album still indexed under the old artist")
	}
	moved, ok := l.albums[albumKey{artist: next.Name, name: album.Name}]
	if !ok || moved.ArtistRef != next.Name {
		t.Fatalf("album not re-indexed under the new artist, got %+v", moved)
	}
}
