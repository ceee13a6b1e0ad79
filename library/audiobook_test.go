package library

import (
	"bytes"
	"testing"

	"mtpzhost/mtp"
)

func TestCreateAudiobookAndTrack(t *testing.T) {
	l, _, tr, tids := newTestLibrary(t)

	expectEmptyPropList(t, tr, tids)        // root listing (Audiobooks/ folder lookup)
	expectCreateDirectory(tr, tids, 0x6000) // Audiobooks/ folder creation
	expectEmptyPropList(t, tr, tids)        // Audiobooks/ title-folder listing
	expectCreateDirectory(tr, tids, 0x6100) // title folder creation
	tr.queueResponse(mtp.RC_OK, tids.next(), 0, 0, 0x7000) // container SendObjectPropList

	book, err := l.CreateAudiobook("The Hobbit", "J.R.R. Tolkien", 1937)
	if err != nil {
		t.Fatalf("CreateAudiobook: %v", err)
	}
	if book.ObjectID != 0x7000 || book.MusicFolderID != 0x6100 {
		t.Fatalf("got %+v", book)
	}

	again, err := l.CreateAudiobook("The Hobbit", "J.R.R. Tolkien", 1937)
	if err != nil || again != book {
		t.Fatalf("expected CreateAudiobook to be idempotent, got %+v, %v", again, err)
	}

	tr.queueResponse(mtp.RC_OK, tids.next(), 0, 0, 0x7001) // track SendObjectPropList
	track, err := l.CreateAudiobookTrack(book, 0x300a, "Chapter 1", 1, "01 chapter one.mp3", 3_000_000, 0)
	if err != nil {
		t.Fatalf("CreateAudiobookTrack: %v", err)
	}

	var refsBuf bytes.Buffer
	if err := mtp.Encode(&refsBuf, &mtp.Uint32Array{}); err != nil {
		t.Fatalf("Encode(Uint32Array): %v", err)
	}
	refsTID := tids.next()
	tr.queueData(mtp.OC_MTP_GetObjectReferences, refsTID, refsBuf.Bytes())
	tr.queueResponse(mtp.RC_OK, refsTID)     // GetObjectReferences
	tr.queueResponse(mtp.RC_OK, tids.next()) // SetObjectReferences
	if err := l.AddAudiobookTrack(book, track); err != nil {
		t.Fatalf("AddAudiobookTrack: %v", err)
	}
}
