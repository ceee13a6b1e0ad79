package mtpz

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"mtpzhost/mtp"
)

// ObjectFormat::Artist's wire value (0xB218) and the GUID/collection-id
// properties Zune firmwares expect alongside it: 0xDA97 carries a
// 16-byte GUID, 0xDAB0 ("Zune_CollectionID") is a zero-valued uint8
// Windows always sends in the same property list. None of the three is
// documented outside Microsoft's own tooling.
const (
	OFC_Artist           = 0xB218
	zuneGUIDPropertyCode = 0xDA97
	zuneCollectionIDProp = 0xDAB0
)

// GUIDObjects creates GUID-tagged ObjectFormat::Artist objects, the
// artist-identity object that albums and tracks reference by handle on
// devices that support it.
type GUIDObjects struct {
	session *mtp.Session
}

// NewGUIDObjects wraps session for GUID-tagged artist-object creation.
func NewGUIDObjects(session *mtp.Session) *GUIDObjects {
	return &GUIDObjects{session: session}
}

// CreateArtist creates a metadata artist object (format 0xB218) via
// SendObjectPropList followed by an empty SendObject, tagging it with a freshly
// generated GUID plus the filename/name/collection-id properties
// Windows is observed to send alongside it. It returns the new object
// handle and the GUID for the caller to persist alongside the artist
// record.
func (l *GUIDObjects) CreateArtist(storageID, artistsFolder uint32, name string) (handle uint32, id uuid.UUID, err error) {
	id = uuid.New()

	props := []mtp.ObjectProp{
		{PropertyCode: zuneCollectionIDProp, DataType: mtp.DTC_UINT8, Value: uint8(0)},
		{PropertyCode: mtp.OPC_ObjectFileName, DataType: mtp.DTC_STR, Value: name + ".art"},
		{PropertyCode: zuneGUIDPropertyCode, DataType: mtp.DTC_UINT128, Value: mtp.RawFixedBytes(toMSGUID(id))},
		{PropertyCode: mtp.OPC_Name, DataType: mtp.DTC_STR, Value: name},
	}

	h, err := l.session.SendObjectPropList(storageID, artistsFolder, OFC_Artist, 0, props)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("mtpz: CreateArtist: %w", err)
	}
	if err := l.session.SendObject(bytes.NewReader(nil), 0); err != nil {
		return 0, uuid.Nil, fmt.Errorf("mtpz: CreateArtist: sending empty object data: %w", err)
	}

	return h, id, nil
}

// ArtistGUID reads back the GUID tagged on an artist object.
func (l *GUIDObjects) ArtistGUID(handle uint32) (uuid.UUID, error) {
	props, err := l.session.GetObjectPropList(handle, zuneGUIDPropertyCode, 0)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mtpz: ArtistGUID: %w", err)
	}
	for _, p := range props {
		if p.PropertyCode != zuneGUIDPropertyCode {
			continue
		}
		raw, ok := p.Value.(mtp.RawFixedBytes)
		if !ok {
			return uuid.Nil, fmt.Errorf("mtpz: ArtistGUID: unexpected value type %T", p.Value)
		}
		return fromMSGUID(raw)
	}
	return uuid.Nil, fmt.Errorf("mtpz: ArtistGUID: object %d has no GUID property", handle)
}

// toMSGUID converts an RFC 4122 UUID to the mixed-endian layout a
// Windows GUID struct occupies on the wire: the first three fields
// (32-bit, 16-bit, 16-bit) are byte-swapped to little-endian, the
// trailing 8-byte field is left as-is.
func toMSGUID(id uuid.UUID) []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	reverse(b[0:4])
	reverse(b[4:6])
	reverse(b[6:8])
	return b
}

// fromMSGUID is toMSGUID's inverse.
func fromMSGUID(b []byte) (uuid.UUID, error) {
	if len(b) != 16 {
		return uuid.Nil, fmt.Errorf("mtpz: fromMSGUID: want 16 bytes, got %d", len(b))
	}
	rfc := make([]byte, 16)
	copy(rfc, b)
	reverse(rfc[0:4])
	reverse(rfc[4:6])
	reverse(rfc[6:8])
	return uuid.FromBytes(rfc)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
