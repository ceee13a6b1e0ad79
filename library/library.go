// Package library models the device-side artist/album/track object
// graph a music-capable MTP device exposes: creation is always
// create-or-get, first-write-wins, with the in-memory cache
// authoritative only for entries this process created or loaded.
package library

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"mtpzhost/library/cachestore"
	"mtpzhost/mtp"
	"mtpzhost/mtpz"
)

const (
	unknownArtist = "UnknownArtist"
	unknownAlbum  = "UnknownAlbum"

	musicFolderName   = "Music"
	albumsFolderName  = "Albums"
	artistsFolderName = "Artists"
)

// vendorArtistIDProp is ObjectProperty::ArtistId's undocumented wire
// value: a uint32 reference to an ObjectFormat::Artist object, used in
// place of the Artist string property once a device reports artist
// objects supported. It appears in no published MTP property table;
// placed in the same undocumented vendor range as the neighbouring
// Zune GUID/CollectionID properties (0xDA97/0xDAB0).
const vendorArtistIDProp = 0xDA98

// ArtistRecord is one artist: its optional ObjectFormat::Artist
// object, the directory under Music/ holding its albums, and - when a
// GUID keys bundle is loaded - the GUID tagging it for legacy
// artist-identity resolution.
type ArtistRecord struct {
	Name          string
	ObjectID      uint32 // 0 if the device has no Artist object for this artist
	MusicFolderID uint32
	Guid          []byte // 16 bytes, or nil
}

// AlbumRecord is one album.
type AlbumRecord struct {
	ArtistRef     string // key into Library.artists
	Name          string
	ObjectID      uint32
	MusicFolderID uint32
	Year          int

	refsLoaded bool
	refs       map[uint32]struct{}
	trackNames map[string][]int
}

// TrackInfo is returned by CreateTrack and fed into AddTrack.
type TrackInfo struct {
	ObjectID uint32
	Name     string
	Index    int
}

type albumKey struct {
	artist string
	name   string
}

// Library models the device's artist/album/track object graph.
type Library struct {
	session     *mtp.Session
	cache       *cachestore.Store
	guidObjects *mtpz.GUIDObjects
	log         *logrus.Entry

	storageID uint32

	artistSupported            bool
	albumDateAuthoredSupported bool
	albumCoverSupported        bool

	artistsFolder uint32
	albumsFolder  uint32
	musicFolder   uint32

	deviceSerial string

	mu         sync.Mutex
	artists    map[string]*ArtistRecord
	albums     map[albumKey]*AlbumRecord
	audiobooks map[string]*Audiobook
}

// Supported reports whether session's device advertises the minimum
// operation/format set the Library needs.
func Supported(session *mtp.Session) bool {
	return session.Supports(mtp.OC_MTP_GetObjPropList) &&
		session.Supports(mtp.OC_MTP_SendObjectPropList) &&
		session.Supports(mtp.OC_MTP_SetObjectReferences) &&
		session.SupportsPlaybackFormat(mtp.OFC_MTP_AbstractAudioAlbum)
}

// New builds a Library against session, hydrating its artist/album
// caches from the device's existing object graph. cache and
// guidObjects are both optional (nil disables the on-disk hint and
// GUID-tagged artist creation respectively).
func New(session *mtp.Session, cache *cachestore.Store, guidObjects *mtpz.GUIDObjects, log *logrus.Entry) (*Library, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}

	storages, err := session.GetStorageIDs()
	if err != nil {
		return nil, fmt.Errorf("library: GetStorageIDs: %w", err)
	}
	if len(storages) == 0 {
		return nil, fmt.Errorf("library: no storages found")
	}

	info, err := session.GetDeviceInfo()
	if err != nil {
		return nil, fmt.Errorf("library: GetDeviceInfo: %w", err)
	}

	l := &Library{
		session:      session,
		cache:        cache,
		guidObjects:  guidObjects,
		log:          log,
		storageID:    storages[0],
		deviceSerial: info.SerialNumber,
		artists:      make(map[string]*ArtistRecord),
		albums:       make(map[albumKey]*AlbumRecord),
		audiobooks:   make(map[string]*Audiobook),
	}

	l.artistSupported = session.SupportsPlaybackFormat(mtpz.OFC_Artist)
	l.log.Debugf("device supports ObjectFormat::Artist: %v", l.artistSupported)

	if propsSupported, err := session.GetObjectPropsSupported(mtp.OFC_MTP_AbstractAudioAlbum); err == nil {
		l.albumDateAuthoredSupported = containsUint16(propsSupported, mtp.OPC_DateAuthored)
		l.albumCoverSupported = containsUint16(propsSupported, mtp.OPC_RepresentativeSampleData)
	}

	if err := l.discoverFolders(); err != nil {
		return nil, err
	}
	if err := l.loadArtists(); err != nil {
		return nil, err
	}
	if err := l.loadAlbums(); err != nil {
		return nil, err
	}
	return l, nil
}

func containsUint16(list []uint16, want uint16) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

// listAssociations returns the direct Association children of parentId
// keyed by filename - the bulk alternative to one GetObjectInfo per
// child.
func (l *Library) listAssociations(parentID uint32) (map[string]uint32, error) {
	props, err := l.session.GetObjectPropertyList(parentID, mtp.OFC_Association, mtp.OPC_ObjectFileName, 0, 1)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint32, len(props))
	for _, p := range props {
		if name, ok := p.Value.(string); ok {
			out[name] = p.ObjectHandle
		}
	}
	return out, nil
}

// getOrCreate returns the handle of the Association named name under
// parentID, creating it if absent.
func (l *Library) getOrCreate(parentID uint32, name string) (uint32, error) {
	children, err := l.listAssociations(parentID)
	if err != nil {
		return 0, err
	}
	if h, ok := children[name]; ok {
		return h, nil
	}
	return l.session.CreateDirectory(name, parentID, l.storageID)
}

func (l *Library) discoverFolders() error {
	root, err := l.listAssociations(mtp.RootParent)
	if err != nil {
		return fmt.Errorf("library: listing root: %w", err)
	}
	l.artistsFolder = root[artistsFolderName]
	l.albumsFolder = root[albumsFolderName]
	l.musicFolder = root[musicFolderName]

	if l.artistSupported && l.artistsFolder == 0 {
		h, err := l.session.CreateDirectory(artistsFolderName, mtp.RootParent, l.storageID)
		if err != nil {
			return fmt.Errorf("library: creating Artists folder: %w", err)
		}
		l.artistsFolder = h
	}
	if l.albumsFolder == 0 {
		h, err := l.session.CreateDirectory(albumsFolderName, mtp.RootParent, l.storageID)
		if err != nil {
			return fmt.Errorf("library: creating Albums folder: %w", err)
		}
		l.albumsFolder = h
	}
	if l.musicFolder == 0 {
		h, err := l.session.CreateDirectory(musicFolderName, mtp.RootParent, l.storageID)
		if err != nil {
			return fmt.Errorf("library: creating Music folder: %w", err)
		}
		l.musicFolder = h
	}
	return nil
}

func (l *Library) loadArtists() error {
	if !l.artistSupported {
		return nil
	}
	musicFolders, err := l.listAssociations(l.musicFolder)
	if err != nil {
		return fmt.Errorf("library: listing Music/: %w", err)
	}

	props, err := l.session.GetObjectPropertyList(mtp.RootParent, mtpz.OFC_Artist, mtp.OPC_Name, 0, 1)
	if err != nil {
		return fmt.Errorf("library: listing artists: %w", err)
	}
	for _, p := range props {
		name, ok := p.Value.(string)
		if !ok {
			continue
		}
		rec := &ArtistRecord{Name: name, ObjectID: p.ObjectHandle}
		if folderID, ok := musicFolders[name]; ok {
			rec.MusicFolderID = folderID
		} else {
			folderID, err := l.session.CreateDirectory(name, l.musicFolder, l.storageID)
			if err != nil {
				return fmt.Errorf("library: creating music folder for %q: %w", name, err)
			}
			rec.MusicFolderID = folderID
		}
		if l.guidObjects != nil {
			if id, err := l.guidObjects.ArtistGUID(p.ObjectHandle); err == nil {
				rec.Guid = id[:]
			}
		}
		l.artists[name] = rec
		if l.cache != nil {
			l.cache.UpsertArtist(cachestore.ArtistRecord{
				DeviceSerial: l.deviceSerial, Name: name,
				ObjectID: rec.ObjectID, MusicFolderID: rec.MusicFolderID, Guid: rec.Guid,
			})
		}
	}
	return nil
}

func (l *Library) loadAlbums() error {
	props, err := l.session.GetObjectPropertyList(mtp.RootParent, mtp.OFC_MTP_AbstractAudioAlbum, mtp.OPC_Name, 0, 1)
	if err != nil {
		return fmt.Errorf("library: listing albums: %w", err)
	}

	albumFolders := make(map[string]map[string]uint32)
	for _, p := range props {
		name, ok := p.Value.(string)
		if !ok {
			continue
		}
		artistName, err := l.session.GetObjectStringProperty(p.ObjectHandle, mtp.OPC_Artist)
		if err != nil {
			artistName = unknownArtist
		}
		artist, ok := l.artists[artistName]
		if !ok {
			artist, err = l.createArtistLocked(artistName)
			if err != nil {
				return err
			}
		}

		var year int
		if l.albumDateAuthoredSupported {
			if s, err := l.session.GetObjectStringProperty(p.ObjectHandle, mtp.OPC_DateAuthored); err == nil {
				year = parseMTPYear(s)
			}
		}

		if _, ok := albumFolders[artist.Name]; !ok {
			children, err := l.listAssociations(artist.MusicFolderID)
			if err != nil {
				return fmt.Errorf("library: listing music folder for %q: %w", artist.Name, err)
			}
			albumFolders[artist.Name] = children
		}

		rec := &AlbumRecord{
			ArtistRef: artist.Name,
			Name:      name,
			ObjectID:  p.ObjectHandle,
			Year:      year,
		}
		if folderID, ok := albumFolders[artist.Name][name]; ok {
			rec.MusicFolderID = folderID
		} else {
			folderID, err := l.session.CreateDirectory(name, artist.MusicFolderID, l.storageID)
			if err != nil {
				return fmt.Errorf("library: creating album folder for %q: %w", name, err)
			}
			rec.MusicFolderID = folderID
		}

		l.albums[albumKey{artist: artist.Name, name: name}] = rec
		if l.cache != nil {
			l.cache.UpsertAlbum(cachestore.AlbumRecord{
				DeviceSerial: l.deviceSerial, ArtistRef: artist.Name, Name: name,
				ObjectID: rec.ObjectID, MusicFolderID: rec.MusicFolderID, Year: rec.Year,
			})
		}
	}
	return nil
}

// GetArtist returns the cached record for name, or nil.
func (l *Library) GetArtist(name string) *ArtistRecord {
	if name == "" {
		name = unknownArtist
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.artists[name]
}

// ListArtists returns every artist currently hydrated into the cache,
// in no particular order.
func (l *Library) ListArtists() []*ArtistRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*ArtistRecord, 0, len(l.artists))
	for _, a := range l.artists {
		out = append(out, a)
	}
	return out
}

// CreateArtist returns the existing record for name if one exists,
// otherwise creates it - on the device if artist objects are
// supported, GUID-tagged when a GUIDObjects bundle is available,
// purely local bookkeeping otherwise.
func (l *Library) CreateArtist(name string) (*ArtistRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createArtistLocked(name)
}

func (l *Library) createArtistLocked(name string) (*ArtistRecord, error) {
	if name == "" {
		name = unknownArtist
	}
	if rec, ok := l.artists[name]; ok {
		return rec, nil
	}

	folderID, err := l.getOrCreate(l.musicFolder, name)
	if err != nil {
		return nil, fmt.Errorf("library: CreateArtist %q: music folder: %w", name, err)
	}
	rec := &ArtistRecord{Name: name, MusicFolderID: folderID}

	if l.artistSupported {
		if l.guidObjects != nil {
			handle, id, err := l.guidObjects.CreateArtist(l.storageID, l.artistsFolder, name)
			if err != nil {
				return nil, fmt.Errorf("library: CreateArtist %q: %w", name, err)
			}
			rec.ObjectID = handle
			rec.Guid = id[:]
		} else {
			props := []mtp.ObjectProp{
				{PropertyCode: mtp.OPC_Name, DataType: mtp.DTC_STR, Value: name},
				{PropertyCode: mtp.OPC_ObjectFileName, DataType: mtp.DTC_STR, Value: name + ".art"},
			}
			handle, err := l.session.SendObjectPropList(l.storageID, l.artistsFolder, mtpz.OFC_Artist, 0, props)
			if err != nil {
				return nil, fmt.Errorf("library: CreateArtist %q: %w", name, err)
			}
			rec.ObjectID = handle
		}
	}

	l.artists[name] = rec
	if l.cache != nil {
		l.cache.UpsertArtist(cachestore.ArtistRecord{
			DeviceSerial: l.deviceSerial, Name: name,
			ObjectID: rec.ObjectID, MusicFolderID: rec.MusicFolderID, Guid: rec.Guid,
		})
	}
	return rec, nil
}

// GetAlbum returns the cached record for (artist, name), or nil.
func (l *Library) GetAlbum(artist *ArtistRecord, name string) *AlbumRecord {
	if name == "" {
		name = unknownAlbum
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.albums[albumKey{artist: artist.Name, name: name}]
}

// CreateAlbum returns the existing record if one exists, otherwise
// creates it on the device.
func (l *Library) CreateAlbum(artist *ArtistRecord, name string, year int) (*AlbumRecord, error) {
	if artist == nil {
		return nil, fmt.Errorf("library: CreateAlbum: artist is required")
	}
	if name == "" {
		name = unknownAlbum
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.albums[albumKey{artist: artist.Name, name: name}]; ok {
		return rec, nil
	}

	folderID, err := l.getOrCreate(artist.MusicFolderID, name)
	if err != nil {
		return nil, fmt.Errorf("library: CreateAlbum %q: music folder: %w", name, err)
	}

	sendYear := year != 0 && l.albumDateAuthoredSupported
	props := make([]mtp.ObjectProp, 0, 4)
	if l.artistSupported {
		props = append(props, mtp.ObjectProp{PropertyCode: vendorArtistIDProp, DataType: mtp.DTC_UINT32, Value: uint32(artist.ObjectID)})
	} else {
		props = append(props, mtp.ObjectProp{PropertyCode: mtp.OPC_Artist, DataType: mtp.DTC_STR, Value: artist.Name})
	}
	props = append(props,
		mtp.ObjectProp{PropertyCode: mtp.OPC_Name, DataType: mtp.DTC_STR, Value: name},
		mtp.ObjectProp{PropertyCode: mtp.OPC_ObjectFileName, DataType: mtp.DTC_STR, Value: artist.Name + "--" + name + ".alb"},
	)
	if sendYear {
		props = append(props, mtp.ObjectProp{PropertyCode: mtp.OPC_DateAuthored, DataType: mtp.DTC_STR, Value: formatMTPYear(year)})
	}

	handle, err := l.session.SendObjectPropList(l.storageID, l.albumsFolder, mtp.OFC_MTP_AbstractAudioAlbum, 0, props)
	if err != nil {
		return nil, fmt.Errorf("library: CreateAlbum %q: %w", name, err)
	}

	rec := &AlbumRecord{ArtistRef: artist.Name, Name: name, ObjectID: handle, MusicFolderID: folderID, Year: year}
	l.albums[albumKey{artist: artist.Name, name: name}] = rec
	if l.cache != nil {
		l.cache.UpsertAlbum(cachestore.AlbumRecord{
			DeviceSerial: l.deviceSerial, ArtistRef: artist.Name, Name: name,
			ObjectID: handle, MusicFolderID: folderID, Year: year,
		})
	}
	return rec, nil
}

// HasTrack reports whether album already has a track named name at
// trackIndex, loading the album's references first if needed.
func (l *Library) HasTrack(album *AlbumRecord, name string, trackIndex int) bool {
	if album == nil {
		return false
	}
	if err := l.LoadRefs(album); err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, idx := range album.trackNames[name] {
		if idx == trackIndex {
			return true
		}
	}
	return false
}

// CreateTrack creates a new track object under album's music folder.
// genre and trackIndex are omitted from the property list when empty/
// zero; durationMs, when nonzero, is set as a follow-up
// SetObjectPropValue once GetObjectPropsSupported confirms Duration is
// writable.
func (l *Library) CreateTrack(artist *ArtistRecord, album *AlbumRecord, format uint16, name, genre string, trackIndex int, filename string, size uint32, durationMs uint32) (*TrackInfo, error) {
	if artist == nil || album == nil {
		return nil, fmt.Errorf("library: CreateTrack: artist and album are required")
	}

	props := make([]mtp.ObjectProp, 0, 6)
	if l.artistSupported {
		props = append(props, mtp.ObjectProp{PropertyCode: vendorArtistIDProp, DataType: mtp.DTC_UINT32, Value: uint32(artist.ObjectID)})
	} else {
		props = append(props, mtp.ObjectProp{PropertyCode: mtp.OPC_Artist, DataType: mtp.DTC_STR, Value: artist.Name})
	}
	props = append(props, mtp.ObjectProp{PropertyCode: mtp.OPC_Name, DataType: mtp.DTC_STR, Value: name})
	if trackIndex != 0 {
		props = append(props, mtp.ObjectProp{PropertyCode: mtp.OPC_Track, DataType: mtp.DTC_UINT16, Value: uint16(trackIndex)})
	}
	if genre != "" {
		props = append(props, mtp.ObjectProp{PropertyCode: mtp.OPC_Genre, DataType: mtp.DTC_STR, Value: genre})
	}
	props = append(props, mtp.ObjectProp{PropertyCode: mtp.OPC_ObjectFileName, DataType: mtp.DTC_STR, Value: filename})

	handle, err := l.session.SendObjectPropList(l.storageID, album.MusicFolderID, format, size, props)
	if err != nil {
		return nil, fmt.Errorf("library: CreateTrack %q: %w", name, err)
	}

	if durationMs != 0 {
		if supported, err := l.session.GetObjectPropsSupported(format); err == nil && containsUint16(supported, mtp.OPC_Duration) {
			_ = l.session.SetObjectUint32Property(handle, mtp.OPC_Duration, durationMs)
		}
	}

	return &TrackInfo{ObjectID: handle, Name: name, Index: trackIndex}, nil
}

// LoadRefs populates album.refs/trackNames from the device, once.
func (l *Library) LoadRefs(album *AlbumRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadRefsLocked(album)
}

func (l *Library) loadRefsLocked(album *AlbumRecord) error {
	if album == nil || album.refsLoaded {
		return nil
	}
	refs, err := l.session.GetObjectReferences(album.ObjectID)
	if err != nil {
		return fmt.Errorf("library: LoadRefs: %w", err)
	}
	album.refs = make(map[uint32]struct{}, len(refs))
	album.trackNames = make(map[string][]int)
	for _, handle := range refs {
		album.refs[handle] = struct{}{}
		name, _ := l.session.GetObjectStringProperty(handle, mtp.OPC_Name)
		index, _ := l.session.GetObjectUint32Property(handle, mtp.OPC_Track)
		album.trackNames[name] = append(album.trackNames[name], int(index))
	}
	album.refsLoaded = true
	return nil
}

// AddTrack appends ti to album's reference list on the device.
func (l *Library) AddTrack(album *AlbumRecord, ti *TrackInfo) error {
	if album == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadRefsLocked(album); err != nil {
		return err
	}

	handles := make([]uint32, 0, len(album.refs)+1)
	for h := range album.refs {
		handles = append(handles, h)
	}
	handles = append(handles, ti.ObjectID)
	if err := l.session.SetObjectReferences(album.ObjectID, handles); err != nil {
		return fmt.Errorf("library: AddTrack: %w", err)
	}

	album.refs[ti.ObjectID] = struct{}{}
	album.trackNames[ti.Name] = append(album.trackNames[ti.Name], ti.Index)
	return nil
}

// AddCover uploads data as album's RepresentativeSampleData, a no-op
// if the device never advertised support for that property.
func (l *Library) AddCover(album *AlbumRecord, data []byte) error {
	if album == nil || !l.albumCoverSupported {
		return nil
	}
	if err := l.session.SetObjectPropValue(album.ObjectID, mtp.OPC_RepresentativeSampleData, data); err != nil {
		return fmt.Errorf("library: AddCover: %w", err)
	}
	return nil
}

// GetAlbumsByArtist returns every cached album belonging to artist.
func (l *Library) GetAlbumsByArtist(artist *ArtistRecord) []*AlbumRecord {
	if artist == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*AlbumRecord
	for _, album := range l.albums {
		if album.ArtistRef == artist.Name {
			out = append(out, album)
		}
	}
	return out
}

// UpdateAlbumArtist re-points album at newArtist, both locally and on
// the device (ArtistId when supported, the Artist string otherwise).
func (l *Library) UpdateAlbumArtist(album *AlbumRecord, newArtist *ArtistRecord) error {
	if album == nil || newArtist == nil {
		return fmt.Errorf("library: UpdateAlbumArtist: album and artist are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	oldRef := album.ArtistRef
	var err error
	if l.artistSupported {
		err = l.session.SetObjectUint32Property(album.ObjectID, vendorArtistIDProp, newArtist.ObjectID)
	} else {
		err = l.session.SetObjectStringProperty(album.ObjectID, mtp.OPC_Artist, newArtist.Name)
	}
	if err != nil {
		// Leave the cache indexed under the artist the device still
		// agrees with and delete the album's on-disk row. No re-read
		// or retry happens here; the error goes to the caller.
		if l.cache != nil {
			l.cache.InvalidateAlbum(l.deviceSerial, oldRef, album.Name)
		}
		return fmt.Errorf("library: UpdateAlbumArtist: %w", err)
	}

	delete(l.albums, albumKey{artist: oldRef, name: album.Name})
	album.ArtistRef = newArtist.Name
	l.albums[albumKey{artist: newArtist.Name, name: album.Name}] = album
	if l.cache != nil {
		l.cache.UpsertAlbum(cachestore.AlbumRecord{
			DeviceSerial: l.deviceSerial, ArtistRef: newArtist.Name, Name: album.Name,
			ObjectID: album.ObjectID, MusicFolderID: album.MusicFolderID, Year: album.Year,
		})
	}
	return nil
}

// GetTracksForAlbum returns every track object-id referenced by album.
func (l *Library) GetTracksForAlbum(album *AlbumRecord) ([]uint32, error) {
	if album == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadRefsLocked(album); err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(album.refs))
	for h := range album.refs {
		out = append(out, h)
	}
	return out, nil
}

// UpdateTrackArtist re-points a single track at newArtist on the
// device.
func (l *Library) UpdateTrackArtist(trackID uint32, newArtist *ArtistRecord) error {
	if newArtist == nil {
		return fmt.Errorf("library: UpdateTrackArtist: artist is required")
	}
	if l.artistSupported {
		return l.session.SetObjectUint32Property(trackID, vendorArtistIDProp, newArtist.ObjectID)
	}
	return l.session.SetObjectStringProperty(trackID, mtp.OPC_Artist, newArtist.Name)
}

// formatMTPYear renders year as an MTP DateTime string (the
// PTP/MTP "YYYYMMDDThhmmss" form), the format ObjectProperty::
// DateAuthored expects. Only the year is known for an album, so the
// remaining fields are zeroed.
func formatMTPYear(year int) string {
	return fmt.Sprintf("%04d0101T000000", year)
}

// parseMTPYear is formatMTPYear's inverse, tolerant of any string that
// starts with a 4-digit year.
func parseMTPYear(s string) int {
	if len(s) < 4 {
		return 0
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0
	}
	return year
}
