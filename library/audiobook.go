package library

import (
	"fmt"

	"mtpzhost/mtp"
)

const audiobooksFolderName = "Audiobooks"

// audiobookFormat is the ObjectFormatCode an Audiobook container
// object is created with. The original declares CreateAudiobook/
// CreateAudiobookTrack/AddAudiobookTrack/AddAudiobookTrackCover/
// LoadAudiobookRefs but never implements their bodies, so the
// container format is not stated anywhere in the retrieved source;
// MTP_AbstractChapteredProduction (0xba08) is the standard format
// Windows Media associates with chaptered spoken-word content such as
// audiobooks and podcasts, so it is used here.
const audiobookFormat = mtp.OFC_MTP_AbstractChapteredProduction

// Audiobook is one audiobook: its container object, author, and
// release year.
type Audiobook struct {
	Name          string
	Author        string
	Year          int
	ObjectID      uint32
	MusicFolderID uint32

	refsLoaded bool
	refs       map[uint32]struct{}
	trackNames map[string][]int
}

func (l *Library) discoverAudiobooksFolder() (uint32, error) {
	root, err := l.listAssociations(mtp.RootParent)
	if err != nil {
		return 0, fmt.Errorf("library: listing root: %w", err)
	}
	if h, ok := root[audiobooksFolderName]; ok {
		return h, nil
	}
	return l.session.CreateDirectory(audiobooksFolderName, mtp.RootParent, l.storageID)
}

// GetAudiobook returns the cached record for name, or nil.
func (l *Library) GetAudiobook(name string) *Audiobook {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.audiobooks[name]
}

// CreateAudiobook returns the existing record for name if one exists,
// otherwise creates the container object and its music folder.
func (l *Library) CreateAudiobook(name, author string, year int) (*Audiobook, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.audiobooks[name]; ok {
		return rec, nil
	}

	audiobooksFolder, err := l.discoverAudiobooksFolder()
	if err != nil {
		return nil, fmt.Errorf("library: CreateAudiobook %q: %w", name, err)
	}
	folderID, err := l.getOrCreate(audiobooksFolder, name)
	if err != nil {
		return nil, fmt.Errorf("library: CreateAudiobook %q: music folder: %w", name, err)
	}

	props := []mtp.ObjectProp{
		{PropertyCode: mtp.OPC_Name, DataType: mtp.DTC_STR, Value: name},
		{PropertyCode: mtp.OPC_Artist, DataType: mtp.DTC_STR, Value: author},
		{PropertyCode: mtp.OPC_ObjectFileName, DataType: mtp.DTC_STR, Value: author + "--" + name + ".aab"},
	}
	if year != 0 && l.albumDateAuthoredSupported {
		props = append(props, mtp.ObjectProp{PropertyCode: mtp.OPC_DateAuthored, DataType: mtp.DTC_STR, Value: formatMTPYear(year)})
	}

	handle, err := l.session.SendObjectPropList(l.storageID, audiobooksFolder, audiobookFormat, 0, props)
	if err != nil {
		return nil, fmt.Errorf("library: CreateAudiobook %q: %w", name, err)
	}

	rec := &Audiobook{Name: name, Author: author, Year: year, ObjectID: handle, MusicFolderID: folderID}
	l.audiobooks[name] = rec
	return rec, nil
}

// CreateAudiobookTrack creates a new track object under audiobook's
// music folder, the Audiobook counterpart of CreateTrack.
func (l *Library) CreateAudiobookTrack(audiobook *Audiobook, format uint16, name string, trackIndex int, filename string, size uint32, durationMs uint32) (*TrackInfo, error) {
	if audiobook == nil {
		return nil, fmt.Errorf("library: CreateAudiobookTrack: audiobook is required")
	}

	props := []mtp.ObjectProp{
		{PropertyCode: mtp.OPC_Artist, DataType: mtp.DTC_STR, Value: audiobook.Author},
		{PropertyCode: mtp.OPC_Name, DataType: mtp.DTC_STR, Value: name},
		{PropertyCode: mtp.OPC_ObjectFileName, DataType: mtp.DTC_STR, Value: filename},
	}
	if trackIndex != 0 {
		props = append(props, mtp.ObjectProp{PropertyCode: mtp.OPC_Track, DataType: mtp.DTC_UINT16, Value: uint16(trackIndex)})
	}

	handle, err := l.session.SendObjectPropList(l.storageID, audiobook.MusicFolderID, format, size, props)
	if err != nil {
		return nil, fmt.Errorf("library: CreateAudiobookTrack %q: %w", name, err)
	}

	if durationMs != 0 {
		if supported, err := l.session.GetObjectPropsSupported(format); err == nil && containsUint16(supported, mtp.OPC_Duration) {
			_ = l.session.SetObjectUint32Property(handle, mtp.OPC_Duration, durationMs)
		}
	}

	return &TrackInfo{ObjectID: handle, Name: name, Index: trackIndex}, nil
}

// LoadAudiobookRefs populates audiobook.refs/trackNames from the
// device, once.
func (l *Library) LoadAudiobookRefs(audiobook *Audiobook) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadAudiobookRefsLocked(audiobook)
}

func (l *Library) loadAudiobookRefsLocked(audiobook *Audiobook) error {
	if audiobook == nil || audiobook.refsLoaded {
		return nil
	}
	refs, err := l.session.GetObjectReferences(audiobook.ObjectID)
	if err != nil {
		return fmt.Errorf("library: LoadAudiobookRefs: %w", err)
	}
	audiobook.refs = make(map[uint32]struct{}, len(refs))
	audiobook.trackNames = make(map[string][]int)
	for _, handle := range refs {
		audiobook.refs[handle] = struct{}{}
		name, _ := l.session.GetObjectStringProperty(handle, mtp.OPC_Name)
		index, _ := l.session.GetObjectUint32Property(handle, mtp.OPC_Track)
		audiobook.trackNames[name] = append(audiobook.trackNames[name], int(index))
	}
	audiobook.refsLoaded = true
	return nil
}

// AddAudiobookTrack appends ti to audiobook's reference list on the
// device.
func (l *Library) AddAudiobookTrack(audiobook *Audiobook, ti *TrackInfo) error {
	if audiobook == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.loadAudiobookRefsLocked(audiobook); err != nil {
		return err
	}

	handles := make([]uint32, 0, len(audiobook.refs)+1)
	for h := range audiobook.refs {
		handles = append(handles, h)
	}
	handles = append(handles, ti.ObjectID)
	if err := l.session.SetObjectReferences(audiobook.ObjectID, handles); err != nil {
		return fmt.Errorf("library: AddAudiobookTrack: %w", err)
	}

	audiobook.refs[ti.ObjectID] = struct{}{}
	audiobook.trackNames[ti.Name] = append(audiobook.trackNames[ti.Name], ti.Index)
	return nil
}

// AddAudiobookTrackCover uploads data as trackId's
// RepresentativeSampleData, a no-op if the device never advertised
// support for that property on the AbstractAudioAlbum format (the same
// check album cover art uses).
func (l *Library) AddAudiobookTrackCover(trackID uint32, data []byte) error {
	if !l.albumCoverSupported {
		return nil
	}
	if err := l.session.SetObjectPropValue(trackID, mtp.OPC_RepresentativeSampleData, data); err != nil {
		return fmt.Errorf("library: AddAudiobookTrackCover: %w", err)
	}
	return nil
}
