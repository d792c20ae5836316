package protocol

// TrackInfo is the decoded metadata of a track. Nullable strings are nil
// when absent from the wire.
type TrackInfo struct {
	Identifier string  `json:"identifier"`
	IsSeekable bool    `json:"isSeekable"`
	Author     string  `json:"author"`
	Length     int64   `json:"length"`
	IsStream   bool    `json:"isStream"`
	Position   int64   `json:"position"`
	Title      string  `json:"title"`
	URI        *string `json:"uri"`
	ArtworkURL *string `json:"artworkUrl"`
	ISRC       *string `json:"isrc"`
	SourceName string  `json:"sourceName"`
}

// TrackData pairs the encoded identifier with its metadata.
type TrackData struct {
	Encoded    string         `json:"encoded"`
	Info       TrackInfo      `json:"info"`
	PluginInfo map[string]any `json:"pluginInfo,omitempty"`
	UserData   map[string]any `json:"userData,omitempty"`
}

// LoadType is the discriminant of a /loadtracks response.
type LoadType string

const (
	LoadTrack    LoadType = "track"
	LoadPlaylist LoadType = "playlist"
	LoadSearch   LoadType = "search"
	LoadEmpty    LoadType = "empty"
	LoadError    LoadType = "error"
)

// PlaylistInfo names a loaded playlist.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// PlaylistData is the "playlist" variant of a load result.
type PlaylistData struct {
	Info       PlaylistInfo   `json:"info"`
	PluginInfo map[string]any `json:"pluginInfo,omitempty"`
	Tracks     []TrackData    `json:"tracks"`
}

// StrPtr returns a pointer to s, used for nullable fields.
func StrPtr(s string) *string {
	return &s
}

// StrValue dereferences a nullable string.
func StrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
