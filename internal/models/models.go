package models

// Shared record types exchanged between the host and source extensions.
// Both extension-SDK generations are normalized into these structures
// before anything outside the runtime sees them.

// PublishingStatus describes the publication state of a manga.
type PublishingStatus int

const (
	StatusUnknown PublishingStatus = iota
	StatusOngoing
	StatusCompleted
	StatusCancelled
	StatusHiatus
)

// ContentRating flags manga that require filtering in library views.
type ContentRating int

const (
	RatingSafe ContentRating = iota
	RatingSuggestive
	RatingNSFW
)

// Viewer hints which reader layout suits the manga.
type Viewer int

const (
	ViewerDefault Viewer = iota
	ViewerRTL
	ViewerLTR
	ViewerVertical
	ViewerScroll
)

// Manga is the normalized manga record returned by every source.
type Manga struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Author      string           `json:"author,omitempty"`
	Artist      string           `json:"artist,omitempty"`
	Description string           `json:"description,omitempty"`
	URL         string           `json:"url,omitempty"`
	CoverURL    string           `json:"cover_url,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Status      PublishingStatus `json:"status"`
	Rating      ContentRating    `json:"rating"`
	Viewer      Viewer           `json:"viewer"`
}

// Chapter is one chapter entry of a manga.
type Chapter struct {
	ID           string  `json:"id"`
	MangaID      string  `json:"manga_id"`
	Title        string  `json:"title,omitempty"`
	Volume       float32 `json:"volume,omitempty"`
	Chapter      float32 `json:"chapter,omitempty"`
	DateUploaded int64   `json:"date_uploaded,omitempty"` // unix seconds
	Scanlator    string  `json:"scanlator,omitempty"`
	URL          string  `json:"url,omitempty"`
	Lang         string  `json:"lang,omitempty"`
}

// Page is one page of a chapter. Exactly one of URL, Base64 or Text is
// normally set; Context carries source-private data forwarded to the
// image-request and image-process capabilities.
type Page struct {
	Index   int               `json:"index"`
	URL     string            `json:"url,omitempty"`
	Base64  string            `json:"base64,omitempty"`
	Text    string            `json:"text,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// FilterKind discriminates search filter payloads.
type FilterKind int

const (
	FilterBase FilterKind = iota
	FilterGroup
	FilterText
	FilterCheck
	FilterSelect
	FilterSort
	FilterSortSelection
	FilterTitle
	FilterAuthor
	FilterGenre
)

// Filter is one search-filter value supplied by the caller.
type Filter struct {
	Kind     FilterKind `json:"kind"`
	Name     string     `json:"name"`
	StringV  string     `json:"string_value,omitempty"`
	IntV     int64      `json:"int_value,omitempty"`
	BoolV    bool       `json:"bool_value,omitempty"`
	Children []Filter   `json:"children,omitempty"`
}

// Listing names a source-defined browse listing ("Popular", "Latest", ...).
type Listing struct {
	Name string `json:"name"`
}

// MangaPageResult is one page of a paginated manga list.
type MangaPageResult struct {
	Manga   []Manga `json:"manga"`
	HasMore bool    `json:"has_more"`
}

// DeepLink is the result of resolving an external URL to source entities.
type DeepLink struct {
	Manga   *Manga   `json:"manga,omitempty"`
	Chapter *Chapter `json:"chapter,omitempty"`
}

// Request describes an HTTP request the host (or the download pipeline)
// should perform on behalf of a source.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// Response carries the response metadata handed back to the optional
// image post-processing capability.
type Response struct {
	URL     string            `json:"url"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
}
