package transfer

import "encoding/json"

type BlueskyCreateSessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type BlueskySession struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	DID        string `json:"did"`
}

type BlueskyUploadBlobResponse struct {
	// Blob is echoed back verbatim inside the post record.
	Blob json.RawMessage `json:"blob"`
}

type BlueskyImage struct {
	Alt   string          `json:"alt"`
	Image json.RawMessage `json:"image"`
}

type BlueskyImagesEmbed struct {
	Type   string         `json:"$type"`
	Images []BlueskyImage `json:"images"`
}

type BlueskyPostRecord struct {
	Type      string              `json:"$type"`
	Text      string              `json:"text"`
	Facets    []BlueskyFacet      `json:"facets,omitempty"`
	CreatedAt string              `json:"createdAt"`
	Embed     *BlueskyImagesEmbed `json:"embed,omitempty"`
}

// BlueskyFacet marks a byte range of the post text as a link or a tag.
type BlueskyFacet struct {
	Index    BlueskyByteSlice      `json:"index"`
	Features []BlueskyFacetFeature `json:"features"`
}

type BlueskyByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type BlueskyFacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

type BlueskyCreateRecordRequest struct {
	Repo       string            `json:"repo"`
	Collection string            `json:"collection"`
	Record     BlueskyPostRecord `json:"record"`
}

type BlueskyCreateRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}
