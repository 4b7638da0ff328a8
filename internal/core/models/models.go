package models

import (
	"encoding/json"
	"time"
)

// LocalIndex is the registry-wide list of package names plus the shared secret.
type LocalIndex struct {
	List   []string `json:"list"`
	Secret string   `json:"secret"`
}

// Contains reports whether name is already listed.
func (l *LocalIndex) Contains(name string) bool {
	return l.indexOf(name) >= 0
}

func (l *LocalIndex) indexOf(name string) int {
	for i, n := range l.List {
		if n == name {
			return i
		}
	}
	return -1
}

// Without returns a copy of the index with name removed.
func (l *LocalIndex) Without(name string) *LocalIndex {
	c := l.Clone()
	if i := c.indexOf(name); i >= 0 {
		c.List = append(c.List[:i], c.List[i+1:]...)
	}
	return c
}

// Clone returns a deep copy.
func (l *LocalIndex) Clone() *LocalIndex {
	list := make([]string, len(l.List))
	copy(list, l.List)
	return &LocalIndex{List: list, Secret: l.Secret}
}

// Manifest is the per-package metadata document. Version descriptors and
// file references are kept as raw JSON because this layer never interprets them.
// Top-level members without a field of their own (time, readme, maintainers...)
// are carried in Extra so a document survives a save unchanged.
type Manifest struct {
	Name          string                     `json:"name"`
	Versions      map[string]json.RawMessage `json:"versions"`
	DistTags      map[string]string          `json:"dist-tags"`
	DistFiles     map[string]json.RawMessage `json:"_distfiles"`
	Attachments   map[string]json.RawMessage `json:"_attachments"`
	UpstreamLinks map[string]json.RawMessage `json:"_uplinks"`
	Revision      string                     `json:"_rev"`
	Extra         map[string]json.RawMessage `json:"-"`
}

var manifestFields = []string{"name", "versions", "dist-tags", "_distfiles", "_attachments", "_uplinks", "_rev"}

// NewManifest returns the empty document a package starts with.
func NewManifest(name string) *Manifest {
	m := &Manifest{Name: name}
	m.fillMaps()
	return m
}

func (m *Manifest) fillMaps() {
	if m.Versions == nil {
		m.Versions = map[string]json.RawMessage{}
	}
	if m.DistTags == nil {
		m.DistTags = map[string]string{}
	}
	if m.DistFiles == nil {
		m.DistFiles = map[string]json.RawMessage{}
	}
	if m.Attachments == nil {
		m.Attachments = map[string]json.RawMessage{}
	}
	if m.UpstreamLinks == nil {
		m.UpstreamLinks = map[string]json.RawMessage{}
	}
}

type plainManifest Manifest

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var p plainManifest
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range manifestFields {
		delete(all, k)
	}
	p.Extra = nil
	if len(all) > 0 {
		p.Extra = all
	}

	*m = Manifest(p)
	m.fillMaps()
	return nil
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	m.fillMaps()
	known, err := json.Marshal(plainManifest(m))
	if err != nil || len(m.Extra) == 0 {
		return known, err
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(known, &out); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// PutOptions carries the HTTP-style headers stored alongside an object.
type PutOptions struct {
	ContentType  string `json:"content_type"`
	CacheControl string `json:"cache_control,omitempty"`
}

// ObjectProperties describes a stored object without its body.
type ObjectProperties struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	CacheControl string    `json:"cache_control,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// Setting is a single key/value entry of a configuration store.
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	ContentType string    `json:"content_type"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type UploadResponse struct {
	Package string `json:"package"`
	File    string `json:"file"`
	Size    int64  `json:"size"`
}

// Token is an API token record as the host registry hands it to storage.
type Token struct {
	User     string    `json:"user"`
	Key      string    `json:"key"`
	Token    string    `json:"token"`
	ReadOnly bool      `json:"readonly"`
	Created  time.Time `json:"created"`
}

type TokenFilter struct {
	User string `json:"user"`
}
