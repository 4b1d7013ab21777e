package store

// Domain models mirroring the SQL tables in schema.go. These are lightweight
// data transfer structs, not an ORM layer.

// ItemType classifies the kind of payload a capture resolved to.
type ItemType string

const (
	ItemTypeText  ItemType = "text"
	ItemTypeRTF   ItemType = "rtf"
	ItemTypeHTML  ItemType = "html"
	ItemTypeImage ItemType = "image"
	ItemTypeFile  ItemType = "file"
	ItemTypeOther ItemType = "other"
)

// Item is one persisted clipboard capture. Maps to the items table.
type Item struct {
	RowID       int64    // row_id: dense integer PK, join key for FTS and the fuzzy index
	ID          string   // id: opaque stable UUID-shaped identifier
	Type        ItemType // type: text, rtf, html, image, file, other
	ContentHash string   // content_hash: dedup fingerprint (see hashutil)
	PlainText   string   // plain_text: normalized indexable text, may be truncated summary
	AppBundleID string   // app_bundle_id: source application identifier, optional
	CreatedAt   float64  // created_at: unix seconds, real-valued
	LastUsedAt  float64  // last_used_at: unix seconds, real-valued
	UseCount    int      // use_count: >= 1
	IsPinned    bool     // is_pinned
	SizeBytes   int64    // size_bytes: payload size
	StorageRef  string   // storage_ref: absolute path to external blob, empty if inline
	RawData     []byte   // raw_data: inline blob, nil if externalized
}

// MetadataDelta carries the fields update_metadata is allowed to touch.
// Nil fields are left unchanged; this never rewrites plain_text, preserving
// the FTS write-amplification invariant enforced by the schema's triggers.
type MetadataDelta struct {
	IsPinned   *bool
	LastUsedAt *float64
	UseCount   *int
}

// Statistics is the O(1) read of the maintained counters in meta.
type Statistics struct {
	ItemCount      int64
	UnpinnedCount  int64
	TotalSizeBytes int64
	MutationSeq    int64
}

// Filters narrows fetch_recent by optional app/type predicates.
type Filters struct {
	Type        ItemType // empty means no type filter
	AppBundleID string   // empty means no app filter
}

// Page is the result of fetch_recent: Items holds at most limit rows, and
// HasMore reports whether the store held further matching rows beyond the
// page (derived from requesting limit+1 rows, never a COUNT query).
type Page struct {
	Items   []Item
	HasMore bool
}

// OutboxEvent is one row of the outbox table, consumed by the event bus.
type OutboxEvent struct {
	Seq     int64
	Kind    string
	Payload []byte
}
