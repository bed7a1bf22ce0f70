// Package conversation keeps the ordered client-side mirror of conversation
// items.
package conversation

import (
	"encoding/base64"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codewandler/realtime-go/events"
)

// Root denotes the beginning of the conversation in previous-item references.
const Root = "root"

const defaultAudioCacheSize = 64

var (
	ErrItemNotFound   = errors.New("item not found")
	ErrNotTruncatable = errors.New("item not truncatable")
	ErrInvalidItem    = errors.New("invalid item")
)

// PartState is the local accounting of one content part.
type PartState struct {
	// AudioBytes is the length of the audio the part holds, as observed from
	// streamed deltas or a retrieve round trip.
	AudioBytes int
	// AudioFetched reports whether the raw audio payload is held locally.
	// Audio is only fetched by an explicit retrieve.
	AudioFetched        bool
	TranscriptionFailed bool
}

// Item is the stored view of a conversation item.
type Item struct {
	events.Item
	PreviousID string
	Parts      []PartState
}

// AudioMS returns the duration of an audio part in milliseconds.
func (i Item) AudioMS(contentIndex int, format *events.AudioFormat) int {
	if contentIndex < 0 || contentIndex >= len(i.Parts) {
		return 0
	}
	return i.Parts[contentIndex].AudioBytes / format.BytesPerMS()
}

func (i Item) clone() Item {
	return Item{
		Item:       i.Item.Clone(),
		PreviousID: i.PreviousID,
		Parts:      append([]PartState(nil), i.Parts...),
	}
}

type partKey struct {
	itemID string
	index  int
}

// Delta is a streamed fragment for one content part.
type Delta struct {
	Text       string
	Transcript string
	// Audio is base64 encoded.
	Audio string
}

// Store is an arena of items addressed by id with an explicit doubly linked
// order index. It is not safe for concurrent use.
type Store struct {
	items  map[string]*Item
	prev   map[string]string
	next   map[string]string
	head   string
	tail   string
	audio  *lru.Cache[partKey, []byte]
	format *events.AudioFormat
}

type StoreOption func(*storeConfig)

type storeConfig struct {
	audioCacheSize int
}

// WithAudioCacheSize bounds the number of retrieved audio payloads kept.
func WithAudioCacheSize(n int) StoreOption {
	return func(c *storeConfig) {
		c.audioCacheSize = n
	}
}

func NewStore(opts ...StoreOption) *Store {
	cfg := storeConfig{audioCacheSize: defaultAudioCacheSize}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.audioCacheSize <= 0 {
		cfg.audioCacheSize = defaultAudioCacheSize
	}
	s := &Store{
		items:  map[string]*Item{},
		prev:   map[string]string{},
		next:   map[string]string{},
		format: events.PCM24k(),
	}
	cache, err := lru.NewWithEvict[partKey, []byte](cfg.audioCacheSize, s.evicted)
	if err != nil {
		panic(err)
	}
	s.audio = cache
	return s
}

// evicted keeps AudioFetched in sync with the cache.
func (s *Store) evicted(k partKey, _ []byte) {
	it, ok := s.items[k.itemID]
	if !ok || k.index >= len(it.Parts) {
		return
	}
	it.Parts[k.index].AudioFetched = false
}

// SetAudioFormat sets the format used to convert durations to byte offsets
// for parts that do not carry their own format.
func (s *Store) SetAudioFormat(f *events.AudioFormat) {
	if f != nil {
		s.format = f
	}
}

func (s *Store) Len() int { return len(s.items) }

func (s *Store) Contains(id string) bool {
	_, ok := s.items[id]
	return ok
}

// Order returns the item ids from head to tail.
func (s *Store) Order() []string {
	out := make([]string, 0, len(s.items))
	for id := s.head; id != ""; id = s.next[id] {
		out = append(out, id)
	}
	return out
}

// Items returns copies of all items in order.
func (s *Store) Items() []Item {
	out := make([]Item, 0, len(s.items))
	for id := s.head; id != ""; id = s.next[id] {
		out = append(out, s.view(id))
	}
	return out
}

// Last returns the id of the tail item or Root for an empty conversation.
func (s *Store) Last() string {
	if s.tail == "" {
		return Root
	}
	return s.tail
}

// ValidatePrevious checks that a previous-item reference can be resolved.
func (s *Store) ValidatePrevious(previousID string) error {
	if previousID == "" || previousID == Root || s.Contains(previousID) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, previousID)
}

// Insert places item after previousID. A nil previousID appends new items at
// the tail and leaves known items where they are, Root moves the item to the
// head. Known items are re-spliced to the stated position and their content
// replaced.
func (s *Store) Insert(item events.Item, previousID *string) error {
	if item.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidItem)
	}
	if previousID != nil && *previousID != "" && *previousID != Root {
		if *previousID == item.ID {
			return fmt.Errorf("%w: %s cannot follow itself", ErrInvalidItem, item.ID)
		}
		if !s.Contains(*previousID) {
			return fmt.Errorf("%w: previous item %s", ErrItemNotFound, *previousID)
		}
	}

	existing, known := s.items[item.ID]
	if known {
		existing.Item = item.Clone()
		existing.Parts = resizeParts(existing.Parts, len(item.Content))
		s.absorbAudio(existing)
		if previousID == nil || *previousID == "" {
			return nil
		}
		s.unlink(item.ID)
	} else {
		stored := &Item{Item: item.Clone(), Parts: make([]PartState, len(item.Content))}
		s.absorbAudio(stored)
		s.items[item.ID] = stored
	}

	switch {
	case previousID == nil || *previousID == "":
		s.linkAfter(item.ID, s.tail)
	case *previousID == Root:
		s.linkAfter(item.ID, "")
	default:
		s.linkAfter(item.ID, *previousID)
	}
	return nil
}

// absorbAudio moves inline audio payloads out of the item into the cache.
func (s *Store) absorbAudio(it *Item) {
	for i := range it.Content {
		p := &it.Content[i]
		if p.Audio == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.Audio)
		p.Audio = ""
		if err != nil {
			continue
		}
		it.Parts[i].AudioBytes = len(data)
		it.Parts[i].AudioFetched = true
		s.audio.Add(partKey{it.ID, i}, data)
	}
}

func resizeParts(parts []PartState, n int) []PartState {
	for len(parts) < n {
		parts = append(parts, PartState{})
	}
	return parts
}

// linkAfter links id after prev; an empty prev links at the head.
func (s *Store) linkAfter(id, prev string) {
	var nxt string
	if prev == "" {
		nxt = s.head
		s.head = id
	} else {
		nxt = s.next[prev]
		s.next[prev] = id
		s.prev[id] = prev
	}
	if nxt == "" {
		s.tail = id
	} else {
		s.prev[nxt] = id
		s.next[id] = nxt
	}
}

func (s *Store) unlink(id string) {
	p, n := s.prev[id], s.next[id]
	if p == "" {
		s.head = n
	} else {
		s.next[p] = n
	}
	if n == "" {
		s.tail = p
	} else {
		s.prev[n] = p
	}
	delete(s.prev, id)
	delete(s.next, id)
}

// AddPart sets the content part at index, growing the content list as needed.
func (s *Store) AddPart(itemID string, contentIndex int, part events.ContentPart) error {
	it, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if contentIndex < 0 {
		return fmt.Errorf("%w: content index %d", ErrInvalidItem, contentIndex)
	}
	for len(it.Content) <= contentIndex {
		it.Content = append(it.Content, events.ContentPart{})
	}
	it.Parts = resizeParts(it.Parts, len(it.Content))
	part.Audio = ""
	it.Content[contentIndex] = part
	return nil
}

// ApplyContentDelta appends a streamed fragment to the addressed part. Audio
// is only accounted by length; the payload is not kept.
func (s *Store) ApplyContentDelta(itemID string, contentIndex int, d Delta) error {
	it, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if contentIndex < 0 {
		return fmt.Errorf("%w: content index %d", ErrInvalidItem, contentIndex)
	}
	for len(it.Content) <= contentIndex {
		it.Content = append(it.Content, events.ContentPart{})
	}
	it.Parts = resizeParts(it.Parts, len(it.Content))

	p := &it.Content[contentIndex]
	p.Text += d.Text
	p.Transcript += d.Transcript
	if d.Audio != "" {
		it.Parts[contentIndex].AudioBytes += base64.StdEncoding.DecodedLen(len(d.Audio)) - padding(d.Audio)
	}
	return nil
}

func padding(b64 string) int {
	n := 0
	for i := len(b64) - 1; i >= 0 && b64[i] == '='; i-- {
		n++
	}
	return n
}

// MarkDone replaces the accumulated content with the final representation.
// Audio accounting from streamed deltas is kept since final items omit raw
// audio.
func (s *Store) MarkDone(itemID string, final events.Item) error {
	it, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	final.ID = itemID
	it.Item = final.Clone()
	if it.Status != events.ItemStatusIncomplete {
		it.Status = events.ItemStatusCompleted
	}
	it.Parts = resizeParts(it.Parts, len(it.Content))
	s.absorbAudio(it)
	return nil
}

// SetStatus updates the status of an item, e.g. of an MCP call as it
// progresses.
func (s *Store) SetStatus(itemID string, status events.ItemStatus) error {
	it, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	it.Status = status
	return nil
}

// Delete removes the item and relinks its neighbours.
func (s *Store) Delete(itemID string) error {
	it, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	s.unlink(itemID)
	for i := range it.Parts {
		s.audio.Remove(partKey{itemID, i})
	}
	delete(s.items, itemID)
	return nil
}

// CheckTruncatable reports whether Truncate would accept the arguments.
func (s *Store) CheckTruncatable(itemID string, contentIndex int) error {
	it, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if it.Type != events.ItemTypeMessage || it.Role != events.RoleAssistant {
		return fmt.Errorf("%w: %s is not an assistant message", ErrNotTruncatable, itemID)
	}
	if contentIndex < 0 || contentIndex >= len(it.Content) {
		return fmt.Errorf("%w: %s has no content part %d", ErrNotTruncatable, itemID, contentIndex)
	}
	if t := it.Content[contentIndex].Type; t != "" && !t.IsAudio() {
		return fmt.Errorf("%w: content part %d of %s is %s", ErrNotTruncatable, contentIndex, itemID, t)
	}
	return nil
}

// Truncate cuts the addressed audio part to audioEndMS and drops its
// transcript entirely.
func (s *Store) Truncate(itemID string, contentIndex, audioEndMS int) error {
	if err := s.CheckTruncatable(itemID, contentIndex); err != nil {
		return err
	}
	if audioEndMS < 0 {
		audioEndMS = 0
	}
	it := s.items[itemID]
	part := &it.Content[contentIndex]
	format := s.format
	if part.Format != nil {
		format = part.Format
	}
	limit := audioEndMS * format.BytesPerMS()

	state := &it.Parts[contentIndex]
	state.AudioBytes = min(state.AudioBytes, limit)
	part.Transcript = ""
	if data, ok := s.audio.Get(partKey{itemID, contentIndex}); ok && len(data) > limit {
		s.audio.Add(partKey{itemID, contentIndex}, data[:limit])
	}
	return nil
}

// Retrieve returns a copy of the stored item.
func (s *Store) Retrieve(itemID string) (Item, error) {
	if _, ok := s.items[itemID]; !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	return s.view(itemID), nil
}

func (s *Store) view(id string) Item {
	v := s.items[id].clone()
	v.PreviousID = s.prev[id]
	if v.PreviousID == "" {
		v.PreviousID = Root
	}
	return v
}

// Audio returns the fetched raw audio of a part, if held.
func (s *Store) Audio(itemID string, contentIndex int) ([]byte, bool) {
	return s.audio.Get(partKey{itemID, contentIndex})
}

// StoreRetrieved applies the full representation returned by a retrieve
// round trip, including raw audio.
func (s *Store) StoreRetrieved(item events.Item) error {
	return s.Insert(item, nil)
}

func (s *Store) ApplyTranscriptionDelta(itemID string, contentIndex int, delta string) error {
	return s.ApplyContentDelta(itemID, contentIndex, Delta{Transcript: delta})
}

// ApplyTranscriptionCompleted sets the final transcript of an input audio part.
func (s *Store) ApplyTranscriptionCompleted(itemID string, contentIndex int, transcript string) error {
	it, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if contentIndex < 0 {
		return fmt.Errorf("%w: content index %d", ErrInvalidItem, contentIndex)
	}
	for len(it.Content) <= contentIndex {
		it.Content = append(it.Content, events.ContentPart{Type: events.ContentTypeInputAudio})
	}
	it.Parts = resizeParts(it.Parts, len(it.Content))
	it.Content[contentIndex].Transcript = transcript
	it.Parts[contentIndex].TranscriptionFailed = false
	return nil
}

// MarkTranscriptionFailed flags the part; the item itself stays valid.
func (s *Store) MarkTranscriptionFailed(itemID string, contentIndex int) error {
	it, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if contentIndex < 0 {
		return fmt.Errorf("%w: content index %d", ErrInvalidItem, contentIndex)
	}
	it.Parts = resizeParts(it.Parts, max(len(it.Content), contentIndex+1))
	it.Parts[contentIndex].TranscriptionFailed = true
	return nil
}
