// Package response tracks the lifecycle and streamed output of model
// responses.
package response

import (
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codewandler/realtime-go/events"
)

const defaultHistorySize = 32

var ErrResponseConflict = errors.New("a response is already in progress for the default conversation")

// PartKey addresses a content part of an output item.
type PartKey struct {
	ItemID       string
	ContentIndex int
}

// Part accumulates the streamed content of one part. The done event replaces
// the accumulated value.
type Part struct {
	Type       events.ContentType
	Text       string
	Transcript string
	Audio      []byte
	Done       bool
}

// Call is a function or MCP call streamed by a response.
type Call struct {
	CallID    string
	ItemID    string
	Name      string
	Arguments string
	Done      bool
}

// Response is the tracked state of one response.
type Response struct {
	ID             string
	Status         events.ResponseStatus
	StatusDetails  *events.StatusDetails
	ConversationID string
	OutOfBand      bool
	Metadata       map[string]any
	Output         []events.Item
	Usage          *events.Usage
	Parts          map[PartKey]*Part
	Calls          map[string]*Call
	// MCP holds MCP call arguments keyed by item id.
	MCP map[string]*Call
}

func newResponse(id string) *Response {
	return &Response{
		ID:     id,
		Status: events.ResponseStatusInProgress,
		Parts:  map[PartKey]*Part{},
		Calls:  map[string]*Call{},
		MCP:    map[string]*Call{},
	}
}

func (r *Response) snapshot() Response {
	c := *r
	c.Output = slices.Clone(r.Output)
	c.Metadata = maps.Clone(r.Metadata)
	c.Parts = make(map[PartKey]*Part, len(r.Parts))
	for k, p := range r.Parts {
		cp := *p
		c.Parts[k] = &cp
	}
	c.Calls = make(map[string]*Call, len(r.Calls))
	for k, v := range r.Calls {
		cv := *v
		c.Calls[k] = &cv
	}
	c.MCP = make(map[string]*Call, len(r.MCP))
	for k, v := range r.MCP {
		cv := *v
		c.MCP[k] = &cv
	}
	return c
}

// Terminal reports whether the response reached a final status.
func (r *Response) Terminal() bool { return r.Status.Terminal() }

// Text returns the text of all text parts in output order.
func (r *Response) Text() string {
	var out string
	for _, it := range r.Output {
		keys := slices.Collect(func(yield func(PartKey) bool) {
			for k := range r.Parts {
				if k.ItemID == it.ID && !yield(k) {
					return
				}
			}
		})
		slices.SortFunc(keys, func(a, b PartKey) int { return a.ContentIndex - b.ContentIndex })
		for _, k := range keys {
			out += r.Parts[k].Text
		}
	}
	return out
}

type pendingCreate struct {
	eventID   string
	outOfBand bool
}

// RateLimits is the last snapshot received, keyed by limit name.
type RateLimits map[string]events.RateLimit

// Tracker owns the set of in-flight responses. It is not safe for concurrent
// use; callers serialize access.
type Tracker struct {
	active     map[string]*Response
	defaultID  string
	pending    []pendingCreate
	history    *lru.Cache[string, *Response]
	rateLimits RateLimits
}

func NewTracker(historySize int) *Tracker {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	h, err := lru.New[string, *Response](historySize)
	if err != nil {
		panic(err)
	}
	return &Tracker{
		active:     map[string]*Response{},
		history:    h,
		rateLimits: RateLimits{},
	}
}

func (t *Tracker) defaultBusy() bool {
	if t.defaultID != "" {
		return true
	}
	for _, p := range t.pending {
		if !p.outOfBand {
			return true
		}
	}
	return false
}

// ValidateCreate fails with ErrResponseConflict if the response would write
// to the default conversation while another one does or is about to.
func (t *Tracker) ValidateCreate(mode events.ConversationMode) error {
	if mode.OutOfBand() {
		return nil
	}
	if t.defaultBusy() {
		if t.defaultID != "" {
			return fmt.Errorf("%w: %s", ErrResponseConflict, t.defaultID)
		}
		return fmt.Errorf("%w: awaiting confirmation", ErrResponseConflict)
	}
	return nil
}

// Pending records a sent response.create awaiting response.created.
func (t *Tracker) Pending(eventID string, mode events.ConversationMode) {
	t.pending = append(t.pending, pendingCreate{eventID: eventID, outOfBand: mode.OutOfBand()})
}

// Rejected drops the pending create the server rejected with an error
// referencing eventID. It reports whether one was found.
func (t *Tracker) Rejected(eventID string) bool {
	if eventID == "" {
		return false
	}
	for i, p := range t.pending {
		if p.eventID == eventID {
			t.pending = slices.Delete(t.pending, i, i+1)
			return true
		}
	}
	return false
}

// Created applies response.created. The server states the target
// conversation: a response without a conversation id is out-of-band. The
// oldest pending create of the same kind is confirmed by it; a default
// response with none pending was started by turn detection.
func (t *Tracker) Created(resp events.Response) Response {
	r, ok := t.active[resp.ID]
	if !ok {
		r = newResponse(resp.ID)
		t.active[resp.ID] = r
	}
	r.Status = resp.Status
	if r.Status == "" {
		r.Status = events.ResponseStatusInProgress
	}
	r.ConversationID = resp.ConversationID
	r.OutOfBand = resp.ConversationID == ""
	r.Metadata = maps.Clone(resp.Metadata)
	if i := slices.IndexFunc(t.pending, func(p pendingCreate) bool { return p.outOfBand == r.OutOfBand }); i >= 0 {
		t.pending = slices.Delete(t.pending, i, i+1)
	}
	if !r.OutOfBand {
		t.defaultID = r.ID
	}
	return r.snapshot()
}

// lookup returns the active or recently finished response. Events for
// responses the tracker never saw created, or has already evicted, return
// nil and are dropped.
func (t *Tracker) lookup(id string) *Response {
	if r, ok := t.active[id]; ok {
		return r
	}
	// late events of a finished response update its history entry
	if r, ok := t.history.Peek(id); ok {
		return r
	}
	return nil
}

// DefaultInFlight returns the id of the in-flight default conversation
// response, if any.
func (t *Tracker) DefaultInFlight() string { return t.defaultID }

// PendingCount returns the number of unconfirmed creates.
func (t *Tracker) PendingCount() int { return len(t.pending) }

// Active returns the ids of all in-flight responses, sorted.
func (t *Tracker) Active() []string {
	return slices.Sorted(maps.Keys(t.active))
}

// Get returns a snapshot of an active or recently finished response.
func (t *Tracker) Get(id string) (Response, bool) {
	if r, ok := t.active[id]; ok {
		return r.snapshot(), true
	}
	if r, ok := t.history.Get(id); ok {
		return r.snapshot(), true
	}
	return Response{}, false
}

func (t *Tracker) OutputItemAdded(responseID string, outputIndex int, item events.Item) {
	r := t.lookup(responseID)
	if r == nil {
		return
	}
	for len(r.Output) <= outputIndex {
		r.Output = append(r.Output, events.Item{})
	}
	r.Output[outputIndex] = item.Clone()
	switch item.Type {
	case events.ItemTypeFunctionCall:
		c := r.call(item.CallID, item.ID)
		c.Name = item.Name
	case events.ItemTypeMCPCall:
		c := r.mcp(item.ID)
		c.Name = item.Name
	}
}

func (t *Tracker) OutputItemDone(responseID string, outputIndex int, item events.Item) {
	r := t.lookup(responseID)
	if r == nil {
		return
	}
	for len(r.Output) <= outputIndex {
		r.Output = append(r.Output, events.Item{})
	}
	r.Output[outputIndex] = item.Clone()
	if item.Type == events.ItemTypeFunctionCall && item.CallID != "" {
		c := r.call(item.CallID, item.ID)
		c.Name = item.Name
		c.Arguments = item.Arguments
		c.Done = true
	}
}

func (r *Response) part(ref events.ContentRef) *Part {
	k := PartKey{ref.ItemID, ref.ContentIndex}
	p, ok := r.Parts[k]
	if !ok {
		p = &Part{}
		r.Parts[k] = p
	}
	return p
}

func (r *Response) call(callID, itemID string) *Call {
	c, ok := r.Calls[callID]
	if !ok {
		c = &Call{CallID: callID}
		r.Calls[callID] = c
	}
	if itemID != "" {
		c.ItemID = itemID
	}
	return c
}

func (r *Response) mcp(itemID string) *Call {
	c, ok := r.MCP[itemID]
	if !ok {
		c = &Call{ItemID: itemID}
		r.MCP[itemID] = c
	}
	return c
}

// part returns the accumulator of a content part, or nil if the response
// is unknown.
func (t *Tracker) part(ref events.ContentRef) *Part {
	r := t.lookup(ref.ResponseID)
	if r == nil {
		return nil
	}
	return r.part(ref)
}

func (t *Tracker) ContentPartAdded(ref events.ContentRef, part events.ContentPart) {
	p := t.part(ref)
	if p == nil {
		return
	}
	p.Type = part.Type
	p.Text += part.Text
	p.Transcript += part.Transcript
}

func (t *Tracker) ContentPartDone(ref events.ContentRef, part events.ContentPart) {
	p := t.part(ref)
	if p == nil {
		return
	}
	p.Type = part.Type
	if part.Text != "" || !part.Type.IsAudio() {
		p.Text = part.Text
	}
	if part.Type.IsAudio() {
		p.Transcript = part.Transcript
	}
	p.Done = true
}

func (t *Tracker) TextDelta(ref events.ContentRef, delta string) {
	if p := t.part(ref); p != nil {
		p.Text += delta
	}
}

func (t *Tracker) TextDone(ref events.ContentRef, text string) {
	if p := t.part(ref); p != nil {
		p.Text = text
		p.Done = true
	}
}

// AudioDelta decodes streamed audio and returns the decoded bytes. The bytes
// are accumulated only for known responses.
func (t *Tracker) AudioDelta(ref events.ContentRef, b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode audio delta: %w", err)
	}
	if p := t.part(ref); p != nil {
		p.Audio = append(p.Audio, data...)
	}
	return data, nil
}

func (t *Tracker) AudioDone(ref events.ContentRef) {
	if p := t.part(ref); p != nil {
		p.Done = true
	}
}

func (t *Tracker) TranscriptDelta(ref events.ContentRef, delta string) {
	if p := t.part(ref); p != nil {
		p.Transcript += delta
	}
}

func (t *Tracker) TranscriptDone(ref events.ContentRef, transcript string) {
	if p := t.part(ref); p != nil {
		p.Transcript = transcript
	}
}

func (t *Tracker) FunctionCallArgumentsDelta(ref events.OutputRef, callID, delta string) {
	if r := t.lookup(ref.ResponseID); r != nil {
		r.call(callID, ref.ItemID).Arguments += delta
	}
}

// FunctionCallArgumentsDone replaces the accumulated arguments with the
// final value.
func (t *Tracker) FunctionCallArgumentsDone(ref events.OutputRef, callID, name, arguments string) Call {
	r := t.lookup(ref.ResponseID)
	if r == nil {
		return Call{CallID: callID, ItemID: ref.ItemID, Name: name, Arguments: arguments, Done: true}
	}
	c := r.call(callID, ref.ItemID)
	if name != "" {
		c.Name = name
	}
	c.Arguments = arguments
	c.Done = true
	return *c
}

func (t *Tracker) MCPArgumentsDelta(ref events.OutputRef, delta string) {
	if r := t.lookup(ref.ResponseID); r != nil {
		r.mcp(ref.ItemID).Arguments += delta
	}
}

func (t *Tracker) MCPArgumentsDone(ref events.OutputRef, arguments string) {
	if r := t.lookup(ref.ResponseID); r != nil {
		c := r.mcp(ref.ItemID)
		c.Arguments = arguments
		c.Done = true
	}
}

// Done applies response.done. Cancelled, failed and incomplete are normal
// terminal states. It returns the final snapshot and the completed function
// calls of the response.
func (t *Tracker) Done(resp events.Response) (Response, []Call) {
	r := t.lookup(resp.ID)
	if r == nil {
		// never seen created: record it in history only
		r = newResponse(resp.ID)
		r.ConversationID = resp.ConversationID
		r.OutOfBand = resp.ConversationID == ""
	}
	r.Status = resp.Status
	if !r.Status.Terminal() {
		r.Status = events.ResponseStatusCompleted
	}
	r.StatusDetails = resp.StatusDetails
	r.Usage = resp.Usage
	if resp.Output != nil {
		r.Output = make([]events.Item, len(resp.Output))
		for i, it := range resp.Output {
			r.Output[i] = it.Clone()
		}
	}
	if resp.ConversationID != "" {
		r.ConversationID = resp.ConversationID
	}
	if resp.Metadata != nil {
		r.Metadata = maps.Clone(resp.Metadata)
	}

	delete(t.active, r.ID)
	if t.defaultID == r.ID {
		t.defaultID = ""
	}
	t.history.Add(r.ID, r)

	var calls []Call
	for _, it := range r.Output {
		if it.Type != events.ItemTypeFunctionCall || it.Status != events.ItemStatusCompleted {
			continue
		}
		calls = append(calls, Call{CallID: it.CallID, ItemID: it.ID, Name: it.Name, Arguments: it.Arguments, Done: true})
	}
	return r.snapshot(), calls
}

// SetRateLimits replaces the rate limit snapshot.
func (t *Tracker) SetRateLimits(limits []events.RateLimit) {
	rl := make(RateLimits, len(limits))
	for _, l := range limits {
		rl[l.Name] = l
	}
	t.rateLimits = rl
}

func (t *Tracker) RateLimits() RateLimits {
	return maps.Clone(t.rateLimits)
}
