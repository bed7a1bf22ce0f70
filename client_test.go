package realtime

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/internal/pipe"
	"github.com/codewandler/realtime-go/tool"
)

const testTimeout = 2 * time.Second

type fakeServer struct {
	t   *testing.T
	end *pipe.End
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeServer) {
	t.Helper()
	return newPipeClient(t, 64, opts...)
}

// newPipeClient connects a client over a pipe buffering size messages per
// direction.
func newPipeClient(t *testing.T, size int, opts ...Option) (*Client, *fakeServer) {
	t.Helper()
	a, b := pipe.New(size)
	c, err := New(a, append([]Option{WithKey("test")}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, &fakeServer{t: t, end: b}
}

func (s *fakeServer) emit(evts ...events.ServerEvent) {
	s.t.Helper()
	for _, evt := range evts {
		data, err := events.EncodeServer(evt)
		require.NoError(s.t, err)
		require.NoError(s.t, s.end.WriteMessage(context.Background(), data))
	}
}

func (s *fakeServer) expect() events.ClientEvent {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	data, err := s.end.ReadMessage(ctx)
	require.NoError(s.t, err)
	evt, err := events.DecodeClient(data)
	require.NoError(s.t, err)
	return evt
}

func expectIntent[T events.ClientEvent](s *fakeServer) T {
	s.t.Helper()
	evt := s.expect()
	v, ok := evt.(T)
	require.Truef(s.t, ok, "expected %T, got %T", *new(T), evt)
	return v
}

func (s *fakeServer) expectNone() {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	data, err := s.end.ReadMessage(ctx)
	require.ErrorIsf(s.t, err, context.DeadlineExceeded, "unexpected intent %s", data)
}

// await consumes events until one of type T arrives. State read afterwards
// reflects that event.
func await[T events.ServerEvent](t *testing.T, c *Client) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	for {
		evt, err := c.Recv(ctx)
		require.NoError(t, err)
		if v, ok := evt.(T); ok {
			return v
		}
	}
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return c
}

func testSession() events.Session {
	return events.Session{
		ID:               "sess_1",
		Type:             events.SessionTypeRealtime,
		Model:            "gpt-realtime",
		Voice:            "alloy",
		OutputModalities: []events.Modality{events.ModalityAudio},
	}
}

func vadSession() events.Session {
	s := testSession()
	s.TurnDetection = &events.TurnDetection{Type: events.TurnDetectionServerVAD}
	return s
}

func assistantItem(id string, parts ...events.ContentPart) events.Item {
	return events.Item{ID: id, Type: events.ItemTypeMessage, Role: events.RoleAssistant, Status: events.ItemStatusInProgress, Content: parts}
}

func TestClient_TextTurn(t *testing.T) {
	c, srv := newTestClient(t)
	srv.emit(&events.SessionCreatedEvent{Session: testSession()})
	await[*events.SessionCreatedEvent](t, c)

	sess, ok := c.Session()
	require.True(t, ok)
	require.Equal(t, "gpt-realtime", sess.Model)

	userID, err := c.Say(ctx(t), "hello")
	require.NoError(t, err)
	create := expectIntent[*events.ConversationItemCreateEvent](srv)
	require.Equal(t, userID, create.Item.ID)
	require.Equal(t, "hello", create.Item.Content[0].Text)

	user := create.Item
	srv.emit(
		&events.ConversationItemAddedEvent{Item: user},
		&events.ConversationItemDoneEvent{Item: user},
	)

	require.NoError(t, c.Respond(ctx(t)))
	expectIntent[*events.ResponseCreateEvent](srv)

	ref := events.ContentRef{ResponseID: "resp_1", ItemID: "item_a", ContentIndex: 0}
	final := assistantItem("item_a", events.ContentPart{Type: events.ContentTypeOutputText, Text: "Hello"})
	final.Status = events.ItemStatusCompleted
	srv.emit(
		&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_1", ConversationID: "conv_1", Status: events.ResponseStatusInProgress}},
		&events.ResponseOutputItemAddedEvent{ResponseID: "resp_1", Item: assistantItem("item_a")},
		&events.ConversationItemAddedEvent{PreviousItemID: &userID, Item: assistantItem("item_a")},
		&events.ResponseContentPartAddedEvent{ContentRef: ref, Part: events.ContentPart{Type: events.ContentTypeOutputText}},
		&events.ResponseTextDeltaEvent{ContentRef: ref, Delta: "Hel"},
	)
	await[*events.ResponseTextDeltaEvent](t, c)
	require.Equal(t, "resp_1", c.DefaultResponse())

	srv.emit(
		&events.ResponseTextDeltaEvent{ContentRef: ref, Delta: "lo"},
		&events.ResponseTextDoneEvent{ContentRef: ref, Text: "Hello"},
		&events.ResponseContentPartDoneEvent{ContentRef: ref, Part: events.ContentPart{Type: events.ContentTypeOutputText, Text: "Hello"}},
		&events.ResponseOutputItemDoneEvent{ResponseID: "resp_1", Item: final},
		&events.ConversationItemDoneEvent{PreviousItemID: &userID, Item: final},
		&events.ResponseDoneEvent{Response: events.Response{ID: "resp_1", Status: events.ResponseStatusCompleted, Output: []events.Item{final}}},
	)
	await[*events.ResponseDoneEvent](t, c)

	resp, ok := c.Response("resp_1")
	require.True(t, ok)
	require.Equal(t, events.ResponseStatusCompleted, resp.Status)
	require.False(t, resp.OutOfBand)
	require.Equal(t, "Hello", resp.Text())
	require.Empty(t, c.DefaultResponse())
	require.Empty(t, c.ActiveResponses())

	items := c.Items()
	require.Len(t, items, 2)
	require.Equal(t, userID, items[0].ID)
	require.Equal(t, "item_a", items[1].ID)
	require.Equal(t, userID, items[1].PreviousID)
	require.Equal(t, "Hello", items[1].Content[0].Text)
	require.Equal(t, events.ItemStatusCompleted, items[1].Status)
}

func TestClient_InitialSessionUpdate(t *testing.T) {
	_, srv := newTestClient(t, WithInstruction("be brief"), WithVoice("marin"))

	upd := expectIntent[*events.SessionUpdateEvent](srv)
	require.Equal(t, events.SessionTypeRealtime, upd.Session.Type)
	require.Equal(t, "be brief", *upd.Session.Instructions)
	require.Equal(t, "marin", upd.Session.Voice)
}

func TestClient_SessionUpdateValidation(t *testing.T) {
	c, srv := newTestClient(t)
	srv.emit(&events.SessionCreatedEvent{Session: testSession()})
	await[*events.SessionCreatedEvent](t, c)

	err := c.UpdateSession(ctx(t), events.SessionUpdate{Model: "other-model"})
	require.ErrorIs(t, err, ErrImmutableFieldChange)

	err = c.UpdateSession(ctx(t), events.SessionUpdate{OutputModalities: []events.Modality{events.ModalityText, events.ModalityAudio}})
	require.ErrorIs(t, err, ErrInvalidModalities)

	err = c.UpdateSession(ctx(t), events.SessionUpdate{InputAudioFormat: &events.AudioFormat{Type: events.AudioFormatPCM, Rate: 16_000}})
	require.ErrorIs(t, err, ErrInvalidAudioFormat)
	srv.expectNone()

	// the mirror only changes on confirmation
	require.NoError(t, c.UpdateSession(ctx(t), events.SessionUpdate{Instructions: events.String("terse")}))
	expectIntent[*events.SessionUpdateEvent](srv)
	sess, _ := c.Session()
	require.Empty(t, sess.Instructions)

	updated := testSession()
	updated.Instructions = "terse"
	srv.emit(&events.SessionUpdatedEvent{Session: updated})
	await[*events.SessionUpdatedEvent](t, c)
	sess, _ = c.Session()
	require.Equal(t, "terse", sess.Instructions)

	// voice is locked once audio was emitted
	ref := events.ContentRef{ResponseID: "resp_1", ItemID: "item_a"}
	srv.emit(&events.ResponseAudioDeltaEvent{ContentRef: ref, Delta: base64.StdEncoding.EncodeToString(make([]byte, 480))})
	await[*events.ResponseAudioDeltaEvent](t, c)

	require.ErrorIs(t, c.UpdateSession(ctx(t), events.SessionUpdate{Voice: "verse"}), ErrVoiceLocked)
	require.NoError(t, c.UpdateSession(ctx(t), events.SessionUpdate{Voice: "alloy"}))
}

func TestClient_ResponseConflict(t *testing.T) {
	c, srv := newTestClient(t)

	eventID, err := c.CreateResponse(ctx(t), nil)
	require.NoError(t, err)
	require.NotEmpty(t, eventID)
	expectIntent[*events.ResponseCreateEvent](srv)

	_, err = c.CreateResponse(ctx(t), nil)
	require.ErrorIs(t, err, ErrResponseConflict)

	// out-of-band responses never conflict
	_, err = c.CreateResponse(ctx(t), &events.ResponseCreatePayload{
		Conversation: events.ConversationNone,
		Metadata:     map[string]any{"topic": "classify"},
	})
	require.NoError(t, err)
	oob := expectIntent[*events.ResponseCreateEvent](srv)
	require.Equal(t, events.ConversationNone, oob.Response.Conversation)

	// a rejected create frees the default conversation
	srv.emit(&events.ErrorEvent{ErrorDetail: events.ErrorDetail{Type: "invalid_request_error", Message: "nope", EventID: eventID}})
	errEvt := await[*events.ErrorEvent](t, c)
	require.ErrorIs(t, EventError(errEvt), ErrServerReported)
	require.NoError(t, c.Err())

	// a response without a conversation id is out-of-band
	srv.emit(&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_oob", Status: events.ResponseStatusInProgress}})
	await[*events.ResponseCreatedEvent](t, c)
	resp, ok := c.Response("resp_oob")
	require.True(t, ok)
	require.True(t, resp.OutOfBand)
	require.Empty(t, c.DefaultResponse())

	require.NoError(t, c.Respond(ctx(t)))
	expectIntent[*events.ResponseCreateEvent](srv)
}

func TestClient_OutOfBandOutputStaysOutOfConversation(t *testing.T) {
	c, srv := newTestClient(t)

	_, err := c.CreateResponse(ctx(t), &events.ResponseCreatePayload{Conversation: events.ConversationNone})
	require.NoError(t, err)
	expectIntent[*events.ResponseCreateEvent](srv)

	ref := events.ContentRef{ResponseID: "resp_oob", ItemID: "item_oob"}
	srv.emit(
		&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_oob", Status: events.ResponseStatusInProgress}},
		&events.ResponseOutputItemAddedEvent{ResponseID: "resp_oob", Item: assistantItem("item_oob")},
		&events.ResponseContentPartAddedEvent{ContentRef: ref, Part: events.ContentPart{Type: events.ContentTypeOutputText}},
		&events.ResponseTextDeltaEvent{ContentRef: ref, Delta: "positive"},
		&events.ResponseDoneEvent{Response: events.Response{ID: "resp_oob", Status: events.ResponseStatusCompleted, Output: []events.Item{assistantItem("item_oob")}}},
	)
	await[*events.ResponseDoneEvent](t, c)

	resp, ok := c.Response("resp_oob")
	require.True(t, ok)
	require.True(t, resp.OutOfBand)
	require.Equal(t, "positive", resp.Text())
	require.Empty(t, c.Items())
}

func TestClient_BargeIn(t *testing.T) {
	c, srv := newTestClient(t, WithPlayback(10*time.Second))
	srv.emit(&events.SessionCreatedEvent{Session: testSession()})
	await[*events.SessionCreatedEvent](t, c)

	require.NoError(t, c.Respond(ctx(t)))
	expectIntent[*events.ResponseCreateEvent](srv)

	ref := events.ContentRef{ResponseID: "resp_1", ItemID: "item_a"}
	pcm := make([]byte, 4800) // 100ms
	srv.emit(
		&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_1", ConversationID: "conv_1", Status: events.ResponseStatusInProgress}},
		&events.ConversationItemAddedEvent{Item: assistantItem("item_a")},
		&events.ResponseContentPartAddedEvent{ContentRef: ref, Part: events.ContentPart{Type: events.ContentTypeOutputAudio}},
		&events.ResponseAudioTranscriptDeltaEvent{ContentRef: ref, Delta: "Once upon a time"},
		&events.ResponseAudioDeltaEvent{ContentRef: ref, Delta: base64.StdEncoding.EncodeToString(pcm)},
	)
	await[*events.ResponseAudioDeltaEvent](t, c)

	// the listener heard 50ms
	played := make([]byte, 2400)
	n, err := c.Player().Read(played)
	require.NoError(t, err)
	require.Equal(t, 2400, n)

	require.NoError(t, c.BargeIn(ctx(t)))
	cancel := expectIntent[*events.ResponseCancelEvent](srv)
	require.Equal(t, "resp_1", cancel.ResponseID)
	expectIntent[*events.OutputAudioBufferClearEvent](srv)
	trunc := expectIntent[*events.ConversationItemTruncateEvent](srv)
	require.Equal(t, "item_a", trunc.ItemID)
	require.Equal(t, 0, trunc.ContentIndex)
	require.Equal(t, 50, trunc.AudioEndMS)
	require.Zero(t, c.Player().Buffered())

	// late audio of the interrupted response is not played
	srv.emit(&events.ResponseAudioDeltaEvent{ContentRef: ref, Delta: base64.StdEncoding.EncodeToString(pcm)})
	await[*events.ResponseAudioDeltaEvent](t, c)
	require.Zero(t, c.Player().Buffered())

	srv.emit(
		&events.ConversationItemTruncatedEvent{ItemID: "item_a", ContentIndex: 0, AudioEndMS: 50},
		&events.ResponseDoneEvent{Response: events.Response{ID: "resp_1", Status: events.ResponseStatusCancelled}},
	)
	await[*events.ResponseDoneEvent](t, c)

	resp, ok := c.Response("resp_1")
	require.True(t, ok)
	require.Equal(t, events.ResponseStatusCancelled, resp.Status)
	require.Empty(t, c.DefaultResponse())

	it, err := c.Item("item_a")
	require.NoError(t, err)
	require.Empty(t, it.Content[0].Transcript)
	require.Equal(t, 50, it.AudioMS(0, events.PCM24k()))
}

func TestClient_AutoBargeInOnSpeech(t *testing.T) {
	c, srv := newTestClient(t)
	srv.emit(&events.SessionCreatedEvent{Session: vadSession()})
	await[*events.SessionCreatedEvent](t, c)

	srv.emit(
		&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_v", ConversationID: "conv_1", Status: events.ResponseStatusInProgress}},
		&events.SpeechStartedEvent{AudioStartMS: 1200, ItemID: "item_u"},
	)
	await[*events.SpeechStartedEvent](t, c)

	cancel := expectIntent[*events.ResponseCancelEvent](srv)
	require.Equal(t, "resp_v", cancel.ResponseID)
	expectIntent[*events.OutputAudioBufferClearEvent](srv)
}

func TestClient_VADAutoCommit(t *testing.T) {
	c, srv := newTestClient(t)
	srv.emit(&events.SessionCreatedEvent{Session: vadSession()})
	await[*events.SessionCreatedEvent](t, c)

	require.NoError(t, c.AppendPCM(ctx(t), make([]byte, 9600)))
	expectIntent[*events.InputAudioBufferAppendEvent](srv)
	require.Equal(t, 9600, c.AudioState().UnsentBytes)
	require.Equal(t, audio.Buffering, c.AudioState().VAD)

	srv.emit(&events.SpeechStartedEvent{AudioStartMS: 20, ItemID: "item_u"})
	await[*events.SpeechStartedEvent](t, c)
	require.Equal(t, audio.SpeechDetected, c.AudioState().VAD)

	srv.emit(
		&events.SpeechStoppedEvent{AudioEndMS: 180, ItemID: "item_u"},
		&events.InputAudioBufferCommittedEvent{ItemID: "item_u"},
		&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_v", ConversationID: "conv_1", Status: events.ResponseStatusInProgress}},
	)
	await[*events.ResponseCreatedEvent](t, c)

	st := c.AudioState()
	require.Zero(t, st.UnsentBytes)
	require.Equal(t, audio.Idle, st.VAD)
	require.Equal(t, "item_u", st.LastCommittedItemID)
	require.Equal(t, 180, st.SpeechEndMS)

	items := c.Items()
	require.Len(t, items, 1)
	require.Equal(t, "item_u", items[0].ID)
	require.Equal(t, events.RoleUser, items[0].Role)

	require.Equal(t, "resp_v", c.DefaultResponse())
	resp, _ := c.Response("resp_v")
	require.False(t, resp.OutOfBand)

	// no commit or create was sent by the client
	srv.expectNone()
	require.ErrorIs(t, c.Respond(ctx(t)), ErrResponseConflict)
}

func TestClient_IdleTimeoutCommit(t *testing.T) {
	c, srv := newTestClient(t)
	srv.emit(&events.SessionCreatedEvent{Session: vadSession()})
	await[*events.SessionCreatedEvent](t, c)

	srv.emit(&events.TimeoutTriggeredEvent{ItemID: "item_idle", AudioStartMS: 5000, AudioEndMS: 5000})
	await[*events.TimeoutTriggeredEvent](t, c)

	require.Equal(t, "item_idle", c.AudioState().LastCommittedItemID)
	_, err := c.Item("item_idle")
	require.NoError(t, err)
	srv.expectNone()
}

func TestClient_CommitEmptyBuffer(t *testing.T) {
	c, srv := newTestClient(t)

	require.ErrorIs(t, c.CommitAudio(ctx(t)), ErrEmptyBuffer)
	srv.expectNone()

	require.NoError(t, c.AppendPCM(ctx(t), make([]byte, 480)))
	require.NoError(t, c.CommitAudio(ctx(t)))
	expectIntent[*events.InputAudioBufferAppendEvent](srv)
	expectIntent[*events.InputAudioBufferCommitEvent](srv)
	require.ErrorIs(t, c.CommitAudio(ctx(t)), ErrEmptyBuffer)

	require.ErrorIs(t, c.AppendAudio(ctx(t), "not base64!"), ErrInvalidAudio)
}

func TestClient_ItemValidation(t *testing.T) {
	c, srv := newTestClient(t)

	require.ErrorIs(t, c.DeleteItem(ctx(t), "nope"), ErrItemNotFound)
	require.ErrorIs(t, c.RetrieveItem(ctx(t), "nope"), ErrItemNotFound)
	_, err := c.CreateItem(ctx(t), events.NewUserText("hi"), "nope")
	require.ErrorIs(t, err, ErrItemNotFound)
	_, err = c.CreateResponse(ctx(t), &events.ResponseCreatePayload{
		Conversation: events.ConversationNone,
		Input:        []events.Item{events.ItemReference("nope")},
	})
	require.ErrorIs(t, err, ErrItemNotFound)
	srv.expectNone()

	user := events.NewUserText("hi")
	user.ID = "item_u"
	srv.emit(&events.ConversationItemAddedEvent{Item: user})
	await[*events.ConversationItemAddedEvent](t, c)

	require.ErrorIs(t, c.TruncateItem(ctx(t), "item_u", 0, 10), ErrNotTruncatable)
	_, err = c.CreateItem(ctx(t), user, "")
	require.Error(t, err)

	// inserting at the head is always valid
	id, err := c.CreateItem(ctx(t), events.NewSystemText("rules"), "root")
	require.NoError(t, err)
	create := expectIntent[*events.ConversationItemCreateEvent](srv)
	require.Equal(t, id, create.Item.ID)
	require.Equal(t, "root", create.PreviousItemID)

	require.NoError(t, c.DeleteItem(ctx(t), "item_u"))
	expectIntent[*events.ConversationItemDeleteEvent](srv)
	srv.emit(&events.ConversationItemDeletedEvent{ItemID: "item_u"})
	await[*events.ConversationItemDeletedEvent](t, c)
	require.Empty(t, c.Items())
}

func TestClient_RetrieveItemAudio(t *testing.T) {
	c, srv := newTestClient(t)

	pcm := []byte{1, 2, 3, 4}
	item := events.Item{
		ID:      "item_u",
		Type:    events.ItemTypeMessage,
		Role:    events.RoleUser,
		Content: []events.ContentPart{{Type: events.ContentTypeInputAudio}},
	}
	srv.emit(&events.ConversationItemAddedEvent{Item: item})
	await[*events.ConversationItemAddedEvent](t, c)

	require.NoError(t, c.RetrieveItem(ctx(t), "item_u"))
	expectIntent[*events.ConversationItemRetrieveEvent](srv)

	item.Content[0].Audio = base64.StdEncoding.EncodeToString(pcm)
	item.Content[0].Transcript = "hi"
	srv.emit(&events.ConversationItemRetrievedEvent{Item: item})
	await[*events.ConversationItemRetrievedEvent](t, c)

	data, ok := c.ItemAudio("item_u", 0)
	require.True(t, ok)
	require.Equal(t, pcm, data)
}

func TestClient_TranscriptionFailureIsNotFatal(t *testing.T) {
	c, srv := newTestClient(t)

	srv.emit(
		&events.InputAudioBufferCommittedEvent{ItemID: "item_u"},
		&events.InputAudioTranscriptionFailedEvent{ItemID: "item_u", ErrorDetail: events.ErrorDetail{Type: "transcription_error", Message: "bad audio"}},
	)
	evt := await[*events.InputAudioTranscriptionFailedEvent](t, c)
	require.ErrorIs(t, EventError(evt), ErrTranscriptionFailed)
	require.NoError(t, c.Err())

	it, err := c.Item("item_u")
	require.NoError(t, err)
	require.True(t, it.Parts[0].TranscriptionFailed)
}

func TestClient_CancelWithNothingInFlight(t *testing.T) {
	c, srv := newTestClient(t)

	require.NoError(t, c.CancelResponse(ctx(t), ""))
	expectIntent[*events.ResponseCancelEvent](srv)
	srv.emit(&events.ErrorEvent{ErrorDetail: events.ErrorDetail{Type: "invalid_request_error", Code: "response_cancel_not_active", Message: "no active response"}})
	await[*events.ErrorEvent](t, c)

	require.NoError(t, c.Err())
	_, err := c.Say(ctx(t), "still here")
	require.NoError(t, err)
	expectIntent[*events.ConversationItemCreateEvent](srv)
}

func TestClient_UnknownEventIsSkipped(t *testing.T) {
	c, srv := newTestClient(t)

	require.NoError(t, srv.end.WriteMessage(context.Background(), []byte(`{"type":"some.future.event","x":1}`)))
	require.NoError(t, srv.end.WriteMessage(context.Background(), []byte(`{"no_type":true}`)))
	srv.emit(&events.SessionCreatedEvent{Session: testSession()})

	evt, err := c.Recv(ctx(t))
	require.NoError(t, err)
	require.IsType(t, &events.SessionCreatedEvent{}, evt)
}

func TestClient_ToolDispatch(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(
		tool.Function("get_weather", "Returns the weather", tool.Properties{"city": {Type: "string"}}, "city"),
		func(_ context.Context, args json.RawMessage) (any, error) {
			var in struct{ City string }
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return map[string]any{"city": in.City, "sky": "clear"}, nil
		},
	))

	c, srv := newTestClient(t, WithToolRegistry(reg))
	upd := expectIntent[*events.SessionUpdateEvent](srv)
	require.Len(t, *upd.Session.Tools, 1)

	call := events.Item{
		ID:        "item_call",
		Type:      events.ItemTypeFunctionCall,
		Status:    events.ItemStatusCompleted,
		CallID:    "call_1",
		Name:      "get_weather",
		Arguments: `{"city":"Berlin"}`,
	}
	srv.emit(
		&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_1", ConversationID: "conv_1", Status: events.ResponseStatusInProgress}},
		&events.ConversationItemAddedEvent{Item: call},
		&events.ResponseDoneEvent{Response: events.Response{ID: "resp_1", Status: events.ResponseStatusCompleted, Output: []events.Item{call}}},
	)
	await[*events.ResponseDoneEvent](t, c)

	out := expectIntent[*events.ConversationItemCreateEvent](srv)
	require.Equal(t, events.ItemTypeFunctionCallOutput, out.Item.Type)
	require.Equal(t, "call_1", out.Item.CallID)
	require.JSONEq(t, `{"city":"Berlin","sky":"clear"}`, out.Item.Output)
	expectIntent[*events.ResponseCreateEvent](srv)
}

func TestClient_IntentOrder(t *testing.T) {
	c, srv := newTestClient(t)

	var ids []string
	for range 20 {
		id, err := c.Send(ctx(t), events.InputAudioBufferAppendEvent{Audio: base64.StdEncoding.EncodeToString(make([]byte, 48))})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		evt := expectIntent[*events.InputAudioBufferAppendEvent](srv)
		require.Equal(t, id, evt.EventID)
	}
	require.Equal(t, 20*48, c.AudioState().UnsentBytes)
}

func TestClient_Split(t *testing.T) {
	c, srv := newTestClient(t)
	sender, receiver := c.Split()

	done := make(chan events.ServerEvent, 1)
	go func() {
		evt, err := receiver.Recv(context.Background())
		if err == nil {
			done <- evt
		}
		close(done)
	}()

	_, err := sender.Say(ctx(t), "hi")
	require.NoError(t, err)
	create := expectIntent[*events.ConversationItemCreateEvent](srv)
	srv.emit(&events.ConversationItemAddedEvent{Item: create.Item})

	select {
	case evt := <-done:
		require.IsType(t, &events.ConversationItemAddedEvent{}, evt)
	case <-time.After(testTimeout):
		t.Fatal("receiver got no event")
	}
	require.Len(t, receiver.Items(), 1)

	require.NoError(t, sender.Close())
	require.ErrorIs(t, receiver.Err(), ErrConnectionClosed)
}

func TestClient_Close(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.Close())

	require.ErrorIs(t, c.Err(), ErrConnectionClosed)
	_, err := c.Say(ctx(t), "hi")
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.ErrorIs(t, c.BargeIn(ctx(t)), ErrConnectionClosed)

	_, err = c.Recv(ctx(t))
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestClient_TransportFailure(t *testing.T) {
	c, srv := newTestClient(t)
	require.NoError(t, srv.end.Close())

	select {
	case <-c.Done():
	case <-time.After(testTimeout):
		t.Fatal("client did not observe the closed transport")
	}
	require.ErrorIs(t, c.Err(), ErrTransport)

	err := c.Respond(ctx(t))
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.ErrorIs(t, err, ErrTransport)

	_, err = c.Recv(ctx(t))
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestClient_RateLimitsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	c, srv := newTestClient(t, WithMetrics(m))
	srv.emit(&events.RateLimitsUpdatedEvent{RateLimits: []events.RateLimit{
		{Name: "requests", Limit: 100, Remaining: 99, ResetSeconds: 1.5},
		{Name: "tokens", Limit: 1000, Remaining: 500, ResetSeconds: 30},
	}})
	await[*events.RateLimitsUpdatedEvent](t, c)

	limits := c.RateLimits()
	require.Equal(t, 99, limits["requests"].Remaining)
	require.Equal(t, 500, limits["tokens"].Remaining)

	require.ErrorIs(t, c.CommitAudio(ctx(t)), ErrEmptyBuffer)
	require.NoError(t, c.Respond(ctx(t)))
	expectIntent[*events.ResponseCreateEvent](srv)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if metric.GetCounter() != nil {
				values[f.GetName()] += metric.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, 1.0, values["realtime_client_events_received_total"])
	require.Equal(t, 1.0, values["realtime_client_validation_failures_total"])
	require.Eventually(t, func() bool {
		families, _ := reg.Gather()
		for _, f := range families {
			if f.GetName() == "realtime_client_intents_sent_total" {
				return len(f.GetMetric()) == 1
			}
		}
		return false
	}, testTimeout, 10*time.Millisecond)
}

func TestDialURL(t *testing.T) {
	cfg := newConfig([]Option{WithKey("k"), WithModel("gpt-realtime-mini")})
	u, err := cfg.dialURL()
	require.NoError(t, err)
	require.Equal(t, "wss://api.openai.com/v1/realtime?model=gpt-realtime-mini", u)

	cfg = newConfig([]Option{WithKey("k"), WithCallID("rtc_123")})
	u, err = cfg.dialURL()
	require.NoError(t, err)
	require.Equal(t, "wss://api.openai.com/v1/realtime?call_id=rtc_123", u)
}

func TestConfigValidation(t *testing.T) {
	t.Setenv(ApiKeyEnvVarNameShort, "")
	t.Setenv(ApiKeyEnvVarNameLong, "")

	a, _ := pipe.New(1)
	_, err := New(a, WithQueueSizes(0, 1))
	require.ErrorContains(t, err, "queue sizes must be positive")

	// an established transport needs no credentials
	b, _ := pipe.New(1)
	c, err := New(b)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = Dial(ctx(t))
	require.ErrorContains(t, err, "missing api key")
	_, err = Dial(ctx(t), WithKey("k"), WithQueueSizes(1, 0))
	require.ErrorContains(t, err, "queue sizes must be positive")
}

func TestClient_MCPApproval(t *testing.T) {
	c, srv := newTestClient(t)

	request := events.Item{ID: "item_req", Type: events.ItemTypeMCPApprovalRequest, ServerLabel: "docs", Name: "search"}
	mcpCall := events.Item{ID: "item_mcp", Type: events.ItemTypeMCPCall, ServerLabel: "docs", Name: "search", Status: events.ItemStatusInProgress}
	srv.emit(&events.ConversationItemAddedEvent{Item: request})
	await[*events.ConversationItemAddedEvent](t, c)

	require.NoError(t, c.ApproveMCP(ctx(t), "item_req"))
	approval := expectIntent[*events.ConversationItemCreateEvent](srv)
	require.Equal(t, events.ItemTypeMCPApprovalResponse, approval.Item.Type)
	require.Equal(t, "item_req", approval.Item.ApprovalRequestID)
	require.True(t, *approval.Item.Approve)

	require.NoError(t, c.DenyMCP(ctx(t), "item_req", "not now"))
	denial := expectIntent[*events.ConversationItemCreateEvent](srv)
	require.False(t, *denial.Item.Approve)
	require.Equal(t, "not now", denial.Item.Reason)

	ref := events.OutputRef{ResponseID: "resp_1", ItemID: "item_mcp"}
	srv.emit(
		&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_1", ConversationID: "conv_1", Status: events.ResponseStatusInProgress}},
		&events.ConversationItemAddedEvent{Item: mcpCall},
		&events.ResponseMCPCallArgumentsDoneEvent{OutputRef: ref, Arguments: `{"q":"go"}`},
		&events.ResponseMCPCallFailedEvent{OutputRef: ref},
	)
	await[*events.ResponseMCPCallFailedEvent](t, c)

	it, err := c.Item("item_mcp")
	require.NoError(t, err)
	require.Equal(t, events.ItemStatusIncomplete, it.Status)

	resp, ok := c.Response("resp_1")
	require.True(t, ok)
	require.Equal(t, `{"q":"go"}`, resp.MCP["item_mcp"].Arguments)
}

func TestClient_StreamAudio(t *testing.T) {
	c, srv := newTestClient(t, WithLatency(100))

	require.NoError(t, c.AppendPCM16(ctx(t), []int16{1, -1}))
	small := expectIntent[*events.InputAudioBufferAppendEvent](srv)
	raw, err := base64.StdEncoding.DecodeString(small.Audio)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0xff, 0xff}, raw)

	// 250ms of audio in 100ms chunks
	require.NoError(t, c.StreamAudio(ctx(t), bytes.NewReader(make([]byte, 250*48))))
	var sizes []int
	for range 3 {
		evt := expectIntent[*events.InputAudioBufferAppendEvent](srv)
		n, err := audio.DecodedLen(evt.Audio)
		require.NoError(t, err)
		sizes = append(sizes, n)
	}
	require.Equal(t, []int{4800, 4800, 2400}, sizes)
	require.Equal(t, int64(4+250*48), c.AudioState().TotalBytes)
	srv.expectNone()
}

func TestClient_TurnDetectionDuringOutOfBandCreate(t *testing.T) {
	c, srv := newTestClient(t)

	_, err := c.CreateResponse(ctx(t), &events.ResponseCreatePayload{Conversation: events.ConversationNone})
	require.NoError(t, err)
	expectIntent[*events.ResponseCreateEvent](srv)

	// turn detection starts a default response before the out-of-band one
	srv.emit(
		&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_vad", ConversationID: "conv_1", Status: events.ResponseStatusInProgress}},
		&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_oob", Status: events.ResponseStatusInProgress}},
		&events.ResponseDoneEvent{Response: events.Response{ID: "resp_oob", Status: events.ResponseStatusCompleted}},
	)
	await[*events.ResponseDoneEvent](t, c)

	vad, ok := c.Response("resp_vad")
	require.True(t, ok)
	require.False(t, vad.OutOfBand)
	oob, ok := c.Response("resp_oob")
	require.True(t, ok)
	require.True(t, oob.OutOfBand)

	require.Equal(t, []string{"resp_vad"}, c.ActiveResponses())
	require.Equal(t, "resp_vad", c.DefaultResponse())
	require.ErrorIs(t, c.Respond(ctx(t)), ErrResponseConflict)

	require.NoError(t, c.BargeIn(ctx(t)))
	cancel := expectIntent[*events.ResponseCancelEvent](srv)
	require.Equal(t, "resp_vad", cancel.ResponseID)
	expectIntent[*events.OutputAudioBufferClearEvent](srv)
}

func TestClient_MalformedEventIsDelivered(t *testing.T) {
	c, srv := newTestClient(t)

	require.NoError(t, srv.end.WriteMessage(context.Background(), []byte(`{"type":"response.done","event_id":"evt_bad","response":"oops"}`)))
	srv.emit(&events.SessionCreatedEvent{Session: testSession()})

	evt, err := c.Recv(ctx(t))
	require.NoError(t, err)
	bad, ok := evt.(*events.DecodeErrorEvent)
	require.Truef(t, ok, "got %T", evt)
	require.Equal(t, events.ServerEventTypeResponseDone, bad.Type)
	require.Equal(t, "evt_bad", bad.GetEventID())
	require.ErrorIs(t, EventError(evt), ErrMalformedEvent)

	evt, err = c.Recv(ctx(t))
	require.NoError(t, err)
	require.IsType(t, &events.SessionCreatedEvent{}, evt)
	require.NoError(t, c.Err())
	require.Empty(t, c.ActiveResponses())
}

func TestClient_LateDeltaOfEvictedResponse(t *testing.T) {
	c, srv := newTestClient(t, WithHistorySize(1))

	for _, id := range []string{"resp_1", "resp_2"} {
		srv.emit(
			&events.ResponseCreatedEvent{Response: events.Response{ID: id, ConversationID: "conv_1", Status: events.ResponseStatusInProgress}},
			&events.ResponseDoneEvent{Response: events.Response{ID: id, Status: events.ResponseStatusCancelled}},
		)
		await[*events.ResponseDoneEvent](t, c)
	}

	srv.emit(&events.ResponseTextDeltaEvent{ContentRef: events.ContentRef{ResponseID: "resp_1", ItemID: "item_a"}, Delta: "late"})
	await[*events.ResponseTextDeltaEvent](t, c)

	require.Empty(t, c.ActiveResponses())
	require.Empty(t, c.DefaultResponse())
	_, ok := c.Response("resp_1")
	require.False(t, ok)
	require.NoError(t, c.Respond(ctx(t)))
	expectIntent[*events.ResponseCreateEvent](srv)
}

func TestClient_SlowConsumerStallsReader(t *testing.T) {
	c, srv := newTestClient(t, WithQueueSizes(16, 1))

	ids := []string{"item_0", "item_1", "item_2", "item_3", "item_4"}
	for _, id := range ids {
		srv.emit(&events.ConversationItemAddedEvent{Item: assistantItem(id)})
	}

	// one event is queued and the reader holds the next one
	require.Eventually(t, func() bool { return len(c.Items()) == 2 }, testTimeout, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Len(t, c.Items(), 2)

	for _, id := range ids {
		evt, err := c.Recv(ctx(t))
		require.NoError(t, err)
		added, ok := evt.(*events.ConversationItemAddedEvent)
		require.Truef(t, ok, "got %T", evt)
		require.Equal(t, id, added.Item.ID)
	}
	require.Len(t, c.Items(), len(ids))
}

func TestClient_FullOutboundQueueBlocksSend(t *testing.T) {
	c, srv := newPipeClient(t, 1, WithQueueSizes(1, 16))

	// one message buffered by the transport, one being written, one queued
	for range 3 {
		require.NoError(t, c.ClearAudio(ctx(t)))
	}

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.ClearAudio(short), context.DeadlineExceeded)

	sendCtx := ctx(t)
	errc := make(chan error, 1)
	go func() { errc <- c.ClearAudio(sendCtx) }()
	select {
	case err := <-errc:
		t.Fatalf("send did not block: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// reading from the server frees room for the blocked send
	expectIntent[*events.InputAudioBufferClearEvent](srv)
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("send stayed blocked")
	}

	// the transport, the writer and the queue are full again
	go func() { errc <- c.ClearAudio(sendCtx) }()
	require.NoError(t, c.Close())
	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(testTimeout):
		t.Fatal("send blocked past close")
	}
}

func TestClient_NoStateChangeAfterShutdown(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.Close())

	// a free slot and a closed connection race in the reservation
	for range 20 {
		err := c.enqueue(ctx(t), events.InputAudioBufferAppendEvent{Audio: base64.StdEncoding.EncodeToString(make([]byte, 480))}, outbound{typ: events.ClientEventTypeInputAudioBufferAppend}, "")
		require.ErrorIs(t, err, ErrConnectionClosed)
	}
	require.Zero(t, c.AudioState().UnsentBytes)
	require.Zero(t, c.AudioState().TotalBytes)
}
