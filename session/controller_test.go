package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscar/state"
	"oscar/voice"
)

// fakeSession records calls and exposes the callbacks it was dialed with
type fakeSession struct {
	cb       voice.Callbacks
	startErr error

	mu    sync.Mutex
	ended int
	sent  []string
}

func (f *fakeSession) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.cb.OnStatusChange(voice.StatusConnected)
	return nil
}

func (f *fakeSession) End() error {
	f.mu.Lock()
	f.ended++
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) SendText(text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) endCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended
}

type fakeDialer struct {
	dialErr  error
	startErr error

	mu       sync.Mutex
	dials    int
	opts     voice.Options
	sessions []*fakeSession
}

func (d *fakeDialer) dial(opts voice.Options, cb voice.Callbacks) (voice.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.opts = opts
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if cb.OnStatusChange == nil {
		cb.OnStatusChange = func(voice.Status) {}
	}
	s := &fakeSession{cb: cb, startErr: d.startErr}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) last() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[len(d.sessions)-1]
}

type statusLog struct {
	mu       sync.Mutex
	statuses []Status
	speaking []bool
	errs     []error
}

func (l *statusLog) observer() Observer {
	return Observer{
		OnStatusChange: func(s Status) {
			l.mu.Lock()
			l.statuses = append(l.statuses, s)
			l.mu.Unlock()
		},
		OnSpeakingChange: func(b bool) {
			l.mu.Lock()
			l.speaking = append(l.speaking, b)
			l.mu.Unlock()
		},
		OnError: func(err error) {
			l.mu.Lock()
			l.errs = append(l.errs, err)
			l.mu.Unlock()
		},
	}
}

func newController(t *testing.T, d *fakeDialer, mic Microphone) (*Controller, *state.Store, *statusLog) {
	t.Helper()
	store := state.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	log := &statusLog{}
	c := NewController(d.dial, store, Options{
		AgentID:        "agent-1",
		ConnectionType: voice.ConnectionWebSocket,
		ClientTools: map[string]voice.ClientTool{
			"generate_mockup": func(context.Context, map[string]any) (string, bool) { return "ok", false },
		},
		Microphone: mic,
		Observer:   log.observer(),
	})
	return c, store, log
}

func TestStartMeetingConnects(t *testing.T) {
	d := &fakeDialer{}
	c, store, log := newController(t, d, AllowMicrophone{})

	require.NoError(t, c.StartMeeting(context.Background()))
	assert.Equal(t, StatusConnected, c.Status())
	assert.Equal(t, []Status{StatusConnecting, StatusConnected}, log.statuses)

	assert.Equal(t, "agent-1", d.opts.AgentID)
	assert.Equal(t, voice.ConnectionWebSocket, d.opts.ConnectionType)
	assert.Contains(t, d.opts.ClientTools, "generate_mockup")

	// a live epoch makes tickets carry it
	ticket, err := store.NextIssue()
	require.NoError(t, err)
	assert.NotZero(t, ticket.Epoch)
}

func TestStartMeetingMicrophoneDenied(t *testing.T) {
	d := &fakeDialer{}
	c, _, log := newController(t, d, DenyMicrophone{})

	err := c.StartMeeting(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMicrophoneDenied)

	var perm *PermissionError
	assert.True(t, errors.As(err, &perm))
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Zero(t, d.dials)
	assert.Empty(t, log.statuses)
}

type failingMicrophone struct{}

func (failingMicrophone) Request(context.Context) error { return errors.New("device busy") }

func TestStartMeetingWrapsMicrophoneErrors(t *testing.T) {
	c, _, _ := newController(t, &fakeDialer{}, failingMicrophone{})

	err := c.StartMeeting(context.Background())
	assert.ErrorIs(t, err, ErrMicrophoneDenied)
	assert.Contains(t, err.Error(), "device busy")
}

func TestStartMeetingDialFailure(t *testing.T) {
	d := &fakeDialer{dialErr: voice.ErrUnsupportedConnection}
	c, _, log := newController(t, d, AllowMicrophone{})

	err := c.StartMeeting(context.Background())
	assert.ErrorIs(t, err, voice.ErrUnsupportedConnection)
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, []Status{StatusConnecting, StatusDisconnected}, log.statuses)
	require.Len(t, log.errs, 1)

	// no retry happened
	assert.Equal(t, 1, d.dials)
}

func TestStartMeetingStartFailure(t *testing.T) {
	d := &fakeDialer{startErr: errors.New("handshake failed")}
	c, store, _ := newController(t, d, AllowMicrophone{})

	err := c.StartMeeting(context.Background())
	assert.ErrorContains(t, err, "handshake failed")
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, 1, d.last().endCount())

	ticket, err := store.NextIssue()
	require.NoError(t, err)
	assert.Zero(t, ticket.Epoch)
}

func TestStartMeetingTwice(t *testing.T) {
	c, _, _ := newController(t, &fakeDialer{}, AllowMicrophone{})

	require.NoError(t, c.StartMeeting(context.Background()))
	assert.ErrorIs(t, c.StartMeeting(context.Background()), ErrAlreadyActive)
}

func TestEndMeeting(t *testing.T) {
	d := &fakeDialer{}
	c, store, log := newController(t, d, AllowMicrophone{})

	require.NoError(t, c.StartMeeting(context.Background()))
	require.NoError(t, c.EndMeeting())

	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, 1, d.last().endCount())
	assert.Equal(t, []Status{StatusConnecting, StatusConnected, StatusDisconnected}, log.statuses)

	ticket, err := store.NextIssue()
	require.NoError(t, err)
	assert.Zero(t, ticket.Epoch)

	// ending again is harmless
	require.NoError(t, c.EndMeeting())
	assert.Len(t, log.statuses, 3)

	// and a new meeting can start
	require.NoError(t, c.StartMeeting(context.Background()))
	assert.Equal(t, StatusConnected, c.Status())
}

func TestEndMeetingWhileDisconnected(t *testing.T) {
	c, _, log := newController(t, &fakeDialer{}, AllowMicrophone{})

	require.NoError(t, c.EndMeeting())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Empty(t, log.statuses)
}

func TestTranscriptRelay(t *testing.T) {
	d := &fakeDialer{}
	c, store, _ := newController(t, d, AllowMicrophone{})
	require.NoError(t, c.StartMeeting(context.Background()))

	cb := d.last().cb
	cb.OnMessage(voice.Message{Source: voice.SourceUser, Text: "make a pricing page"})
	cb.OnMessage(voice.Message{Source: voice.SourceAI, Text: "Sure."})
	cb.OnMessage(voice.Message{Source: "system", Text: "  spaced  "})

	msgs := store.Snapshot().Transcript
	require.Len(t, msgs, 3)
	assert.Equal(t, state.RoleUser, msgs[0].Role)
	assert.Equal(t, "make a pricing page", msgs[0].Content)
	assert.Equal(t, state.RoleAgent, msgs[1].Role)
	assert.Equal(t, state.RoleAgent, msgs[2].Role)
	assert.Equal(t, "  spaced  ", msgs[2].Content)
}

func TestStaleSessionCallbacksIgnored(t *testing.T) {
	d := &fakeDialer{}
	c, store, _ := newController(t, d, AllowMicrophone{})
	require.NoError(t, c.StartMeeting(context.Background()))
	old := d.last().cb
	require.NoError(t, c.EndMeeting())

	old.OnMessage(voice.Message{Source: voice.SourceAI, Text: "late"})
	old.OnDisconnect("agent")
	assert.Empty(t, store.Snapshot().Transcript)
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestSpeakingState(t *testing.T) {
	d := &fakeDialer{}
	c, _, log := newController(t, d, AllowMicrophone{})
	require.NoError(t, c.StartMeeting(context.Background()))

	cb := d.last().cb
	cb.OnModeChange(voice.ModeSpeaking)
	assert.True(t, c.IsSpeaking())
	cb.OnModeChange(voice.ModeSpeaking)
	cb.OnModeChange(voice.ModeListening)
	assert.False(t, c.IsSpeaking())

	assert.Equal(t, []bool{true, false}, log.speaking)
}

func TestRemoteDisconnect(t *testing.T) {
	d := &fakeDialer{}
	c, _, log := newController(t, d, AllowMicrophone{})
	require.NoError(t, c.StartMeeting(context.Background()))

	cb := d.last().cb
	cb.OnError(errors.New("socket reset"))
	cb.OnDisconnect("error")

	assert.Equal(t, StatusDisconnected, c.Status())
	require.Len(t, log.errs, 1)
	assert.EqualError(t, log.errs[0], "socket reset")
}

func TestSendText(t *testing.T) {
	d := &fakeDialer{}
	c, _, _ := newController(t, d, AllowMicrophone{})

	assert.ErrorIs(t, c.SendText("hello"), ErrNotConnected)

	require.NoError(t, c.StartMeeting(context.Background()))
	require.NoError(t, c.SendText("hello"))
	assert.Equal(t, []string{"hello"}, d.last().sent)
}

func TestMicrophoneFor(t *testing.T) {
	assert.IsType(t, AllowMicrophone{}, MicrophoneFor("allow"))
	assert.IsType(t, DenyMicrophone{}, MicrophoneFor("deny"))
	assert.IsType(t, DeviceMicrophone{}, MicrophoneFor("device"))
	assert.IsType(t, DeviceMicrophone{}, MicrophoneFor(""))
}

func TestDeviceMicrophoneEnvDeny(t *testing.T) {
	t.Setenv("OSCAR_MIC_DENY", "1")
	err := DeviceMicrophone{}.Request(context.Background())
	assert.ErrorIs(t, err, ErrMicrophoneDenied)
	assert.Contains(t, err.Error(), "OSCAR_MIC_DENY")
}

func TestDeviceMicrophoneMissingDevice(t *testing.T) {
	t.Setenv("OSCAR_MIC_DENY", "")
	err := DeviceMicrophone{Path: t.TempDir() + "/missing"}.Request(context.Background())
	if err == nil {
		t.Skip("device check only runs on linux")
	}
	assert.ErrorIs(t, err, ErrMicrophoneDenied)
}

// gatedMicrophone blocks Request until release is closed
type gatedMicrophone struct {
	requested chan struct{}
	release   chan struct{}
}

func (m gatedMicrophone) Request(ctx context.Context) error {
	select {
	case m.requested <- struct{}{}:
	default:
	}
	select {
	case <-m.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestEndMeetingDuringMicrophoneRequest(t *testing.T) {
	d := &fakeDialer{}
	mic := gatedMicrophone{requested: make(chan struct{}, 1), release: make(chan struct{})}
	c, store, log := newController(t, d, mic)

	result := make(chan error, 1)
	go func() { result <- c.StartMeeting(context.Background()) }()

	<-mic.requested
	require.NoError(t, c.EndMeeting())
	close(mic.release)

	err := <-result
	assert.ErrorIs(t, err, errEndedEarly)
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Zero(t, d.dials)
	assert.Empty(t, log.statuses)

	ticket, err := store.NextIssue()
	require.NoError(t, err)
	assert.Zero(t, ticket.Epoch)

	// the controller is usable again
	require.NoError(t, c.StartMeeting(context.Background()))
	assert.Equal(t, StatusConnected, c.Status())
}

// ticketingSession takes a ticket from inside Start, as a tool call
// arriving on the first frames would
type ticketingSession struct {
	fakeSession
	store  *state.Store
	ticket state.Ticket
}

func (s *ticketingSession) Start(ctx context.Context) error {
	t, err := s.store.NextIssue()
	if err != nil {
		return err
	}
	s.ticket = t
	return s.fakeSession.Start(ctx)
}

func TestEpochLiveBeforeSessionStarts(t *testing.T) {
	store := state.NewStore()
	t.Cleanup(func() { _ = store.Close() })

	var sess *ticketingSession
	dial := func(opts voice.Options, cb voice.Callbacks) (voice.Session, error) {
		sess = &ticketingSession{fakeSession: fakeSession{cb: cb}, store: store}
		if sess.cb.OnStatusChange == nil {
			sess.cb.OnStatusChange = func(voice.Status) {}
		}
		return sess, nil
	}
	c := NewController(dial, store, Options{Microphone: AllowMicrophone{}})

	require.NoError(t, c.StartMeeting(context.Background()))
	require.NotNil(t, sess)
	assert.NotZero(t, sess.ticket.Epoch)

	require.NoError(t, c.EndMeeting())
	outcome, err := store.ApplyCanvas(sess.ticket, []string{"<p>late</p>"}, state.ViewSingle)
	require.NoError(t, err)
	assert.Equal(t, state.SessionEnded, outcome)
}
