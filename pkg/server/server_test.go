package server

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vtakmakov/takmachat/internal/protocol/jim"
	"github.com/vtakmakov/takmachat/pkg/keys"
	"github.com/vtakmakov/takmachat/pkg/server/store"
)

const testPubkey = "-----BEGIN PUBLIC KEY-----\ntest\n-----END PUBLIC KEY-----\n"

// startTestServer runs a broker on an ephemeral port over a fresh store.
func startTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "server.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv, err := New(Config{
		ListenAddress:   "127.0.0.1",
		Port:            0, // ephemeral
		ShutdownTimeout: 2 * time.Second,
	}, st, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-serveErr:
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})

	// Wait for the listener before handing the server to the test.
	srv.ListenerAddr()
	return srv, st
}

// testClient drives the wire protocol against a running broker.
type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.ListenerAddr(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(f jim.Frame) {
	c.t.Helper()
	require.NoError(c.t, jim.WriteFrame(c.conn, f))
}

func (c *testClient) recv() jim.Frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	f, err := jim.ReadFrame(c.conn)
	require.NoError(c.t, err)
	return f
}

// recvError expects a {response:400} frame and returns its error text.
func (c *testClient) recvError() string {
	c.t.Helper()
	f := c.recv()
	code, ok := f.Response()
	require.True(c.t, ok, "frame has no response code: %v", f)
	require.Equal(c.t, jim.CodeError, code)
	msg, _ := f.Str(jim.KeyError)
	return msg
}

// expectClosed asserts the server closed the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := jim.ReadFrame(c.conn)
	require.Error(c.t, err, "connection still open")
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		c.t.Fatal("read timed out: server left the connection open")
	}
}

// authenticate performs the full presence/challenge/answer exchange.
func (c *testClient) authenticate(login, password string) {
	c.t.Helper()
	c.send(jim.NewPresence(login, testPubkey))

	challengeFrame := c.recv()
	code, ok := challengeFrame.Response()
	require.True(c.t, ok)
	require.Equal(c.t, jim.CodeAuth, code)
	challenge, ok := challengeFrame.Str(jim.KeyData)
	require.True(c.t, ok)

	answer := keys.ChallengeAnswer(keys.PasswordHash(login, password), challenge)
	c.send(jim.NewAuth(answer))

	reply := c.recv()
	code, ok = reply.Response()
	require.True(c.t, ok)
	require.Equal(c.t, jim.CodeOK, code)
}

func register(t *testing.T, srv *Server, login, password string) {
	t.Helper()
	require.NoError(t, srv.RegisterUser(context.Background(), login, keys.PasswordHash(login, password)))
}

func TestAuthentication(t *testing.T) {
	srv, st := startTestServer(t)
	register(t, srv, "alice", "pw")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")

	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "alice", sessions[0].Login)
	require.Equal(t, "127.0.0.1", sessions[0].Address)

	history, err := st.History(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "127.0.0.1", history[0].Address)

	user, err := st.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, testPubkey, user.PublicKey)
	require.NotNil(t, user.LastLogin)
}

func TestAuthenticationFailures(t *testing.T) {
	srv, _ := startTestServer(t)
	register(t, srv, "alice", "pw")

	t.Run("wrong password closes the connection", func(t *testing.T) {
		c := dial(t, srv)
		c.send(jim.NewPresence("alice", testPubkey))
		challenge := c.recv()
		code, _ := challenge.Response()
		require.Equal(t, jim.CodeAuth, code)

		c.send(jim.NewAuth("d2hvb3BzLXdyb25nLWRpZ2VzdA=="))
		require.Equal(t, jim.ErrTextBadPassword, c.recvError())
		c.expectClosed()
	})

	t.Run("unregistered name keeps the connection open", func(t *testing.T) {
		c := dial(t, srv)
		c.send(jim.NewPresence("mallory", testPubkey))
		require.Equal(t, jim.ErrTextNotRegistered, c.recvError())

		// Still in UNAUTH: a second presence gets a fresh answer.
		c.send(jim.NewPresence("mallory", testPubkey))
		require.Equal(t, jim.ErrTextNotRegistered, c.recvError())
	})

	t.Run("name taken closes the connection", func(t *testing.T) {
		first := dial(t, srv)
		first.authenticate("alice", "pw")

		second := dial(t, srv)
		second.send(jim.NewPresence("alice", testPubkey))
		require.Equal(t, jim.ErrTextNameTaken, second.recvError())
		second.expectClosed()
	})

	t.Run("non-presence before auth drops the connection", func(t *testing.T) {
		c := dial(t, srv)
		c.send(jim.NewGetUsers("alice"))
		c.expectClosed()
	})
}

func TestOverlappingAuthSameLogin(t *testing.T) {
	srv, st := startTestServer(t)
	register(t, srv, "alice", "pw")
	register(t, srv, "bob", "pw2")

	hash := keys.PasswordHash("alice", "pw")

	// Both connections claim alice before either answers; the
	// presence-time check alone cannot tell them apart.
	first := dial(t, srv)
	first.send(jim.NewPresence("alice", testPubkey))
	firstChallenge := first.recv()
	code, _ := firstChallenge.Response()
	require.Equal(t, jim.CodeAuth, code)

	second := dial(t, srv)
	second.send(jim.NewPresence("alice", testPubkey))
	secondChallenge := second.recv()
	code, _ = secondChallenge.Response()
	require.Equal(t, jim.CodeAuth, code)

	// The first answer wins the login.
	challenge, _ := firstChallenge.Str(jim.KeyData)
	first.send(jim.NewAuth(keys.ChallengeAnswer(hash, challenge)))
	reply := first.recv()
	code, _ = reply.Response()
	require.Equal(t, jim.CodeOK, code)

	// The second answer is also correct, but the login is taken now.
	challenge, _ = secondChallenge.Str(jim.KeyData)
	second.send(jim.NewAuth(keys.ChallengeAnswer(hash, challenge)))
	require.Equal(t, jim.ErrTextNameTaken, second.recvError())
	second.expectClosed()

	// The loser's eviction must not tear down the winner's session.
	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "alice", sessions[0].Login)

	// And the winner stays routable.
	bob := dial(t, srv)
	bob.authenticate("bob", "pw2")
	bob.send(jim.NewMessage("bob", "alice", "AAAA"))

	delivered := first.recv()
	action, _ := delivered.Action()
	require.Equal(t, jim.ActionMessage, action)

	reply = bob.recv()
	code, _ = reply.Response()
	require.Equal(t, jim.CodeOK, code)
}

func TestMessageRouting(t *testing.T) {
	srv, st := startTestServer(t)
	register(t, srv, "alice", "pw")
	register(t, srv, "bob", "pw2")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")
	bob := dial(t, srv)
	bob.authenticate("bob", "pw2")

	alice.send(jim.NewMessage("alice", "bob", "AAAA"))

	// Bob receives the frame verbatim.
	delivered := bob.recv()
	action, _ := delivered.Action()
	require.Equal(t, jim.ActionMessage, action)
	from, _ := delivered.Str(jim.KeyFrom)
	require.Equal(t, "alice", from)
	text, _ := delivered.Str(jim.KeyMessageText)
	require.Equal(t, "AAAA", text)

	// Alice gets her 200.
	reply := alice.recv()
	code, _ := reply.Response()
	require.Equal(t, jim.CodeOK, code)

	aliceCounter, err := st.GetCounter(context.Background(), "alice")
	require.NoError(t, err)
	require.EqualValues(t, 1, aliceCounter.Sent)
	require.EqualValues(t, 0, aliceCounter.Received)

	bobCounter, err := st.GetCounter(context.Background(), "bob")
	require.NoError(t, err)
	require.EqualValues(t, 1, bobCounter.Received)
}

func TestMessageToOfflineUser(t *testing.T) {
	srv, st := startTestServer(t)
	register(t, srv, "alice", "pw")
	register(t, srv, "carol", "pw3")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")

	// carol is registered but not connected; the reply conflates the two
	// cases on purpose.
	alice.send(jim.NewMessage("alice", "carol", "hello?"))
	require.Equal(t, jim.ErrTextUserOffline, alice.recvError())

	counter, err := st.GetCounter(context.Background(), "alice")
	require.NoError(t, err)
	require.EqualValues(t, 0, counter.Sent)
}

func TestForgedIdentity(t *testing.T) {
	srv, st := startTestServer(t)
	register(t, srv, "alice", "pw")
	register(t, srv, "bob", "pw2")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")
	bob := dial(t, srv)
	bob.authenticate("bob", "pw2")

	// bob cannot send with alice's name in the from field.
	bob.send(jim.NewMessage("alice", "bob", "forged"))
	require.Equal(t, jim.ErrTextBadRequest, bob.recvError())

	// Nor query somebody else's contacts.
	bob.send(jim.NewGetContacts("alice"))
	require.Equal(t, jim.ErrTextBadRequest, bob.recvError())

	counter, err := st.GetCounter(context.Background(), "alice")
	require.NoError(t, err)
	require.EqualValues(t, 0, counter.Sent)
}

func TestContactsOverWire(t *testing.T) {
	srv, _ := startTestServer(t)
	register(t, srv, "alice", "pw")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")

	alice.send(jim.NewAddContact("alice", "bob"))
	code, _ := alice.recv().Response()
	require.Equal(t, jim.CodeOK, code)

	// The second add is a no-op, still 200.
	alice.send(jim.NewAddContact("alice", "bob"))
	code, _ = alice.recv().Response()
	require.Equal(t, jim.CodeOK, code)

	alice.send(jim.NewGetContacts("alice"))
	listFrame := alice.recv()
	code, _ = listFrame.Response()
	require.Equal(t, jim.CodeList, code)
	contacts, ok := listFrame.StringList(jim.KeyDataList)
	require.True(t, ok)
	require.Equal(t, []string{"bob"}, contacts)

	alice.send(jim.NewDelContact("alice", "bob"))
	code, _ = alice.recv().Response()
	require.Equal(t, jim.CodeOK, code)

	alice.send(jim.NewGetContacts("alice"))
	listFrame = alice.recv()
	contacts, _ = listFrame.StringList(jim.KeyDataList)
	require.Empty(t, contacts)
}

func TestGetUsers(t *testing.T) {
	srv, _ := startTestServer(t)
	register(t, srv, "alice", "pw")
	register(t, srv, "bob", "pw2")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")

	alice.send(jim.NewGetUsers("alice"))
	listFrame := alice.recv()
	code, _ := listFrame.Response()
	require.Equal(t, jim.CodeList, code)
	logins, ok := listFrame.StringList(jim.KeyDataList)
	require.True(t, ok)
	require.Equal(t, []string{"alice", "bob"}, logins)
}

func TestPublicKeyRequest(t *testing.T) {
	srv, _ := startTestServer(t)
	register(t, srv, "alice", "pw")
	register(t, srv, "bob", "pw2")

	bob := dial(t, srv)
	bob.authenticate("bob", "pw2")

	// alice has never logged in: no key stored yet.
	bob.send(jim.NewPublicKeyReq("alice"))
	require.Equal(t, jim.ErrTextNoPublicKey, bob.recvError())

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")

	bob.send(jim.NewPublicKeyReq("alice"))
	keyFrame := bob.recv()
	code, _ := keyFrame.Response()
	require.Equal(t, jim.CodeAuth, code)
	pem, _ := keyFrame.Str(jim.KeyData)
	require.Equal(t, testPubkey, pem)
}

func TestOperatorRemoveUserBroadcasts(t *testing.T) {
	srv, st := startTestServer(t)
	register(t, srv, "alice", "pw")
	register(t, srv, "bob", "pw2")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")
	bob := dial(t, srv)
	bob.authenticate("bob", "pw2")

	require.NoError(t, srv.RemoveUser(context.Background(), "bob"))

	// bob's connection is gone, alice gets the roster-changed push.
	bob.expectClosed()
	refresh := alice.recv()
	code, _ := refresh.Response()
	require.Equal(t, jim.CodeRosterChanged, code)

	ok, err := st.UserExists(context.Background(), "bob")
	require.NoError(t, err)
	require.False(t, ok)

	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "alice", sessions[0].Login)
}

func TestChangePasswordEvicts(t *testing.T) {
	srv, _ := startTestServer(t)
	register(t, srv, "alice", "pw")
	register(t, srv, "bob", "pw2")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")
	bob := dial(t, srv)
	bob.authenticate("bob", "pw2")

	require.NoError(t, srv.ChangePassword(context.Background(), "bob", keys.PasswordHash("bob", "different")))

	bob.expectClosed()
	refresh := alice.recv()
	code, _ := refresh.Response()
	require.Equal(t, jim.CodeRosterChanged, code)

	// The new credential works, the old one does not.
	bob2 := dial(t, srv)
	bob2.authenticate("bob", "different")
}

func TestExitEvicts(t *testing.T) {
	srv, st := startTestServer(t)
	register(t, srv, "alice", "pw")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")

	alice.send(jim.NewExit("alice"))
	alice.expectClosed()

	require.Eventually(t, func() bool {
		sessions, err := st.ListSessions(context.Background())
		return err == nil && len(sessions) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMalformedFrameEvicts(t *testing.T) {
	srv, _ := startTestServer(t)
	register(t, srv, "alice", "pw")

	c := dial(t, srv)
	c.authenticate("alice", "pw")

	// A length-prefixed payload that is not a JSON object.
	payload := []byte(`"just a string"`)
	header := []byte{0, 0, 0, byte(len(payload))}
	_, err := c.conn.Write(append(header, payload...))
	require.NoError(t, err)

	c.expectClosed()
}

func TestUnknownActionKeepsConnection(t *testing.T) {
	srv, _ := startTestServer(t)
	register(t, srv, "alice", "pw")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")

	alice.send(jim.Frame{jim.KeyAction: "dance", jim.KeyTime: jim.Timestamp()})
	require.Equal(t, jim.ErrTextBadRequest, alice.recvError())

	// Connection still usable.
	alice.send(jim.NewGetUsers("alice"))
	code, _ := alice.recv().Response()
	require.Equal(t, jim.CodeList, code)
}

func TestRepeatedPresenceAfterAuth(t *testing.T) {
	srv, _ := startTestServer(t)
	register(t, srv, "alice", "pw")

	alice := dial(t, srv)
	alice.authenticate("alice", "pw")

	alice.send(jim.NewPresence("alice", testPubkey))
	require.Equal(t, jim.ErrTextBadRequest, alice.recvError())

	alice.send(jim.NewGetUsers("alice"))
	code, _ := alice.recv().Response()
	require.Equal(t, jim.CodeList, code)
}

func TestConfigValidation(t *testing.T) {
	st := &store.Store{}

	for _, port := range []int{-1, 80, 1023, 65536} {
		_, err := New(Config{Port: port}, st, nil)
		require.Error(t, err, "port %d accepted", port)
	}

	_, err := New(Config{Port: 1024}, st, nil)
	require.NoError(t, err)
}
