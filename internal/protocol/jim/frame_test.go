package jim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Request builders
// =============================================================================

func TestNewPresence(t *testing.T) {
	f := NewPresence("alice", "-----BEGIN PUBLIC KEY-----")

	action, ok := f.Action()
	require.True(t, ok)
	assert.Equal(t, ActionPresence, action)
	assert.True(t, f.Has(KeyTime))

	user, ok := f.User()
	require.True(t, ok)
	assert.Equal(t, "alice", user[KeyAccountName])
	assert.Equal(t, "-----BEGIN PUBLIC KEY-----", user[KeyPublicKey])
}

func TestNewMessage(t *testing.T) {
	f := NewMessage("alice", "bob", "ciphertext")

	action, _ := f.Action()
	assert.Equal(t, ActionMessage, action)

	from, _ := f.Str(KeyFrom)
	to, _ := f.Str(KeyTo)
	text, _ := f.Str(KeyMessageText)
	assert.Equal(t, "alice", from)
	assert.Equal(t, "bob", to)
	assert.Equal(t, "ciphertext", text)
	assert.True(t, f.Has(KeyTime))
}

func TestNewExit(t *testing.T) {
	f := NewExit("alice")

	action, _ := f.Action()
	assert.Equal(t, ActionExit, action)
	name, _ := f.Str(KeyAccountName)
	assert.Equal(t, "alice", name)
}

func TestRosterRequests(t *testing.T) {
	t.Run("GetContacts", func(t *testing.T) {
		f := NewGetContacts("alice")
		action, _ := f.Action()
		assert.Equal(t, ActionGetContacts, action)
		owner, ok := f.UserName()
		require.True(t, ok)
		assert.Equal(t, "alice", owner)
	})

	t.Run("GetUsers", func(t *testing.T) {
		f := NewGetUsers("alice")
		action, _ := f.Action()
		assert.Equal(t, ActionGetUsers, action)
		name, _ := f.Str(KeyAccountName)
		assert.Equal(t, "alice", name)
	})

	t.Run("AddContact", func(t *testing.T) {
		f := NewAddContact("alice", "bob")
		action, _ := f.Action()
		assert.Equal(t, ActionAddContact, action)
		owner, _ := f.Str(KeyUser)
		contact, _ := f.Str(KeyAccountName)
		assert.Equal(t, "alice", owner)
		assert.Equal(t, "bob", contact)
	})

	t.Run("DelContact", func(t *testing.T) {
		f := NewDelContact("alice", "bob")
		action, _ := f.Action()
		assert.Equal(t, ActionDelContact, action)
		owner, _ := f.Str(KeyUser)
		contact, _ := f.Str(KeyAccountName)
		assert.Equal(t, "alice", owner)
		assert.Equal(t, "bob", contact)
	})
}

func TestNewPublicKeyReq(t *testing.T) {
	f := NewPublicKeyReq("bob")

	action, _ := f.Action()
	assert.Equal(t, ActionPublicKeyReq, action)
	target, _ := f.Str(KeyAccountName)
	assert.Equal(t, "bob", target)
}

// =============================================================================
// Response builders
// =============================================================================

func TestResponseBuilders(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		f := NewResponse(CodeOK)
		code, ok := f.Response()
		require.True(t, ok)
		assert.Equal(t, CodeOK, code)
		assert.True(t, f.IsResponse())
	})

	t.Run("Error", func(t *testing.T) {
		f := NewError(ErrTextBadPassword)
		code, _ := f.Response()
		assert.Equal(t, CodeError, code)
		msg, _ := f.Str(KeyError)
		assert.Equal(t, ErrTextBadPassword, msg)
	})

	t.Run("List", func(t *testing.T) {
		f := NewList([]string{"bob", "carol"})
		code, _ := f.Response()
		assert.Equal(t, CodeList, code)
		list, ok := f.StringList(KeyDataList)
		require.True(t, ok)
		assert.Equal(t, []string{"bob", "carol"}, list)
	})

	t.Run("Auth", func(t *testing.T) {
		f := NewAuth("deadbeef")
		code, _ := f.Response()
		assert.Equal(t, CodeAuth, code)
		data, _ := f.Str(KeyData)
		assert.Equal(t, "deadbeef", data)
	})
}

// =============================================================================
// Accessors
// =============================================================================

func TestAccessorsOnDecodedFrame(t *testing.T) {
	// Decoding puts float64 into every numeric slot; the accessors must
	// still hand back ints and string slices.
	raw := []byte(`{"response":202,"data_list":["a","b"],"time":1700000000.5}`)
	f, err := Unmarshal(raw)
	require.NoError(t, err)

	code, ok := f.Response()
	require.True(t, ok)
	assert.Equal(t, CodeList, code)
	assert.True(t, f.IsResponse())

	_, ok = f.Action()
	assert.False(t, ok)

	list, ok := f.StringList(KeyDataList)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, list)
}

func TestUserAccessorOnDecodedFrame(t *testing.T) {
	raw := []byte(`{"action":"presence","user":{"account_name":"alice","pubkey":"PEM"}}`)
	f, err := Unmarshal(raw)
	require.NoError(t, err)

	user, ok := f.User()
	require.True(t, ok)
	assert.Equal(t, "alice", user[KeyAccountName])

	// "user" holds an object here, not a plain string.
	_, ok = f.UserName()
	assert.False(t, ok)
}

func TestUserNameAbsent(t *testing.T) {
	f := NewResponse(CodeOK)
	name, ok := f.UserName()
	assert.False(t, ok)
	assert.Empty(t, name)

	missing, ok := f.Str("nonexistent")
	assert.False(t, ok)
	assert.Empty(t, missing)
}

func TestTimestamp(t *testing.T) {
	before := float64(time.Now().UnixNano()) / 1e9
	ts := Timestamp()
	after := float64(time.Now().UnixNano()) / 1e9

	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, after)
}

// =============================================================================
// Constants
// =============================================================================

func TestWireConstants(t *testing.T) {
	assert.Equal(t, 1024, MaxFrameBytes)
	assert.Equal(t, 7777, DefaultPort)

	assert.Equal(t, "presence", ActionPresence)
	assert.Equal(t, "message", ActionMessage)
	assert.Equal(t, "exit", ActionExit)
	assert.Equal(t, "get_contacts", ActionGetContacts)
	assert.Equal(t, "get_users", ActionGetUsers)
	assert.Equal(t, "add", ActionAddContact)
	assert.Equal(t, "remove", ActionDelContact)
	assert.Equal(t, "pubkey_need", ActionPublicKeyReq)

	assert.Equal(t, 200, CodeOK)
	assert.Equal(t, 202, CodeList)
	assert.Equal(t, 205, CodeRosterChanged)
	assert.Equal(t, 400, CodeError)
	assert.Equal(t, 511, CodeAuth)

	assert.Equal(t, "from", KeyFrom)
	assert.Equal(t, "to", KeyTo)
	assert.Equal(t, "bin", KeyData)
	assert.Equal(t, "pubkey", KeyPublicKey)
	assert.Equal(t, "data_list", KeyDataList)
	assert.Equal(t, "message_text", KeyMessageText)
	assert.Equal(t, "account_name", KeyAccountName)
}

func TestValidPort(t *testing.T) {
	assert.False(t, ValidPort(0))
	assert.False(t, ValidPort(22))
	assert.False(t, ValidPort(1023))
	assert.True(t, ValidPort(1024))
	assert.True(t, ValidPort(DefaultPort))
	assert.True(t, ValidPort(65535))
	assert.False(t, ValidPort(65536))
	assert.False(t, ValidPort(-1))
}
