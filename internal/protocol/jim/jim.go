// Package jim implements the JSON instant-messaging wire protocol spoken
// between the takmachat server and its clients.
//
// A frame is a single UTF-8 JSON object. On the stream each frame is
// preceded by a 4-byte big-endian length prefix; the JSON payload itself
// is capped at MaxFrameBytes. Every frame carries either an "action" key
// (request / event) or a "response" key (reply).
package jim

// MaxFrameBytes is the maximum size of one encoded JSON payload. The cap
// is part of the wire contract: peers reject anything larger.
const MaxFrameBytes = 1024

// DefaultPort is the TCP port the server listens on when none is configured.
const DefaultPort = 7777

// Wire object keys.
const (
	KeyAction      = "action"
	KeyTime        = "time"
	KeyUser        = "user"
	KeyAccountName = "account_name"
	KeyFrom        = "from"
	KeyTo          = "to"
	KeyData        = "bin"
	KeyPublicKey   = "pubkey"
	KeyResponse    = "response"
	KeyError       = "error"
	KeyMessageText = "message_text"
	KeyDataList    = "data_list"
)

// Action codes carried under KeyAction.
const (
	ActionPresence     = "presence"
	ActionMessage      = "message"
	ActionExit         = "exit"
	ActionGetContacts  = "get_contacts"
	ActionGetUsers     = "get_users"
	ActionAddContact   = "add"
	ActionDelContact   = "remove"
	ActionPublicKeyReq = "pubkey_need"
)

// Response codes carried under KeyResponse.
const (
	CodeOK            = 200
	CodeList          = 202
	CodeRosterChanged = 205
	CodeError         = 400
	CodeAuth          = 511
)

// Protocol-visible error strings for CodeError replies.
const (
	ErrTextBadRequest    = "bad request"
	ErrTextNameTaken     = "name taken"
	ErrTextNotRegistered = "not registered"
	ErrTextBadPassword   = "bad password"
	ErrTextUserOffline   = "user not registered"
	ErrTextNoPublicKey   = "no public key"
)

// ValidPort reports whether p is an acceptable listening or dialing port.
// The protocol restricts ports to the non-privileged range.
func ValidPort(p int) bool {
	return p > 1023 && p < 65536
}
