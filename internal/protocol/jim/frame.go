package jim

import (
	"time"
)

// Frame is one protocol object. Keys are checked positionally: handlers
// look for the keys they need and ignore anything extra, so a Frame is a
// plain map rather than a fixed struct.
type Frame map[string]any

// Timestamp returns the wall clock as fractional seconds since the epoch,
// the representation the "time" key carries on the wire.
func Timestamp() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Action returns the frame's action code, if present.
func (f Frame) Action() (string, bool) {
	s, ok := f[KeyAction].(string)
	return s, ok
}

// Response returns the frame's numeric response code, if present.
// JSON numbers decode as float64; integral values are accepted.
func (f Frame) Response() (int, bool) {
	switch v := f[KeyResponse].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// IsResponse reports whether the frame carries a response code.
func (f Frame) IsResponse() bool {
	_, ok := f.Response()
	return ok
}

// Str returns the string value under key, if present and a string.
func (f Frame) Str(key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok
}

// Has reports whether key is present at all.
func (f Frame) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// StringList returns the list value under key coerced to strings.
// Entries that are not strings are skipped.
func (f Frame) StringList(key string) ([]string, bool) {
	raw, ok := f[key].([]any)
	if !ok {
		// A freshly built (not decoded) frame may hold []string directly.
		if direct, ok := f[key].([]string); ok {
			return direct, true
		}
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// User returns the nested user object of a presence frame.
func (f Frame) User() (Frame, bool) {
	switch v := f[KeyUser].(type) {
	case map[string]any:
		return Frame(v), true
	case Frame:
		return v, true
	default:
		return nil, false
	}
}

// UserName returns the "user" key as a plain string (the shape used by
// get_contacts, add and remove, where user names the claimant).
func (f Frame) UserName() (string, bool) {
	return f.Str(KeyUser)
}

// NewPresence builds the authentication-opening frame.
func NewPresence(login, publicKeyPEM string) Frame {
	return Frame{
		KeyAction: ActionPresence,
		KeyTime:   Timestamp(),
		KeyUser: Frame{
			KeyAccountName: login,
			KeyPublicKey:   publicKeyPEM,
		},
	}
}

// NewMessage builds a user-to-user message frame. The text is expected to
// already be the base64 form of the RSA-encrypted body.
func NewMessage(from, to, text string) Frame {
	return Frame{
		KeyAction:      ActionMessage,
		KeyTime:        Timestamp(),
		KeyFrom:        from,
		KeyTo:          to,
		KeyMessageText: text,
	}
}

// NewExit builds the clean-shutdown notice.
func NewExit(login string) Frame {
	return Frame{
		KeyAction:      ActionExit,
		KeyTime:        Timestamp(),
		KeyAccountName: login,
	}
}

// NewGetContacts builds the contact-list request.
func NewGetContacts(login string) Frame {
	return Frame{
		KeyAction: ActionGetContacts,
		KeyTime:   Timestamp(),
		KeyUser:   login,
	}
}

// NewGetUsers builds the known-users request.
func NewGetUsers(login string) Frame {
	return Frame{
		KeyAction:      ActionGetUsers,
		KeyTime:        Timestamp(),
		KeyAccountName: login,
	}
}

// NewAddContact builds the add-contact request: owner asks to add contact.
func NewAddContact(owner, contact string) Frame {
	return Frame{
		KeyAction:      ActionAddContact,
		KeyTime:        Timestamp(),
		KeyUser:        owner,
		KeyAccountName: contact,
	}
}

// NewDelContact builds the remove-contact request.
func NewDelContact(owner, contact string) Frame {
	return Frame{
		KeyAction:      ActionDelContact,
		KeyTime:        Timestamp(),
		KeyUser:        owner,
		KeyAccountName: contact,
	}
}

// NewPublicKeyReq builds the public-key lookup for target.
func NewPublicKeyReq(target string) Frame {
	return Frame{
		KeyAction:      ActionPublicKeyReq,
		KeyTime:        Timestamp(),
		KeyAccountName: target,
	}
}

// NewResponse builds a bare numeric reply such as {response:200}.
func NewResponse(code int) Frame {
	return Frame{KeyResponse: code}
}

// NewError builds a {response:400, error:msg} reply.
func NewError(msg string) Frame {
	return Frame{
		KeyResponse: CodeError,
		KeyError:    msg,
	}
}

// NewList builds a {response:202, data_list:items} reply.
func NewList(items []string) Frame {
	return Frame{
		KeyResponse: CodeList,
		KeyDataList: items,
	}
}

// NewAuth builds a {response:511, bin:data} frame, used for both the
// server challenge and the client answer, and for public-key payloads.
func NewAuth(data string) Frame {
	return Frame{
		KeyResponse: CodeAuth,
		KeyData:     data,
	}
}
