package client

import "errors"

// ErrNotConnected is returned by requests issued before Connect or after
// the connection was lost.
var ErrNotConnected = errors.New("client is not connected")

// User-facing texts for fatal connection failures. The wording is part of
// the product: embedding UIs show these verbatim.
const (
	MsgConnectFailed      = "Не удалось установить соединение с сервером."
	MsgConnectionLost     = "Потеряно соединение с сервером."
	MsgAuthConnectionLost = "В процессе авторизации потеряно соединение с сервером"
)

// ServerError is a failure reported by the server (a {response:400}
// reply) or a fatal connection-level failure with a user-facing text.
type ServerError struct {
	Text string
}

func (e *ServerError) Error() string {
	return e.Text
}

// serverErr wraps a protocol error string.
func serverErr(text string) *ServerError {
	return &ServerError{Text: text}
}
