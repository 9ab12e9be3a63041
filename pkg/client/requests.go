package client

import (
	"fmt"

	"github.com/vtakmakov/takmachat/internal/protocol/jim"
	"github.com/vtakmakov/takmachat/pkg/client/store"
)

// maxInterleaved bounds how many pushed frames a request is willing to
// absorb while waiting for its reply.
const maxInterleaved = 32

// sendThenReceive performs one request/response pair under the socket
// mutex. The server may interleave pushed frames (inbound messages,
// roster notices) ahead of the reply; those are collected and handled
// after the mutex is released, so the roster refresh they trigger can
// issue its own requests.
func (c *Client) sendThenReceive(f jim.Frame) (jim.Frame, error) {
	if c.sock == nil {
		return nil, ErrNotConnected
	}

	var (
		reply      jim.Frame
		rosterPush bool
		pushed     []jim.Frame
	)

	c.sockMu.Lock()
	err := func() error {
		if err := c.writeFrame(f); err != nil {
			return err
		}
		for i := 0; i < maxInterleaved; i++ {
			got, err := c.readFrame(c.config.ReadTimeout)
			if err != nil {
				return err
			}
			if code, ok := got.Response(); ok {
				if code == jim.CodeRosterChanged {
					rosterPush = true
					continue
				}
				reply = got
				return nil
			}
			pushed = append(pushed, got)
		}
		return fmt.Errorf("no reply within %d frames", maxInterleaved)
	}()
	c.sockMu.Unlock()

	for _, g := range pushed {
		c.handleAction(g)
	}
	if rosterPush {
		c.handleRosterPush()
	}

	if err != nil {
		return nil, serverErr(MsgConnectionLost)
	}
	return reply, nil
}

// expectOK runs a request whose success reply is a bare {response:200}.
func (c *Client) expectOK(f jim.Frame) error {
	reply, err := c.sendThenReceive(f)
	if err != nil {
		return err
	}
	if err := replyError(reply); err != nil {
		return err
	}
	if code, _ := reply.Response(); code != jim.CodeOK {
		return serverErr(fmt.Sprintf("unexpected reply %v", reply))
	}
	return nil
}

// expectList runs a request whose success reply is {response:202,
// data_list:[...]}.
func (c *Client) expectList(f jim.Frame) ([]string, error) {
	reply, err := c.sendThenReceive(f)
	if err != nil {
		return nil, err
	}
	if err := replyError(reply); err != nil {
		return nil, err
	}
	if code, _ := reply.Response(); code != jim.CodeList {
		return nil, serverErr(fmt.Sprintf("unexpected reply %v", reply))
	}
	items, ok := reply.StringList(jim.KeyDataList)
	if !ok {
		return nil, serverErr("list reply without data_list")
	}
	return items, nil
}

// RequestContacts fetches the server-side contact list and replaces the
// local one with it.
func (c *Client) RequestContacts() error {
	contacts, err := c.expectList(jim.NewGetContacts(c.config.Login))
	if err != nil {
		return err
	}
	if err := c.store.ClearContacts(); err != nil {
		return err
	}
	for _, login := range contacts {
		if err := c.store.AddContact(login); err != nil {
			return err
		}
	}
	return nil
}

// RequestUsers fetches the server's registered logins and replaces the
// local known-user mirror.
func (c *Client) RequestUsers() error {
	users, err := c.expectList(jim.NewGetUsers(c.config.Login))
	if err != nil {
		return err
	}
	return c.store.ReplaceKnownUsers(users)
}

// FetchPublicKey asks the server for peer's public key and returns the
// PEM text. A peer that never logged in yields a *ServerError.
func (c *Client) FetchPublicKey(peer string) (string, error) {
	reply, err := c.sendThenReceive(jim.NewPublicKeyReq(peer))
	if err != nil {
		return "", err
	}
	if err := replyError(reply); err != nil {
		return "", err
	}
	if code, _ := reply.Response(); code != jim.CodeAuth {
		return "", serverErr(fmt.Sprintf("unexpected reply %v", reply))
	}
	pem, ok := reply.Str(jim.KeyData)
	if !ok {
		return "", serverErr("public key reply without bin field")
	}
	return pem, nil
}

// AddContact registers peer in the server-side contact list and mirrors
// it locally on success.
func (c *Client) AddContact(peer string) error {
	if err := c.expectOK(jim.NewAddContact(c.config.Login, peer)); err != nil {
		return err
	}
	return c.store.AddContact(peer)
}

// RemoveContact removes peer from the server-side contact list and
// mirrors the removal locally on success.
func (c *Client) RemoveContact(peer string) error {
	if err := c.expectOK(jim.NewDelContact(c.config.Login, peer)); err != nil {
		return err
	}
	return c.store.DeleteContact(peer)
}

// SendText sends one already-encrypted message body to peer. On a 200
// the plaintext is appended to the local history; the server never sees
// it.
func (c *Client) SendText(peer, ciphertextB64, plaintext string) error {
	if err := c.expectOK(jim.NewMessage(c.config.Login, peer, ciphertextB64)); err != nil {
		return err
	}
	return c.store.AppendHistory(peer, store.DirectionOut, plaintext)
}
