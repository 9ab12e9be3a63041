// Command takmachat is the terminal chat client: it connects to a
// takmachat broker, authenticates with challenge/response and runs a
// line-oriented REPL. Message bodies are RSA-encrypted end to end; the
// broker never sees plaintext.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vtakmakov/takmachat/internal/cli/prompt"
	"github.com/vtakmakov/takmachat/internal/logger"
	"github.com/vtakmakov/takmachat/internal/protocol/jim"
	"github.com/vtakmakov/takmachat/pkg/client"
	"github.com/vtakmakov/takmachat/pkg/client/store"
	"github.com/vtakmakov/takmachat/pkg/keys"
)

const usage = `takmachat - terminal chat client

Usage:
  takmachat [-a address] [-p port] [-n login] [-pw password] [-d dir]

Flags:
  -a   server address (default 127.0.0.1)
  -p   server port (default 7777)
  -n   login (prompted when absent)
  -pw  password (prompted when absent)
  -d   data directory for the key and local database (default .)

REPL commands:
  /users          list all registered users
  /contacts       list your contacts
  /add <login>    add a contact
  /del <login>    remove a contact
  /to <login>     choose the active peer
  /history [l]    show message history with the active peer (or l)
  /quit           exit

Any other input is encrypted and sent to the active peer.
`

func main() {
	var (
		address  = flag.String("a", "127.0.0.1", "server address")
		port     = flag.Int("p", jim.DefaultPort, "server port")
		login    = flag.String("n", "", "login")
		password = flag.String("pw", "", "password")
		dataDir  = flag.String("d", ".", "data directory")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	// Keep the chat window clean; the client core logs transport
	// trouble at Warn.
	_ = logger.Init(logger.Config{Level: "WARN", Output: "stderr"})

	if err := run(*address, *port, *login, *password, *dataDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(address string, port int, login, password, dataDir string) error {
	var err error
	if login == "" {
		login, err = prompt.InputRequired("Login")
		if err != nil {
			return err
		}
	}
	if password == "" {
		password, err = prompt.Password("Password")
		if err != nil {
			return err
		}
	}

	key, err := keys.LoadOrCreate(dataDir, login)
	if err != nil {
		return fmt.Errorf("failed to load key: %w", err)
	}

	st, err := store.Open(dataDir, login)
	if err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}
	defer func() { _ = st.Close() }()

	c, err := client.New(client.Config{
		Address:      address,
		Port:         port,
		Login:        login,
		PasswordHash: keys.PasswordHash(login, password),
		Key:          key,
	}, st)
	if err != nil {
		return err
	}

	if err := c.Connect(context.Background()); err != nil {
		return err
	}
	defer c.Disconnect()

	fmt.Printf("Connected to %s:%d as %s. Type /quit to exit.\n", address, port, login)

	lost := make(chan struct{})
	go consumeEvents(c, lost)

	repl(c, lost)
	return nil
}

// consumeEvents prints incoming messages and roster notices until the
// connection drops or the event channel closes.
func consumeEvents(c *client.Client, lost chan<- struct{}) {
	for ev := range c.Events() {
		switch e := ev.(type) {
		case client.MessageEvent:
			fmt.Printf("\n[%s] %s\n> ", e.From, e.Text)
		case client.RosterChangedEvent:
			fmt.Printf("\n(roster updated)\n> ")
		case client.ConnectionLostEvent:
			fmt.Printf("\n%s\n", client.MsgConnectionLost)
			close(lost)
			return
		}
	}
}

// repl reads commands from stdin until /quit, EOF or a lost connection.
func repl(c *client.Client, lost <-chan struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	peer := ""

	fmt.Print("> ")
	for scanner.Scan() {
		select {
		case <-lost:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}

		if line == "/quit" {
			return
		}

		if strings.HasPrefix(line, "/") {
			peer = runCommand(c, line, peer)
		} else if peer == "" {
			fmt.Println("no active peer: choose one with /to <login>")
		} else {
			sendMessage(c, peer, line)
		}

		fmt.Print("> ")
	}
}

// runCommand executes one slash command and returns the (possibly
// updated) active peer.
func runCommand(c *client.Client, line, peer string) string {
	fields := strings.Fields(line)
	cmd, arg := fields[0], ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "/users":
		printList(c.KnownUsers())
	case "/contacts":
		printList(c.Contacts())
	case "/add":
		if arg == "" {
			fmt.Println("usage: /add <login>")
			return peer
		}
		if err := c.AddContact(arg); err != nil {
			fmt.Println("error:", err)
		}
	case "/del":
		if arg == "" {
			fmt.Println("usage: /del <login>")
			return peer
		}
		if err := c.RemoveContact(arg); err != nil {
			fmt.Println("error:", err)
		}
	case "/to":
		if arg == "" {
			fmt.Println("usage: /to <login>")
			return peer
		}
		return arg
	case "/history":
		target := arg
		if target == "" {
			target = peer
		}
		if target == "" {
			fmt.Println("usage: /history <login>")
			return peer
		}
		printHistory(c, target)
	default:
		fmt.Println("unknown command:", cmd)
	}
	return peer
}

// sendMessage encrypts text to peer's public key and sends it.
func sendMessage(c *client.Client, peer, text string) {
	pem, err := c.FetchPublicKey(peer)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	pub, err := keys.ParsePublicKeyPEM(pem)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	ciphertext, err := keys.Encrypt(pub, []byte(text))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	if err := c.SendText(peer, ciphertext, text); err != nil {
		fmt.Println("error:", err)
	}
}

func printList(items []string, err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(items) == 0 {
		fmt.Println("(empty)")
		return
	}
	for _, item := range items {
		fmt.Println(" ", item)
	}
}

func printHistory(c *client.Client, peer string) {
	entries, err := c.HistoryWith(peer)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, e := range entries {
		who := peer
		if e.Direction == store.DirectionOut {
			who = "me"
		}
		fmt.Printf("  %s [%s] %s\n", e.When.Local().Format("02.01.2006 15:04"), who, e.Body)
	}
}
