package client

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/0xRadioAc7iv/segcask/internal"
	"github.com/0xRadioAc7iv/segcask/internal/protocol"
)

// ServerError is an error reply from the server.
type ServerError struct {
	Command string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("segcask: %s: %s", e.Command, e.Message)
}

// Client is a single connection to a server. It is safe for concurrent use;
// requests are serialized on the connection.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

func Connect(opts ...Option) (*Client, error) {
	cfg := internal.DefaultConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := net.DialTimeout("tcp", addr, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn}, nil
}

func (c *Client) Ping() error {
	_, err := c.expectOK(protocol.CmdPing, "", nil)
	return err
}

func (c *Client) Set(key string, value []byte) error {
	_, err := c.expectOK(protocol.CmdSet, key, value)
	return err
}

// Get returns the value stored under key. found is false when the key does
// not exist.
func (c *Client) Get(key string) (value []byte, found bool, err error) {
	resp, err := c.sendCommand(protocol.CmdGet, key, nil)
	if err != nil {
		return nil, false, err
	}

	switch resp.Status {
	case protocol.StatusNil:
		return nil, false, nil
	case protocol.StatusError:
		return nil, false, &ServerError{Command: protocol.CmdGet, Message: string(resp.Body)}
	}
	return resp.Body, true, nil
}

func (c *Client) Delete(key string) error {
	_, err := c.expectOK(protocol.CmdDelete, key, nil)
	return err
}

func (c *Client) Exists(key string) (bool, error) {
	body, err := c.expectOK(protocol.CmdExists, key, nil)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(body)
}

func (c *Client) Count() (int, error) {
	body, err := c.expectOK(protocol.CmdCount, "", nil)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(body)
}

// List returns every key on the server in sorted order.
func (c *Client) List() ([]string, error) {
	resp, err := c.sendCommand(protocol.CmdList, "", nil)
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case protocol.StatusNil:
		return nil, nil
	case protocol.StatusError:
		return nil, &ServerError{Command: protocol.CmdList, Message: string(resp.Body)}
	}
	return strings.Split(string(resp.Body), "\n"), nil
}

// Execute sends a raw command and renders the reply as text, for interactive
// use. Server error replies are rendered rather than returned; only transport
// failures produce an error.
func (c *Client) Execute(cmd, key, value string) (string, error) {
	resp, err := c.sendCommand(cmd, key, []byte(value))
	if err != nil {
		return "", err
	}

	switch resp.Status {
	case protocol.StatusNil:
		return "(nil)", nil
	case protocol.StatusError:
		return "(error) " + string(resp.Body), nil
	}
	return string(resp.Body), nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) expectOK(cmd, key string, value []byte) (string, error) {
	resp, err := c.sendCommand(cmd, key, value)
	if err != nil {
		return "", err
	}

	switch resp.Status {
	case protocol.StatusOK:
		return string(resp.Body), nil
	case protocol.StatusError:
		return "", &ServerError{Command: cmd, Message: string(resp.Body)}
	default:
		return "", fmt.Errorf("segcask: %s: unexpected %v reply", cmd, resp.Status)
	}
}

func (c *Client) sendCommand(cmd, key string, value []byte) (protocol.Response, error) {
	payload, err := protocol.EncodeCommand(cmd, key, value)
	if err != nil {
		return protocol.Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.Write(payload); err != nil {
		return protocol.Response{}, err
	}

	return protocol.DecodeResponse(c.conn)
}
