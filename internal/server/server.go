// Package server exposes a string-keyed store over TCP using the framing in
// internal/protocol.
package server

import (
	"errors"
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/segcask/internal/protocol"
)

// Store is the subset of the engine the server drives.
// *core.Bitcask[string] satisfies it.
type Store interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, bool, error)
	Delete(key string) error
	Exists(key string) bool
	Count() int
	Keys() []string
}

type Server struct {
	store  Store
	logger *zap.Logger

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	shutdown bool
	wg       sync.WaitGroup
}

func New(store Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:  store,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	remote := zap.String("remote", conn.RemoteAddr().String())
	s.logger.Debug("client connected", remote)

	for {
		command, err := protocol.DecodeCommand(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.logger.Debug("client disconnected", remote)
			} else {
				s.logger.Warn("dropping client", remote, zap.Error(err))
			}
			return
		}

		if err := s.reply(conn, s.Handle(command)); err != nil {
			s.logger.Debug("client disconnected", remote, zap.Error(err))
			return
		}
	}
}

// Handle executes a single command against the store.
func (s *Server) Handle(command *protocol.Command) protocol.Response {
	cmd := strings.ToLower(command.Cmd)

	switch cmd {
	case protocol.CmdPing:
		return protocol.OK("PONG!")
	case protocol.CmdHelp:
		return protocol.OK(strings.TrimSpace(helpText))
	case protocol.CmdCount:
		return protocol.OK(strconv.Itoa(s.store.Count()))
	case protocol.CmdList:
		return s.handleList()
	case protocol.CmdSet, protocol.CmdGet, protocol.CmdDelete, protocol.CmdExists:
		if command.Key == "" {
			return protocol.Error(cmd + " requires a key")
		}
	default:
		return protocol.Error("invalid command " + strconv.Quote(command.Cmd))
	}

	switch cmd {
	case protocol.CmdSet:
		return s.handleSet(command.Key, command.Val)
	case protocol.CmdGet:
		return s.handleGet(command.Key)
	case protocol.CmdDelete:
		return s.handleDelete(command.Key)
	default:
		return protocol.OK(strconv.FormatBool(s.store.Exists(command.Key)))
	}
}

func (s *Server) handleSet(key string, value []byte) protocol.Response {
	if err := s.store.Put(key, value); err != nil {
		s.logger.Error("set failed", zap.String("key", key), zap.Error(err))
		return protocol.Error("set failed: " + err.Error())
	}
	return protocol.OK("ok")
}

func (s *Server) handleGet(key string) protocol.Response {
	value, ok, err := s.store.Get(key)
	if err != nil {
		s.logger.Error("get failed", zap.String("key", key), zap.Error(err))
		return protocol.Error("get failed: " + err.Error())
	}
	if !ok {
		return protocol.Nil()
	}
	return protocol.Response{Status: protocol.StatusOK, Body: value}
}

func (s *Server) handleDelete(key string) protocol.Response {
	if err := s.store.Delete(key); err != nil {
		s.logger.Error("delete failed", zap.String("key", key), zap.Error(err))
		return protocol.Error("delete failed: " + err.Error())
	}
	return protocol.OK("ok")
}

func (s *Server) handleList() protocol.Response {
	keys := s.store.Keys()
	if len(keys) == 0 {
		return protocol.Nil()
	}
	slices.Sort(keys)
	return protocol.OK(strings.Join(keys, "\n"))
}

func (s *Server) reply(conn net.Conn, resp protocol.Response) error {
	encoded, err := protocol.EncodeResponse(resp)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		encoded, err = protocol.EncodeResponse(protocol.Error(err.Error()))
		if err != nil {
			return err
		}
	}

	_, err = conn.Write(encoded)
	return err
}

const helpText = `
Available Commands:

PING
  Check if the server is alive.
  Response: PONG!

SET <key> <value>
  Store a value for the given key.
  Overwrites the value if the key already exists.
  Response: ok

GET <key>
  Retrieve the value associated with the key.
  Response: value | (nil)

DELETE <key>
  Delete the key and its value.
  Response: ok

EXISTS <key>
  Check if a key exists.
  Response: true | false

COUNT
  Return the total number of keys stored.
  Response: integer

LIST
  List all stored keys, sorted.
  Response: list of keys | (nil)

HELP
  Show this help message.

EXIT (cli only)
  Close the client connection.
`
