// Package ipc is the control channel between luna-ctl and the daemon:
// one JSON request and one JSON reply per unix-socket connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	CmdTrigger     = "trigger"
	CmdSay         = "say"
	CmdPreview     = "preview"
	CmdParse       = "parse"
	CmdCancel      = "cancel"
	CmdReload      = "reload"
	CmdSensitivity = "sensitivity"
	CmdStatus      = "status"
	CmdAssert      = "assert"
	CmdRetract     = "retract"
)

const ioTimeout = 5 * time.Second

func DefaultSocketPath() string { return filepath.Join(os.TempDir(), "luna.sock") }

type Request struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

type Reply struct {
	OK    bool           `json:"ok"`
	Text  string         `json:"text,omitempty"`
	Error string         `json:"error,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

func Ok(text string) Reply { return Reply{OK: true, Text: text} }

func Fail(err error) Reply { return Reply{Error: err.Error()} }

type Handler func(ctx context.Context, req Request) Reply

type Server struct {
	ln   net.Listener
	path string
}

// StartServer listens on path and serves until ctx ends or Close is
// called. A stale socket file is removed first.
func StartServer(ctx context.Context, path string, handler Handler) (*Server, error) {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	s := &Server{ln: ln, path: path}

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("Control accept failed", "err", err)
				continue
			}
			go handleConn(ctx, conn, handler)
		}
	}()

	log.Info("Control channel listening", "socket", path)
	return s, nil
}

func (s *Server) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func handleConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(ioTimeout))
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Warn("Bad control request", "err", err)
		json.NewEncoder(conn).Encode(Fail(fmt.Errorf("decode request: %w", err)))
		return
	}
	log.Debug("Control request", "cmd", req.Cmd, "arg", req.Arg)

	reply := handler(ctx, req)

	conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Warn("Failed to write control reply", "err", err)
	}
}

// SendCommand sends one request and waits for the reply. A reply with
// Error set is returned as an error as well.
func SendCommand(ctx context.Context, path string, req Request) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}
	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	if reply.Error != "" {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}
