package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// NVRAM names holding the socket table.
const (
	SocketNumberName = "ezcfg_socket.number"
	socketPrefix     = "ezcfg_socket."
)

// Socket field names accepted in insertSocket/removeSocket requests.
const (
	SocketFieldDomain   = "domain"
	SocketFieldType     = "type"
	SocketFieldProtocol = "protocol"
	SocketFieldAddress  = "address"
)

var socketFields = []string{SocketFieldDomain, SocketFieldType, SocketFieldProtocol, SocketFieldAddress}

// Socket is a listening socket recorded in NVRAM.
type Socket struct {
	Domain   string `json:"domain"`   // inet, inet6, unix
	Type     string `json:"type"`     // stream
	Protocol string `json:"protocol"` // http, soap-http, igrs
	Address  string `json:"address"`
}

// Network returns the Go network name for the socket domain.
func (s Socket) Network() string {
	switch s.Domain {
	case "inet":
		return "tcp4"
	case "inet6":
		return "tcp6"
	default:
		return s.Domain
	}
}

// ParseSocket builds a Socket from name/value entries. Every field must be
// present exactly once.
func ParseSocket(entries []Entry) (Socket, error) {
	var s Socket
	seen := map[string]bool{}
	for _, e := range entries {
		if seen[e.Name] {
			return Socket{}, fmt.Errorf("%w: duplicate field %q", ErrInvalidSocket, e.Name)
		}
		seen[e.Name] = true
		switch e.Name {
		case SocketFieldDomain:
			s.Domain = e.Value
		case SocketFieldType:
			s.Type = e.Value
		case SocketFieldProtocol:
			s.Protocol = e.Value
		case SocketFieldAddress:
			s.Address = e.Value
		default:
			return Socket{}, fmt.Errorf("%w: unknown field %q", ErrInvalidSocket, e.Name)
		}
	}

	switch s.Domain {
	case "inet", "inet6", "unix":
	default:
		return Socket{}, fmt.Errorf("%w: domain %q", ErrInvalidSocket, s.Domain)
	}
	if s.Type != "stream" {
		return Socket{}, fmt.Errorf("%w: type %q", ErrInvalidSocket, s.Type)
	}
	switch s.Protocol {
	case "http", "soap-http", "igrs":
	default:
		return Socket{}, fmt.Errorf("%w: protocol %q", ErrInvalidSocket, s.Protocol)
	}
	if s.Address == "" {
		return Socket{}, fmt.Errorf("%w: empty address", ErrInvalidSocket)
	}
	return s, nil
}

func socketFieldName(i int, field string) string {
	return socketPrefix + strconv.Itoa(i) + "." + field
}

func (s Socket) field(name string) string {
	switch name {
	case SocketFieldDomain:
		return s.Domain
	case SocketFieldType:
		return s.Type
	case SocketFieldProtocol:
		return s.Protocol
	default:
		return s.Address
	}
}

func socketCount(ctx context.Context, store Store) (int, error) {
	v, err := store.Get(ctx, SocketNumberName)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad %s %q", ErrInvalidSocket, SocketNumberName, v)
	}
	return n, nil
}

// Sockets returns the socket table stored in NVRAM.
func Sockets(ctx context.Context, store Store) ([]Socket, error) {
	n, err := socketCount(ctx, store)
	if err != nil {
		return nil, err
	}
	out := make([]Socket, 0, n)
	for i := 0; i < n; i++ {
		var s Socket
		for _, f := range socketFields {
			v, err := store.Get(ctx, socketFieldName(i, f))
			if err != nil {
				return nil, fmt.Errorf("socket %d %s: %w", i, f, err)
			}
			switch f {
			case SocketFieldDomain:
				s.Domain = v
			case SocketFieldType:
				s.Type = v
			case SocketFieldProtocol:
				s.Protocol = v
			case SocketFieldAddress:
				s.Address = v
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// InsertSocket appends the socket described by entries to the table kept in
// store. Callers serialize concurrent socket table updates.
func InsertSocket(ctx context.Context, store Store, entries []Entry) (Socket, error) {
	sock, err := ParseSocket(entries)
	if err != nil {
		return Socket{}, err
	}
	existing, err := Sockets(ctx, store)
	if err != nil {
		return Socket{}, err
	}
	for _, s := range existing {
		if s == sock {
			return Socket{}, ErrSocketExists
		}
	}

	n := len(existing)
	for _, f := range socketFields {
		if err := store.Set(ctx, socketFieldName(n, f), sock.field(f)); err != nil {
			return Socket{}, err
		}
	}
	if err := store.Set(ctx, SocketNumberName, strconv.Itoa(n+1)); err != nil {
		return Socket{}, err
	}
	return sock, nil
}

// RemoveSocket deletes the socket described by entries and compacts the
// table. It returns ErrNotFound if no such socket is recorded.
func RemoveSocket(ctx context.Context, store Store, entries []Entry) (Socket, error) {
	sock, err := ParseSocket(entries)
	if err != nil {
		return Socket{}, err
	}
	existing, err := Sockets(ctx, store)
	if err != nil {
		return Socket{}, err
	}

	at := -1
	for i, s := range existing {
		if s == sock {
			at = i
			break
		}
	}
	if at < 0 {
		return Socket{}, ErrNotFound
	}

	// Shift later records down one slot
	for i := at + 1; i < len(existing); i++ {
		for _, f := range socketFields {
			if err := store.Set(ctx, socketFieldName(i-1, f), existing[i].field(f)); err != nil {
				return Socket{}, err
			}
		}
	}
	last := len(existing) - 1
	for _, f := range socketFields {
		if err := store.Unset(ctx, socketFieldName(last, f)); err != nil && !errors.Is(err, ErrNotFound) {
			return Socket{}, err
		}
	}

	if last == 0 {
		err = store.Unset(ctx, SocketNumberName)
	} else {
		err = store.Set(ctx, SocketNumberName, strconv.Itoa(last))
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Socket{}, err
	}
	return sock, nil
}
