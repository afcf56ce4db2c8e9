package server

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
)

// DefaultPort is the IMAPS port used when a server definition has none.
const DefaultPort = 993

//go:embed servers.json
var defaultServers []byte

// Server describes a webmail IMAP endpoint.
type Server struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// New returns a server on the default port.
func New(name, host string) Server {
	return Server{Name: name, Host: host, Port: DefaultPort}
}

// Addr is the host:port pair to dial.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s Server) String() string {
	return fmt.Sprintf("Server %s [%s:%d]", s.Name, s.Host, s.Port)
}

func (s *Server) UnmarshalJSON(data []byte) error {
	type plain Server
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Name == "" || p.Host == "" {
		return fmt.Errorf("server definition needs a name and a host: %s", data)
	}
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	*s = Server(p)
	return nil
}

// Servers is the ordered list of known servers.
type Servers struct {
	list []Server
}

// Default returns the servers shipped with the binary.
func Default() *Servers {
	s, err := Load(bytes.NewReader(defaultServers))
	if err != nil {
		panic(fmt.Sprintf("embedded servers.json: %v", err))
	}
	return s
}

// Load reads a JSON array of server definitions.
func Load(r io.Reader) (*Servers, error) {
	var list []Server
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode servers: %w", err)
	}
	return &Servers{list: list}, nil
}

// LoadFile reads server definitions from path.
func LoadFile(path string) (*Servers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (s *Servers) Add(srv Server) {
	s.list = append(s.list, srv)
}

// Get looks a server up by name.
func (s *Servers) Get(name string) (Server, bool) {
	for _, srv := range s.list {
		if srv.Name == name {
			return srv, true
		}
	}
	return Server{}, false
}

// Names lists the server names in registration order.
func (s *Servers) Names() []string {
	names := make([]string, 0, len(s.list))
	for _, srv := range s.list {
		names = append(names, srv.Name)
	}
	return names
}

// Remove drops the first server equal to srv.
func (s *Servers) Remove(srv Server) {
	for i, cur := range s.list {
		if cur == srv {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}

func (s *Servers) RemoveByName(name string) {
	if srv, ok := s.Get(name); ok {
		s.Remove(srv)
	}
}
