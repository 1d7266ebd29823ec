package config

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Role selects which repository shape a server holds.
type Role string

const (
	// RoleFilm is a flat repository of recipe folders with strategy metadata.
	RoleFilm Role = "film"
	// RoleScan is a variable-depth tree of class/wafer/lot/film/date folders.
	RoleScan Role = "scan"
)

// SourceKind selects the storage backend of a server.
type SourceKind string

const (
	SourceLocal   SourceKind = "local"
	SourceNetwork SourceKind = "network"
	SourceFTP     SourceKind = "ftp"
)

// Defaults applied when a server line omits a value.
const (
	DefaultUser       = "anonymous"
	DefaultPassword   = "anonymous"
	DefaultPort       = 21
	DefaultMaxDepth   = 15
	DefaultPoolSize   = 4
	DefaultTimeout    = 15 * time.Second
	DefaultOpDeadline = 25 * time.Second
	DefaultFilmRoot   = "/Film List"
	DefaultScanRoot   = "/auto scan data"
	DefaultPrefix     = "as"
)

// ErrInvalidServerList is wrapped by every parse error.
var ErrInvalidServerList = errors.New("invalid server list")

// ServerConfig identifies one data source. It is not modified after load.
type ServerConfig struct {
	Name       string            `json:"name"`
	Address    string            `json:"address"`
	Port       int               `json:"port"`
	MaxDepth   int               `json:"maxDepth"`
	SaveLevel  int               `json:"saveLevel"`
	User       string            `json:"-"`
	Password   string            `json:"-"`
	Role       Role              `json:"role"`
	Group      string            `json:"group"`
	Root       string            `json:"root"`
	Prefix     string            `json:"prefix"`
	Source     SourceKind        `json:"source"`
	PoolSize   int               `json:"poolSize"`
	Timeout    time.Duration     `json:"-"`
	OpDeadline time.Duration     `json:"-"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// Addr returns host:port for FTP dialing.
func (c ServerConfig) Addr() string {
	if strings.Contains(c.Address, ":") {
		return c.Address
	}
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// IsFilesystem reports whether the server is read through the local
// filesystem API (local disk or a mounted network share).
func (c ServerConfig) IsFilesystem() bool {
	return c.Source == SourceLocal || c.Source == SourceNetwork
}

// ServerList is the ordered set of configured servers.
type ServerList []ServerConfig

// ByName returns the server with the given name.
func (l ServerList) ByName(name string) (ServerConfig, bool) {
	for _, s := range l {
		if s.Name == name {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// ByRole returns the servers with the given role, in configuration order.
func (l ServerList) ByRole(role Role) ServerList {
	var out ServerList
	for _, s := range l {
		if s.Role == role {
			out = append(out, s)
		}
	}
	return out
}

// Names returns server names in configuration order.
func (l ServerList) Names() []string {
	names := make([]string, len(l))
	for i, s := range l {
		names[i] = s.Name
	}
	return names
}

// LoadServerList reads and parses a server file.
func LoadServerList(path string) (ServerList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open server file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseServerList(f)
}

// ParseServerList parses server lines from r.
func ParseServerList(r io.Reader) (ServerList, error) {
	var out ServerList
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		cfg, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidServerList, lineNo, err)
		}
		if prev, ok := seen[cfg.Name]; ok {
			return nil, fmt.Errorf("%w: line %d: server %q already defined on line %d",
				ErrInvalidServerList, lineNo, cfg.Name, prev)
		}
		seen[cfg.Name] = lineNo
		out = append(out, cfg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read server file: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no servers defined", ErrInvalidServerList)
	}
	return out, nil
}

func parseLine(line string) (ServerConfig, error) {
	rd := csv.NewReader(strings.NewReader(line))
	rd.TrimLeadingSpace = true
	rd.FieldsPerRecord = -1
	record, err := rd.Read()
	if err != nil {
		return ServerConfig{}, fmt.Errorf("malformed line: %w", err)
	}

	fields := make([]string, 0, len(record))
	for _, f := range record {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) < 4 {
		return ServerConfig{}, errors.New("need at least 4 columns (name, address, max_depth, save_level)")
	}

	maxDepth, err := strconv.Atoi(fields[2])
	if err != nil {
		return ServerConfig{}, fmt.Errorf("max_depth %q is not an integer", fields[2])
	}
	saveLevel, err := strconv.Atoi(fields[3])
	if err != nil {
		return ServerConfig{}, fmt.Errorf("save_level %q is not an integer", fields[3])
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	cfg := ServerConfig{
		Name:      fields[0],
		Address:   fields[1],
		MaxDepth:  maxDepth,
		SaveLevel: saveLevel,
		User:      DefaultUser,
		Password:  DefaultPassword,
	}

	// Credentials are the two positional columns after save_level. A user
	// name never contains '=', a password may.
	rest := fields[4:]
	if len(rest) >= 2 && !strings.Contains(rest[0], "=") {
		cfg.User, cfg.Password = rest[0], rest[1]
		rest = rest[2:]
	}

	meta := make(map[string]string, len(rest))
	for _, tok := range rest {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return ServerConfig{}, fmt.Errorf("metadata token %q must be key=value", tok)
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if _, dup := meta[k]; dup {
			return ServerConfig{}, fmt.Errorf("duplicate metadata key %q", k)
		}
		meta[k] = strings.TrimSpace(v)
	}
	cfg.Meta = meta

	if err := applyMeta(&cfg, meta); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func applyMeta(cfg *ServerConfig, meta map[string]string) error {
	cfg.Role = RoleFilm
	if v := strings.ToLower(meta["role"]); v != "" {
		switch Role(v) {
		case RoleFilm, RoleScan:
			cfg.Role = Role(v)
		default:
			return fmt.Errorf("role must be film or scan, got %q", v)
		}
	}

	cfg.Group = meta["group"]
	if cfg.Group == "" {
		cfg.Group = cfg.Name
	}

	cfg.Root = meta["root"]
	if cfg.Root == "" {
		if cfg.Role == RoleFilm {
			cfg.Root = DefaultFilmRoot
		} else {
			cfg.Root = DefaultScanRoot
		}
	}

	cfg.Prefix = meta["prefix"]
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	source, err := parseSource(meta)
	if err != nil {
		return err
	}
	cfg.Source = source

	cfg.Port = intOr(meta["port"], DefaultPort)
	cfg.PoolSize = intOr(meta["pool_size"], DefaultPoolSize)
	cfg.Timeout = durationOr(meta["timeout"], DefaultTimeout)
	cfg.OpDeadline = durationOr(meta["op_deadline"], DefaultOpDeadline)
	return nil
}

func parseSource(meta map[string]string) (SourceKind, error) {
	if v, ok := meta["source"]; ok {
		switch strings.ToLower(v) {
		case "local", "filesystem", "fs":
			return SourceLocal, nil
		case "network", "smb", "unc":
			return SourceNetwork, nil
		case "ftp", "":
			return SourceFTP, nil
		default:
			return "", fmt.Errorf("source must be local, network or ftp, got %q", v)
		}
	}
	// Legacy boolean flag.
	switch strings.ToLower(meta["local"]) {
	case "1", "true", "yes", "on":
		return SourceLocal, nil
	}
	return SourceFTP, nil
}

func intOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}

// durationOr accepts Go durations ("30s") or plain seconds ("15", "2.5").
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return def
}
