package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseServerList(t *testing.T) {
	t.Parallel()

	input := `# film and scan servers
FILM01,10.0.0.1,5,2,ftpuser,secret,role=film,pool_size=6
SCAN01,10.0.0.2,12,3,role=scan,source=local,root=/data/scan   # trailing comment

SCAN02,nas01,0,1,role=scan,source=network,group=fab2,timeout=30s,op_deadline=40
`
	servers, err := ParseServerList(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseServerList failed: %v", err)
	}
	if len(servers) != 3 {
		t.Fatalf("Expected 3 servers, got %d", len(servers))
	}

	film := servers[0]
	if film.Role != RoleFilm || film.User != "ftpuser" || film.Password != "secret" {
		t.Errorf("Unexpected film server: %+v", film)
	}
	if film.PoolSize != 6 {
		t.Errorf("Expected PoolSize=6, got %d", film.PoolSize)
	}
	if film.Root != DefaultFilmRoot || film.Prefix != DefaultPrefix {
		t.Errorf("Expected default root/prefix, got %q/%q", film.Root, film.Prefix)
	}
	if film.Source != SourceFTP {
		t.Errorf("Expected ftp source, got %s", film.Source)
	}
	if film.Addr() != "10.0.0.1:21" {
		t.Errorf("Expected addr 10.0.0.1:21, got %s", film.Addr())
	}

	scan := servers[1]
	if scan.Role != RoleScan || scan.Source != SourceLocal || scan.Root != "/data/scan" {
		t.Errorf("Unexpected scan server: %+v", scan)
	}
	if scan.User != DefaultUser {
		t.Errorf("Expected default user, got %q", scan.User)
	}
	if scan.PoolSize != DefaultPoolSize {
		t.Errorf("Expected default PoolSize=%d, got %d", DefaultPoolSize, scan.PoolSize)
	}
	if !scan.IsFilesystem() {
		t.Error("Expected local source to be a filesystem source")
	}

	nas := servers[2]
	if nas.MaxDepth != DefaultMaxDepth {
		t.Errorf("Expected MaxDepth=%d for 0, got %d", DefaultMaxDepth, nas.MaxDepth)
	}
	if nas.Root != DefaultScanRoot {
		t.Errorf("Expected default scan root, got %q", nas.Root)
	}
	if nas.Group != "fab2" {
		t.Errorf("Expected group fab2, got %q", nas.Group)
	}
	if nas.Timeout != 30*time.Second {
		t.Errorf("Expected Timeout=30s, got %v", nas.Timeout)
	}
	if nas.OpDeadline != 40*time.Second {
		t.Errorf("Expected OpDeadline=40s, got %v", nas.OpDeadline)
	}
	if nas.Source != SourceNetwork {
		t.Errorf("Expected network source, got %s", nas.Source)
	}
}

func TestParseServerListErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty file", input: "# nothing here\n\n"},
		{name: "too few columns", input: "A,host,5\n"},
		{name: "non-integer depth", input: "A,host,deep,1\n"},
		{name: "non-integer save level", input: "A,host,5,x\n"},
		{name: "bad meta token", input: "A,host,5,1,u,p,role\n"},
		{name: "duplicate meta key", input: "A,host,5,1,role=film,ROLE=scan\n"},
		{name: "invalid role", input: "A,host,5,1,role=video\n"},
		{name: "invalid source", input: "A,host,5,1,source=s3\n"},
		{name: "duplicate server", input: "A,host,5,1\nA,other,5,1\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseServerList(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidServerList) {
				t.Errorf("Expected ErrInvalidServerList, got %v", err)
			}
		})
	}
}

func TestParseServerListCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		user     string
		password string
		role     Role
	}{
		{name: "padded password", line: "SCAN01,10.0.0.5,15,0,ftpuser,c2VjcmV0=,role=scan", user: "ftpuser", password: "c2VjcmV0=", role: RoleScan},
		{name: "password with key shape", line: "F1,h,5,1,ops,role=x,role=film", user: "ops", password: "role=x", role: RoleFilm},
		{name: "credentials only", line: "F1,h,5,1,ops,pw", user: "ops", password: "pw", role: RoleFilm},
		{name: "no credentials", line: "F1,h,5,1,custom=1,role=scan", user: DefaultUser, password: DefaultPassword, role: RoleScan},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			servers, err := ParseServerList(strings.NewReader(tt.line + "\n"))
			if err != nil {
				t.Fatalf("ParseServerList failed: %v", err)
			}
			s := servers[0]
			if s.User != tt.user || s.Password != tt.password || s.Role != tt.role {
				t.Errorf("got user=%q password=%q role=%s, want %q/%q/%s",
					s.User, s.Password, s.Role, tt.user, tt.password, tt.role)
			}
		})
	}
}

func TestParseServerListLegacyLocalFlag(t *testing.T) {
	t.Parallel()

	servers, err := ParseServerList(strings.NewReader("\ufeffA,host,5,1,local=yes,custom=1\n"))
	if err != nil {
		t.Fatalf("ParseServerList failed: %v", err)
	}
	if servers[0].Name != "A" {
		t.Errorf("Expected BOM to be stripped, got name %q", servers[0].Name)
	}
	if servers[0].Source != SourceLocal {
		t.Errorf("Expected local source, got %s", servers[0].Source)
	}
	if servers[0].Meta["custom"] != "1" {
		t.Errorf("Expected unknown meta key preserved, got %v", servers[0].Meta)
	}
}

func TestServerListLookups(t *testing.T) {
	t.Parallel()

	list := ServerList{
		{Name: "F1", Role: RoleFilm},
		{Name: "S1", Role: RoleScan},
		{Name: "F2", Role: RoleFilm},
	}

	if s, ok := list.ByName("S1"); !ok || s.Role != RoleScan {
		t.Errorf("ByName(S1) = %+v, %v", s, ok)
	}
	if _, ok := list.ByName("missing"); ok {
		t.Error("Expected ByName(missing) to fail")
	}

	films := list.ByRole(RoleFilm)
	if len(films) != 2 || films[0].Name != "F1" || films[1].Name != "F2" {
		t.Errorf("ByRole(film) returned %v", films.Names())
	}
}

func TestLoadServerList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "servers.txt")
	if err := os.WriteFile(path, []byte("A,host,5,1,role=scan\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	servers, err := LoadServerList(path)
	if err != nil {
		t.Fatalf("LoadServerList failed: %v", err)
	}
	if len(servers) != 1 || servers[0].Role != RoleScan {
		t.Errorf("Unexpected servers: %+v", servers)
	}

	if _, err := LoadServerList(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}
