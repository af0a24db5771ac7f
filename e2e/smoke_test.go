//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	_ "github.com/mattn/go-sqlite3"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"climate-server/internal/dataset"
	"climate-server/internal/migrate"
)

const repoRootRel = ".."          // relative to ./e2e
const mainPkgRel = "./cmd/server" // server main package

func TestSmoke_ClimateAPI(t *testing.T) {
	repoRoot := repoRootPath(t)

	// Start SQLite "service" container that creates a DB file in a host temp dir
	sqlitePath := startSQLite(t)
	seed(t, sqlitePath)

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"HTTP_ADDR="+addr,

		// DB envs read by internal/config
		"DB_DRIVER=sqlite3",
		"SQLITE_PATH="+sqlitePath,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 2 * time.Second}
	url := "http://" + addr + "/healthz"

	waitForOK(t, client, url, 5*time.Second)

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body.status=%q want=%q", body["status"], "ok")
	}

	base := "http://" + addr
	var stations []string
	getJSON(t, client, base+"/api/v1.0/stations", http.StatusOK, &stations)
	if strings.Join(stations, ",") != "USC00513117,USC00519397" {
		t.Fatalf("stations=%v", stations)
	}

	var precipitation map[string]*float64
	getJSON(t, client, base+"/api/v1.0/precipitation", http.StatusOK, &precipitation)
	if _, ok := precipitation["2016-08-22"]; ok {
		t.Fatalf("precipitation contains date outside the window: %v", precipitation)
	}
	if len(precipitation) != 3 || precipitation["2017-08-23"] != nil {
		t.Fatalf("precipitation=%v want 3 dates with null on 2017-08-23", precipitation)
	}

	var tobs [][2]any
	getJSON(t, client, base+"/api/v1.0/tobs", http.StatusOK, &tobs)
	if len(tobs) != 2 {
		t.Fatalf("tobs=%v want 2 observations of USC00519397", tobs)
	}

	var stats map[string]any
	getJSON(t, client, base+"/api/v1.0/2016-08-23/2017-08-23", http.StatusOK, &stats)
	if stats["TMIN"] != 60.0 || stats["TMAX"] != 80.0 || stats["TAVG"] != 70.0 {
		t.Fatalf("stats=%v want 60/80/70", stats)
	}

	var apiErr map[string]any
	getJSON(t, client, base+"/api/v1.0/2017-13-01", http.StatusBadRequest, &apiErr)

	stopServer(t, cmd)
}

// seed loads a small dataset: USC00519397 is the most active station and the
// latest date is 2017-08-23.
func seed(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	stations := "station,name,latitude,longitude,elevation\n" +
		"USC00519397,\"WAIKIKI 717.2, HI US\",21.2716,-157.8168,3.0\n" +
		"USC00513117,\"KANEOHE 838.1, HI US\",21.4234,-157.8015,14.6\n"
	measurements := "station,date,prcp,tobs\n" +
		"USC00519397,2016-08-22,1.00,90\n" +
		"USC00519397,2016-08-23,0.10,60\n" +
		"USC00519397,2017-08-23,,80\n" +
		"USC00513117,2017-01-01,0.20,70\n"
	if _, err := dataset.Import(ctx, db, strings.NewReader(stations), strings.NewReader(measurements), dataset.Options{}); err != nil {
		t.Fatalf("import: %v", err)
	}
}

func getJSON(t *testing.T, client *http.Client, url string, wantStatus int, v any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status=%d want=%d", url, resp.StatusCode, wantStatus)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("GET %s missing X-Request-ID", url)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s decode json: %v", url, err)
	}
}

func startSQLite(t *testing.T) string {
	t.Helper()

	// Host temp dir that will contain hawaii.sqlite
	hostDir := t.TempDir()
	dbPath := filepath.Join(hostDir, "hawaii.sqlite")

	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:      "nouchka/sqlite3:latest",
		WorkingDir: "/data",
		// Create the DB file with a rollback journal (the server opens it
		// mode=ro) and keep the container alive
		Entrypoint: []string{"sh", "-c"},
		Cmd: []string{
			"sqlite3 /data/hawaii.sqlite \"PRAGMA user_version=1;\" && " +
				"chmod 666 /data/hawaii.sqlite && " +
				"echo 'sqlite ready' && " +
				"tail -f /dev/null",
		},

		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Binds = append(hc.Binds, hostDir+":/data")
		},
		WaitingFor: wait.ForLog("sqlite ready").WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start sqlite container: %v", err)
	}

	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	// Ensure file exists on host (container created it in the bind mount)
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("sqlite db file not created: %v", err)
	}

	return dbPath
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}

	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	tmp := t.TempDir()
	out := filepath.Join(tmp, "climate-server")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}

	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
