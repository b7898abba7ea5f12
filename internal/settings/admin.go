package settings

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/openworld-xr/interface/internal/httputil"
	"github.com/openworld-xr/interface/internal/monitoring"
	"github.com/openworld-xr/interface/internal/security"
)

// Backup writes a consistent copy of the database into dir and returns its
// path. label is folded into the file name.
func (s *Store) Backup(dir, label string) (string, error) {
	name := fmt.Sprintf("%s-%d.db", security.SanitizeFilename(label), time.Now().Unix())
	path := filepath.Join(dir, name)
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	if _, err := s.Exec("VACUUM INTO ?", path); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return path, nil
}

// AttachAdminRoutes mounts a tailsql console over the settings database, a
// JSON dump of the settings table and a gzipped backup download under
// /debug/.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "Settings DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("settings", "Stored settings as JSON", func(w http.ResponseWriter, r *http.Request) {
		all, err := s.All()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, all)
	})

	debug.Handle("backup", "Create and download a backup of the settings database", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := r.URL.Query().Get("label")
		if label == "" {
			label = "settings-backup"
		}
		path, err := s.Backup(os.TempDir(), label)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.Remove(path); err != nil {
				monitoring.Logf("failed to remove backup file: %v", err)
			}
		}()

		f, err := os.Open(path)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(path)))
		w.Header().Set("Content-Type", "application/gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, f); err != nil {
			monitoring.Logf("failed to stream backup: %v", err)
		}
	}))
	return nil
}
