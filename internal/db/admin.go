package db

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

	"github.com/banshee-data/beat.report/internal/httputil"
	"github.com/banshee-data/beat.report/internal/monitoring"
)

// AttachAdminRoutes mounts the SQL console, a backup download and the
// session browser on the mux's /debug/ tree.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
	} else {
		tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
			Label: "Beat DB",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))

	debug.HandleSilentFunc("beat-sessions", func(w http.ResponseWriter, r *http.Request) {
		limit, err := httputil.QueryInt(r, "limit", 50)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		sessions, err := db.Sessions(limit)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, sessions)
	})

	debug.HandleSilentFunc("beat-events", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("session")
		if id == "" {
			httputil.BadRequest(w, "missing session parameter")
			return
		}
		limit, err := httputil.QueryInt(r, "limit", 0)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		events, err := db.Events(id, limit)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, events)
	})
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("failed to stream backup: %v", err)
	}
}
