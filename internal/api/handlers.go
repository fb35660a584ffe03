package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/webflasher/firmware-server/internal/domain"
	"github.com/webflasher/firmware-server/internal/firmware"
	"github.com/webflasher/firmware-server/internal/gitstore"
	"github.com/webflasher/firmware-server/internal/middleware"
	"github.com/webflasher/firmware-server/internal/sync"
)

// Build information (set at compile time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// RootMessage is returned by the liveness endpoint
const RootMessage = "ESP Web Flasher API (Dynamic Manifest) is running."

// Handlers provides HTTP handlers for the API
type Handlers struct {
	catalog *firmware.Catalog
	mirror  *gitstore.Store
	syncMgr *sync.Manager
	logger  *slog.Logger
}

// NewHandlers creates a new handlers instance. mirror and syncMgr are nil
// when the firmware root is not backed by a git repository.
func NewHandlers(catalog *firmware.Catalog, mirror *gitstore.Store, syncMgr *sync.Manager, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		catalog: catalog,
		mirror:  mirror,
		syncMgr: syncMgr,
		logger:  logger,
	}
}

// Root returns the liveness message
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.RootResponse{Message: RootMessage})
}

// Health returns health check information
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	chips, err := h.catalog.ListChips(r.Context())
	if err != nil {
		h.logger.Warn("failed to list chips for health check", "error", err)
		status = "degraded"
	}

	resp := domain.HealthResponse{
		Status:       status,
		FirmwareRoot: h.catalog.Root(),
		ChipCount:    len(chips),
		CacheStats:   h.catalog.CacheStats(),
	}

	if h.mirror != nil {
		resp.Mirror = &domain.MirrorInfo{
			RepoURL:   h.mirror.RepoURL(),
			Branch:    h.mirror.Branch(),
			CommitSHA: h.mirror.CurrentCommit(),
		}
		if h.syncMgr != nil {
			st := h.syncMgr.Status()
			if !st.LastSync.IsZero() {
				resp.Mirror.LastSyncAt = st.LastSync.Format(time.RFC3339)
			}
			resp.Mirror.LastError = st.LastError
			resp.Mirror.Syncing = st.Syncing
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ping returns a simple pong response
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.PingResponse{Pong: true})
}

// Version returns build version information
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	version := Version
	commit := GitCommit
	buildTime := BuildTime

	// Try to get from build info if not set
	if info, ok := debug.ReadBuildInfo(); ok && version == "dev" {
		version = info.Main.Version
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildTime = setting.Value
			}
		}
	}

	writeJSON(w, http.StatusOK, domain.VersionResponse{
		Version:   version,
		GitCommit: commit,
		BuildTime: buildTime,
	})
}

// ListChips returns the chip types that have firmware available
func (h *Handlers) ListChips(w http.ResponseWriter, r *http.Request) {
	chips, err := h.catalog.ListChips(r.Context())
	if err != nil {
		h.writeFirmwareError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chips)
}

// GetManifest returns the address-ordered flashing plan for a chip type
func (h *Handlers) GetManifest(w http.ResponseWriter, r *http.Request) {
	chipType := urlParam(r, "chipType")

	manifest, err := h.catalog.BuildManifest(r.Context(), chipType)
	if err != nil {
		h.writeFirmwareError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, manifest)
}

// DownloadFile streams a firmware file as an attachment
func (h *Handlers) DownloadFile(w http.ResponseWriter, r *http.Request) {
	chipType := urlParam(r, "chipType")
	filePath := urlParam(r, "*")

	f, info, err := h.catalog.OpenFile(r.Context(), chipType, filePath)
	if err != nil {
		h.writeFirmwareError(w, r, err)
		return
	}
	defer f.Close()

	name := path.Base(filePath)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

	// HEAD and Range requests send less than the whole file
	ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
	http.ServeContent(ww, r, name, info.ModTime(), f)
	middleware.FirmwareDownloadBytes.Add(float64(ww.BytesWritten()))
}

// NotFound returns a JSON 404 for unknown routes
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not Found", "No route for "+r.URL.Path)
}

// MethodNotAllowed returns a JSON 405
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported for "+r.URL.Path)
}

func (h *Handlers) writeFirmwareError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, firmware.ErrNotFound):
		h.logger.Debug("firmware not found", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, firmware.ErrInvalidPath):
		h.logger.Warn("rejected firmware path", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, firmware.ErrInvalidManifest):
		h.logger.Error("invalid firmware manifest", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
	case r.Context().Err() != nil:
		h.logger.Debug("request cancelled", "path", r.URL.Path, "error", err)
	default:
		h.logger.Error("firmware request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to read firmware")
	}
}

// Helper functions

// urlParam returns a decoded route parameter. chi routes on RawPath when the
// request carried escapes that differ from the default encoding; only then
// is the parameter still escaped.
func urlParam(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return value
	}
	if decoded, err := url.PathUnescape(value); err == nil {
		return decoded
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title, detail string) {
	resp := domain.ErrorResponse{
		Status: status,
		Title:  title,
		Detail: detail,
	}
	writeJSON(w, status, resp)
}
