package provision

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tappbx/tappbx/internal/database"
	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/settings"
)

// AuthFailureSink records failed authentication attempts. The login
// throttle satisfies it.
type AuthFailureSink interface {
	Fail(ctx context.Context, address string)
}

// Deps collects the stores and services the responder consults.
type Deps struct {
	Domains  database.DomainRepository
	Users    database.UserRepository
	Devices  database.DeviceRepository
	Resolver *settings.Resolver
	Renderer *Renderer
	Throttle AuthFailureSink
}

// Server answers device configuration requests.
type Server struct {
	router *chi.Mux
	deps   Deps
	logger *slog.Logger
}

// NewServer creates the responder with all handlers mounted.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		logger: logger.With("subsystem", "provision"),
	}
	s.router.Get("/{tenant}/{file}", s.handleFile)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func peerAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func contentTypeFor(file string) string {
	switch strings.ToLower(path.Ext(file)) {
	case ".cfg", ".xml", ".txt", ".ini":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, realm string) {
	s.deps.Throttle.Fail(r.Context(), peerAddress(r))
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// authenticate checks HTTP Basic credentials against the tenant's users.
func (s *Server) authenticate(r *http.Request, dom *models.Domain) bool {
	username, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	user, err := s.deps.Users.GetByUsername(r.Context(), dom.ID, username)
	if err != nil || user == nil || !user.Enabled {
		return false
	}
	match, err := database.CheckPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("checking provision password", "user", username, "err", err)
		return false
	}
	return match
}

// deviceFor resolves the device from the URL file name or the User-Agent
// header, following one alternate-identity hop.
func (s *Server) deviceFor(ctx context.Context, domainID, file, userAgent string) (*models.Device, error) {
	base := strings.TrimSuffix(file, path.Ext(file))
	mac, err := NormalizeMAC(base)
	if err != nil {
		mac, err = MACFromUserAgent(userAgent)
		if err != nil {
			return nil, nil
		}
	}

	dev, err := s.deps.Devices.GetByMAC(ctx, domainID, mac)
	if err != nil || dev == nil {
		return dev, err
	}
	if dev.AltID != nil {
		alt, err := s.deps.Devices.GetByID(ctx, *dev.AltID)
		if err != nil {
			return nil, err
		}
		if alt != nil {
			return alt, nil
		}
	}
	return dev, nil
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantName := chi.URLParam(r, "tenant")
	file := chi.URLParam(r, "file")

	dom, err := s.deps.Domains.GetByName(ctx, tenantName)
	if err != nil {
		s.logger.Error("tenant lookup", "tenant", tenantName, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if dom == nil || !dom.Enabled {
		http.NotFound(w, r)
		return
	}

	realm := s.deps.Resolver.ProvisionRealm(ctx, settings.ForDomain(dom.ID))
	if !s.authenticate(r, dom) {
		s.unauthorized(w, r, realm)
		return
	}

	dev, err := s.deviceFor(ctx, dom.ID, file, r.UserAgent())
	if err != nil {
		s.logger.Error("device lookup", "tenant", tenantName, "file", file, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if dev == nil || !dev.Enabled {
		http.NotFound(w, r)
		return
	}

	body, err := s.deps.Renderer.Render(ctx, dev)
	if err != nil {
		s.logger.Error("rendering device config", "device", dev.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if err := s.deps.Devices.MarkProvisioned(ctx, dev.ID, scheme, peerAddress(r), time.Now()); err != nil {
		s.logger.Error("stamping provision state", "device", dev.ID, "err", err)
	}

	w.Header().Set("Content-Type", contentTypeFor(file))
	w.Write([]byte(body))
}
