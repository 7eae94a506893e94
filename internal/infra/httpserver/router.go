package httpserver

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	appanalysis "github.com/bryanwahyu/biosight/internal/application/analysis"
	appconsent "github.com/bryanwahyu/biosight/internal/application/consent"
	apphistory "github.com/bryanwahyu/biosight/internal/application/history"
	"github.com/bryanwahyu/biosight/internal/domain/analysis"
	"github.com/bryanwahyu/biosight/internal/domain/inference"
	"github.com/bryanwahyu/biosight/internal/domain/specimen"
	"github.com/bryanwahyu/biosight/internal/middleware"
)

// multipartSlack covers form boundaries and headers on top of the file cap.
const multipartSlack = 1 << 20

const maxHistoryLimit = 50

// Options carries the HTTP-facing settings.
type Options struct {
	CookieName     string
	SessionTTL     time.Duration
	SecureCookies  bool
	TrustProxy     bool
	CORSOrigins    []string
	MaxUploadBytes int64
	IPRequestsPerS int
	IPBurst        int
}

// Deps are the services the router dispatches to.
type Deps struct {
	Analysis *appanalysis.Service
	Consent  *appconsent.Service
	History  *apphistory.Service
	Sessions scs.Store
	Checkers map[string]middleware.HealthChecker
	Log      logrus.FieldLogger
}

type Router struct {
	analysisSvc *appanalysis.Service
	consentSvc  *appconsent.Service
	historySvc  *apphistory.Service
	log         logrus.FieldLogger
	opts        Options
}

func NewRouter(d Deps, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = specimen.DefaultMaxBytes
	}
	if opts.CookieName == "" {
		opts.CookieName = "biosight_session"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	r := &Router{
		analysisSvc: d.Analysis,
		consentSvc:  d.Consent,
		historySvc:  d.History,
		log:         d.Log,
		opts:        opts,
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	if opts.TrustProxy {
		mux.Use(chimw.RealIP)
	}
	mux.Use(middleware.LoggingMiddleware(d.Log))
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.MetricsMiddleware)
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if opts.IPRequestsPerS > 0 {
		mux.Use(middleware.RateLimitMiddleware(middleware.NewIPRateLimiter(opts.IPRequestsPerS, opts.IPBurst)))
	}

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/ready", middleware.ReadinessHandler(d.Checkers))
	mux.Handle("/metrics", middleware.MetricsHandler())

	mux.Group(func(rt chi.Router) {
		sm := middleware.NewSessionManager(d.Sessions, middleware.SessionOptions{
			CookieName: opts.CookieName,
			TTL:        opts.SessionTTL,
			Secure:     opts.SecureCookies,
		}, d.Log)
		rt.Use(middleware.Session(sm, d.Log))

		rt.Get("/consent", r.wrap(r.handleConsentStatus))
		rt.Post("/consent", r.wrap(r.handleConsentAccept))
		// every method reaches the pipeline so consent and rate limit run first
		rt.HandleFunc("/process", r.wrap(r.handleProcess))
		rt.Get("/history", r.wrap(r.handleHistory))
		rt.Get("/images/{name}", r.wrap(r.handleImage))
	})

	mux.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteEnvelope(w, http.StatusMethodNotAllowed, false, "Method not allowed.", nil)
	})
	mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteEnvelope(w, http.StatusNotFound, false, "Not found.", nil)
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// errorResponses maps domain errors to status and user-facing message.
// Order matters: specific upload errors come before the generic one.
var errorResponses = []struct {
	err     error
	status  int
	message string
}{
	{analysis.ErrUnauthorized, http.StatusForbidden, "Unauthorized: Legal consent required."},
	{analysis.ErrRateLimited, http.StatusTooManyRequests, "Too many requests. Please wait before submitting again."},
	{analysis.ErrMethodNotAllowed, http.StatusMethodNotAllowed, "Method not allowed."},
	{specimen.ErrFileTooLarge, http.StatusBadRequest, "File too large. Maximum size is 10MB."},
	{specimen.ErrUnsupportedType, http.StatusBadRequest, "Invalid file type. Only JPG, PNG, and WebP allowed."},
	{specimen.ErrMissingFile, http.StatusBadRequest, "No image uploaded or upload error occurred."},
	{specimen.ErrInvalidUpload, http.StatusBadRequest, "Invalid upload."},
	{analysis.ErrStorageFailure, http.StatusInternalServerError, "Failed to store uploaded image."},
	{analysis.ErrUpstreamUnavailable, http.StatusBadGateway, "AI analysis service is currently unavailable."},
	{analysis.ErrHistoryUnavailable, http.StatusInternalServerError, "Failed to fetch history."},
	{analysis.ErrImageNotFound, http.StatusNotFound, "Image not found."},
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		for _, e := range errorResponses {
			if !errors.Is(err, e.err) {
				continue
			}
			var extra map[string]any
			switch {
			case errors.Is(err, analysis.ErrRateLimited):
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(r.cooldown().Seconds()))))
			case errors.Is(err, analysis.ErrUpstreamUnavailable):
				code := 0
				var ue *inference.UpstreamError
				if errors.As(err, &ue) {
					code = ue.StatusCode
				}
				extra = map[string]any{"code": code}
			}
			if e.status >= 500 {
				r.log.WithError(err).WithField("request_id", chimw.GetReqID(req.Context())).Error("request failed")
			}
			middleware.WriteEnvelope(w, e.status, false, e.message, extra)
			return
		}
		r.log.WithError(err).WithField("request_id", chimw.GetReqID(req.Context())).Error("unhandled error")
		middleware.WriteEnvelope(w, http.StatusInternalServerError, false, "Internal server error.", nil)
	}
}

// GET /consent
func (r *Router) handleConsentStatus(w http.ResponseWriter, req *http.Request) error {
	st := middleware.SessionFromContext(req.Context())
	accepted := r.consentSvc.CheckStatus(req.Context(), st)
	middleware.WriteEnvelope(w, http.StatusOK, true, "", map[string]any{"accepted": accepted})
	return nil
}

// POST /consent
func (r *Router) handleConsentAccept(w http.ResponseWriter, req *http.Request) error {
	st := middleware.SessionFromContext(req.Context())
	res := r.consentSvc.RecordConsent(req.Context(), st, remoteAddr(req))
	if !res.Success {
		middleware.WriteEnvelope(w, http.StatusServiceUnavailable, false, res.Message, nil)
		return nil
	}
	middleware.WriteEnvelope(w, http.StatusOK, true, res.Message, nil)
	return nil
}

// /process (POST multipart, field "image")
func (r *Router) handleProcess(w http.ResponseWriter, req *http.Request) error {
	st := middleware.SessionFromContext(req.Context())
	outcome := "error"
	defer func() { middleware.RecordAnalysis(outcome) }()

	if err := r.analysisSvc.Precheck(req.Context(), st); err != nil {
		outcome = outcomeOf(err)
		return err
	}
	if req.Method != http.MethodPost {
		outcome = "method_not_allowed"
		return analysis.ErrMethodNotAllowed
	}

	upload, err := r.readUpload(w, req)
	if err != nil {
		outcome = "invalid_upload"
		return err
	}

	res, err := r.analysisSvc.Submit(req.Context(), appanalysis.SubmitCommand{
		SessionHash: st.Hash,
		Upload:      upload,
	})
	if err != nil {
		outcome = outcomeOf(err)
		return err
	}
	outcome = "success"
	middleware.WriteEnvelope(w, http.StatusOK, true, "Analysis complete.", map[string]any{
		"interpretation": res.Interpretation,
		"image_id":       res.ImageID,
	})
	return nil
}

func (r *Router) readUpload(w http.ResponseWriter, req *http.Request) (specimen.Upload, error) {
	if req.ContentLength > r.opts.MaxUploadBytes+multipartSlack {
		return specimen.Upload{}, specimen.ErrFileTooLarge
	}
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUploadBytes+multipartSlack)
	if err := req.ParseMultipartForm(r.opts.MaxUploadBytes + multipartSlack); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return specimen.Upload{}, specimen.ErrFileTooLarge
		}
		return specimen.Upload{}, fmt.Errorf("%w: %v", specimen.ErrMissingFile, err)
	}
	defer req.MultipartForm.RemoveAll()

	file, hdr, err := req.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		file, hdr, err = req.FormFile("file")
	}
	if err != nil {
		return specimen.Upload{}, specimen.ErrMissingFile
	}
	defer file.Close()

	if hdr.Size > r.opts.MaxUploadBytes {
		return specimen.Upload{}, specimen.ErrFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, r.opts.MaxUploadBytes+1))
	if err != nil {
		return specimen.Upload{}, fmt.Errorf("%w: %v", specimen.ErrMissingFile, err)
	}
	return specimen.Upload{Filename: hdr.Filename, Size: hdr.Size, Data: data}, nil
}

// GET /history?limit=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	st := middleware.SessionFromContext(req.Context())
	limit := middleware.ValidateLimit(req.URL.Query().Get("limit"), apphistory.DefaultLimit, maxHistoryLimit)

	entries, err := r.historySvc.GetHistory(req.Context(), st.Hash, limit)
	if err != nil {
		return err
	}
	middleware.WriteEnvelope(w, http.StatusOK, true, "", map[string]any{"history": entries})
	return nil
}

// GET /images/{name}
func (r *Router) handleImage(w http.ResponseWriter, req *http.Request) error {
	st := middleware.SessionFromContext(req.Context())
	img, err := r.analysisSvc.OpenImage(req.Context(), st.Hash, chi.URLParam(req, "name"))
	if err != nil {
		return err
	}
	defer img.Body.Close()

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, err = io.Copy(w, img.Body)
	if err != nil {
		// headers already sent
		r.log.WithError(err).Warn("stream image")
	}
	return nil
}

func (r *Router) cooldown() time.Duration {
	if r.analysisSvc.Cooldown > 0 {
		return r.analysisSvc.Cooldown
	}
	return appanalysis.DefaultCooldown
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, analysis.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, analysis.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, specimen.ErrInvalidUpload):
		return "invalid_upload"
	case errors.Is(err, analysis.ErrStorageFailure):
		return "storage_failure"
	case errors.Is(err, analysis.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	}
	return "error"
}

func remoteAddr(req *http.Request) string {
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return host
	}
	return req.RemoteAddr
}
