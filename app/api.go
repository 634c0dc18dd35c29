package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib"
	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/lib/registry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Sugar().Infow("Starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Sugar().Errorw("HTTP server stopped", "err", err)
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service) http.Handler {
	ctrl := &controller{log, svc}

	// Leave room for a manual tick to finish.
	timeout := 60 * time.Second
	if tickTimeout := cfg.Poller.TickTimeout + 10*time.Second; tickTimeout > timeout {
		timeout = tickTimeout
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("ttquick", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/locations", func(r chi.Router) {
			r.Get("/", ctrl.searchLocations)
			r.Post("/sync", ctrl.syncLocations)
		})
		r.Post("/tick", ctrl.tick)
		r.Get("/status", ctrl.status)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", ctrl.onboardUser)
			r.Route("/{user_id}", func(r chi.Router) {
				r.Get("/", ctrl.getUser)
				r.Put("/settings", ctrl.updateSettings)
				r.Get("/locations", ctrl.listSubscribedLocations)
				r.Put("/locations/{location_id}", ctrl.subscribe)
				r.Delete("/locations/{location_id}", ctrl.unsubscribe)
				r.Get("/notifications", ctrl.listNotifications)
				r.Post("/notifications/{notification_id}/read", ctrl.markNotificationRead)
			})
		})
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

// fail maps service errors onto status codes.
func (ctrl *controller) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lib.ErrInvalidUserID), errors.Is(err, models.ErrInvalidLocationID):
		ctrl.reject(w, http.StatusBadRequest, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		ctrl.reject(w, http.StatusNotFound, errors.New("not found"))
	case errors.Is(err, registry.ErrLocationRetired):
		ctrl.reject(w, http.StatusConflict, registry.ErrLocationRetired)
	default:
		ctrl.log.Sugar().Errorw("Request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		ctrl.reject(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.log.Sugar().Errorw("Failed to encode response", "err", err)
		ctrl.reject(w, http.StatusInternalServerError, err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(b)
	}
}

func (ctrl *controller) searchLocations(w http.ResponseWriter, r *http.Request) {
	q := registry.Query{
		State: strings.TrimSpace(r.FormValue("state")),
		City:  strings.TrimSpace(r.FormValue("city")),
		Text:  strings.TrimSpace(r.FormValue("q")),
	}
	locs, err := ctrl.svc.SearchLocations(r.Context(), q)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.Location, LocationView](locs))
}

func (ctrl *controller) syncLocations(w http.ResponseWriter, r *http.Request) {
	stats, err := ctrl.svc.SyncLocations(r.Context())
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"upserted": stats.Upserted,
		"retired":  stats.Retired,
		"skipped":  stats.Skipped,
	})
}

func (ctrl *controller) tick(w http.ResponseWriter, r *http.Request) {
	report, err := ctrl.svc.Tick(r.Context())
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, report)
}

func (ctrl *controller) status(w http.ResponseWriter, r *http.Request) {
	check, err := ctrl.svc.LastCheck(r.Context())
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, SystemCheckView{}.From(*check))
}

func (ctrl *controller) onboardUser(w http.ResponseWriter, r *http.Request) {
	userID := r.FormValue("id")
	email := strings.TrimSpace(r.FormValue("email"))
	displayName := strings.TrimSpace(r.FormValue("display_name"))

	if email == "" {
		ctrl.reject(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}

	user, err := ctrl.svc.OnboardUser(r.Context(), userID, email, displayName)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, UserView{}.From(*user))
}

func (ctrl *controller) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := ctrl.svc.GetUser(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, UserView{}.From(*user))
}

func (ctrl *controller) updateSettings(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.FormValue("email_notifications"))
	if err != nil {
		ctrl.reject(w, http.StatusBadRequest, errors.New("email_notifications must be true or false"))
		return
	}

	user, err := ctrl.svc.UpdateNotificationSettings(r.Context(), chi.URLParam(r, "user_id"), enabled)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, UserView{}.From(*user))
}

func (ctrl *controller) listSubscribedLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := ctrl.svc.ListSubscribedLocations(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.Location, LocationView](locs))
}

func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	locationID, err := models.ParseLocationID(chi.URLParam(r, "location_id"))
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}

	sub, err := ctrl.svc.Subscribe(r.Context(), chi.URLParam(r, "user_id"), locationID)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, SubscriptionView{}.From(*sub))
}

func (ctrl *controller) unsubscribe(w http.ResponseWriter, r *http.Request) {
	locationID, err := models.ParseLocationID(chi.URLParam(r, "location_id"))
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}

	if err := ctrl.svc.Unsubscribe(r.Context(), chi.URLParam(r, "user_id"), locationID); err != nil {
		ctrl.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) listNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.FormValue("unread"))

	notifs, err := ctrl.svc.ListNotifications(r.Context(), chi.URLParam(r, "user_id"), unreadOnly)
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.Notification, NotificationView](notifs))
}

func (ctrl *controller) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	err := ctrl.svc.MarkNotificationRead(r.Context(), chi.URLParam(r, "user_id"), chi.URLParam(r, "notification_id"))
	if err != nil {
		ctrl.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
