package app

import (
	"net/http"
	"time"

	"github.com/fiffu/ttquick/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewTransport is shared by the slot API client and the email senders.
func NewTransport(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) http.RoundTripper {
	return &transport{http.DefaultTransport, log, cfg.SlotAPI.UserAgent}
}

type transport struct {
	base      http.RoundTripper
	log       *zap.Logger
	userAgent string
}

func (tpt *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if tpt.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", tpt.userAgent)
	}

	start := time.Now()
	resp, err := tpt.base.RoundTrip(req)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		tpt.log.Sugar().Infow("Outbound request failed", "method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "elapsed_msecs", elapsed, "err", err)
		return nil, err
	}
	tpt.log.Sugar().Debugw("Outbound request", "method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "status", resp.StatusCode, "elapsed_msecs", elapsed)
	return resp, nil
}
