package main

import (
	"net/http"
	"os"
	"time"

	"github.com/fiffu/ttquick/app"
	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib"
	"github.com/fiffu/ttquick/lib/notifier"
	"github.com/fiffu/ttquick/lib/poller"
	"github.com/fiffu/ttquick/lib/registry"
	"github.com/fiffu/ttquick/lib/slotapi"
	"github.com/fiffu/ttquick/senders"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	// Variables already set in the environment win over .env
	_ = godotenv.Load()

	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(slotapi.NewClient),
		fx.Provide(registry.NewRegistry),
		fx.Provide(notifier.NewNotifier),
		fx.Provide(poller.NewPoller),
		fx.Provide(lib.NewService),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*http.Server) {}),
	).Run()
}
