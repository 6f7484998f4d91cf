package main

import (
	"log/slog"

	"github.com/shaiso/socialwatch/internal/config"
	"github.com/shaiso/socialwatch/internal/transport"
)

// newSender создаёт транспорт по конфигурации и ограничивает темп отправки.
func newSender(cfg config.TransportConfig, logger *slog.Logger) (transport.Sender, error) {
	reg := transport.NewRegistry()
	reg.Register(transport.KindLog, func() (transport.Sender, error) {
		return transport.LogSender{Logger: logger.With("component", "transport")}, nil
	})
	reg.Register(transport.KindHTTP, func() (transport.Sender, error) {
		return transport.NewHTTPSender(cfg.URL, cfg.Token, cfg.Timeout), nil
	})
	reg.Register(transport.KindTelegram, func() (transport.Sender, error) {
		s, err := transport.NewTelegramSender(cfg.Token, cfg.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	sender, err := reg.New(cfg.Kind)
	if err != nil {
		return nil, err
	}
	return transport.NewRateLimited(sender, cfg.RatePerSecond), nil
}
