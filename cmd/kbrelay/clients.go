package main

import (
	"github.com/quailyquaily/kbrelay/internal/relayconfig"
	"github.com/quailyquaily/kbrelay/providers/openweb"
)

func newKBClient(cfg relayconfig.Config) (*openweb.Client, error) {
	return openweb.New(openweb.Options{
		HTTPClient: openweb.NewHTTPClient(),
		URL:        cfg.APIURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout(),
	})
}
