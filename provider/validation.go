package provider

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"oscar/model"
)

// PingProviderMsg is sent when a provider ping completes
type PingProviderMsg struct {
	ProviderID string
	Model      string
	Err        error
}

// PingProvider checks that a provider is reachable without blocking the UI.
func PingProvider(providerID string, p model.Provider) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msg := PingProviderMsg{ProviderID: providerID, Model: p.GetDisplayName()}
		if err := p.Ping(ctx); err != nil {
			msg.Err = fmt.Errorf("connection failed: %w", err)
			log.Warn().Err(err).Str("provider", providerID).Msg("provider ping failed")
			return msg
		}

		log.Debug().Str("provider", providerID).Msg("provider ping successful")
		return msg
	}
}
