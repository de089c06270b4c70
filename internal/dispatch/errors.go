package dispatch

import (
	"errors"
	"fmt"

	"MailRamp/internal/models"
)

var (
	// ErrInvalidCampaign matches every ConfigError.
	ErrInvalidCampaign = errors.New("invalid campaign")

	ErrCampaignState = errors.New("campaign is not in a state that allows this")
)

// ConfigError rejects a campaign that cannot be started. Nothing is queued.
type ConfigError struct {
	CampaignID int64
	Field      string
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("campaign %d: %s: %s", e.CampaignID, e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidCampaign }

// StateError reports a lifecycle call made from the wrong campaign status.
type StateError struct {
	CampaignID int64
	Status     models.CampaignStatus
	Op         string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("campaign %d: cannot %s from %s", e.CampaignID, e.Op, e.Status)
}

func (e *StateError) Is(target error) bool { return target == ErrCampaignState }
