package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/contracts/modules/contracts/domain/events"
)

// LogMessenger is the default delivery channel: it writes notices to the
// application log. Deployments with a real channel swap it out.
type LogMessenger struct {
	log *logrus.Logger
}

func NewLogMessenger(log *logrus.Logger) *LogMessenger {
	return &LogMessenger{log: log}
}

func (m *LogMessenger) SendApprovalNotice(ctx context.Context, userID uuid.UUID, ev *events.TransitionEventV1) error {
	m.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"contract_id":     ev.ContractID,
		"step_order":      ev.StepOrder,
		"contract_status": ev.ContractStatus,
	}).Info("notifier: approval notice")
	return nil
}

func (m *LogMessenger) SendRejectionNotice(ctx context.Context, userID uuid.UUID, ev *events.TransitionEventV1) error {
	m.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"contract_id": ev.ContractID,
		"step_order":  ev.StepOrder,
	}).Info("notifier: rejection notice")
	return nil
}
