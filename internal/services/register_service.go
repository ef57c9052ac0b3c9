package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/providers/crm"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

// RegisterService creates CRM account and contact records for new users.
// Unlike quotes there is no degraded path: registration without a CRM is
// meaningless, so an unconfigured CRM surfaces as unavailable.
type RegisterService interface {
	Register(ctx context.Context, customerName, contactInfo string) (*crm.Registration, error)
}

type registerService struct {
	crm crm.Provider
	log *logrus.Entry
}

func NewRegisterService(provider crm.Provider, log *logrus.Entry) RegisterService {
	return &registerService{crm: provider, log: log}
}

func (s *registerService) Register(ctx context.Context, customerName, contactInfo string) (*crm.Registration, error) {
	const op = "RegisterService.Register"

	if strings.TrimSpace(customerName) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "customer_name is required", nil)
	}
	if strings.TrimSpace(contactInfo) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "contact_info is required", nil)
	}
	if !s.crm.Available() {
		return nil, utils.E(utils.CodeUnavailable, op, "crm is not configured", nil)
	}
	reg, err := s.crm.RegisterCustomer(ctx, customerName, contactInfo)
	if err != nil {
		return nil, err
	}
	return reg, nil
}
