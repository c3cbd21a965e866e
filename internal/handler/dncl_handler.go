package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/dncl-gateway/internal/diagnostics"
	"github.com/kursadbilgin/dncl-gateway/internal/domain"
	"github.com/kursadbilgin/dncl-gateway/internal/service"
	"github.com/kursadbilgin/dncl-gateway/internal/transport"
)

const (
	messageValidationError  = "Validation error"
	messageUploadError      = "Erro"
	messageMissingTargets   = "É necessário informar credentials Cloud ou OnPrem"
	messageRemoved          = "Remoção concluída"
	messagePartiallyRemoved = "Remoção parcialmente concluída"
	messageInternalError    = "Erro interno"
)

type DNCLService interface {
	Upload(ctx context.Context, target domain.Target, listName string, number string, info service.RequestInfo) (domain.TargetOutcome, error)
	RemoveAll(ctx context.Context, cmd service.RemoveCommand, info service.RequestInfo) (*service.Result, error)
	Reject(ctx context.Context, environment string, info service.RequestInfo, cause any)
}

type DNCLHandler struct {
	service DNCLService
}

func NewDNCLHandler(service DNCLService) (*DNCLHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("dncl service is required")
	}
	return &DNCLHandler{service: service}, nil
}

func RegisterDNCLRoutes(router fiber.Router, service DNCLService) error {
	h, err := NewDNCLHandler(service)
	if err != nil {
		return err
	}

	cloud := h.Upload(domain.TargetCloud)
	onPrem := h.Upload(domain.TargetOnPrem)

	router.Put("/upload-dncl-cloud", cloud)
	router.Post("/upload-dncl-cloud", cloud)
	router.Put("/upload-dncl-on-prem", onPrem)
	router.Post("/upload-dncl-on-prem", onPrem)
	router.Delete("/remove-all", h.RemoveAll)

	return nil
}

type uploadRequest struct {
	DoNotCallListName *string `json:"doNotCallListName"`
	Number            *string `json:"number"`
}

type credentialsRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

type removeAllRequest struct {
	DoNotCallListName *string             `json:"doNotCallListName"`
	Number            *string             `json:"number"`
	Cloud             *credentialsRequest `json:"cloud"`
	OnPrem            *credentialsRequest `json:"onPrem"`
}

type validationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationResponse struct {
	Message string            `json:"message"`
	Issues  []validationIssue `json:"issues"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type removeAllResponse struct {
	Message string                         `json:"message"`
	Results map[string]service.OutcomeView `json:"results"`
	Success map[string]service.OutcomeView `json:"success,omitempty"`
	Failed  []failedTarget                 `json:"failed,omitempty"`
}

type failedTarget struct {
	Env    string `json:"env"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Upload adds the number to one target's list with server-held credentials.
func (h *DNCLHandler) Upload(target domain.Target) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info := requestInfo(c)

		var req uploadRequest
		if issues := decodeBody(c, &req); len(issues) > 0 {
			return h.reject(c, target.Label(), info, issues)
		}

		var issues []validationIssue
		issues = requireField(issues, "doNotCallListName", req.DoNotCallListName, "Nome da DNCL é obrigatório")
		issues = requireField(issues, "number", req.Number, "Número é obrigatório")
		if len(issues) > 0 {
			return h.reject(c, target.Label(), info, issues)
		}

		outcome, err := h.service.Upload(c.UserContext(), target, *req.DoNotCallListName, *req.Number, info)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return c.Status(fiber.StatusBadRequest).JSON(validationResponse{
					Message: messageValidationError,
					Issues:  []validationIssue{{Field: "body", Message: err.Error()}},
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(messageResponse{Message: messageUploadError})
		}

		switch outcome.Tag {
		case domain.OutcomeSuccess:
			return c.Status(fiber.StatusOK).JSON(messageResponse{Message: outcome.Reason})
		case domain.OutcomeDuplicate:
			return c.Status(fiber.StatusBadRequest).JSON(messageResponse{Message: outcome.Reason})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(messageResponse{Message: messageUploadError})
		}
	}
}

// RemoveAll removes the number from every target with supplied credentials.
func (h *DNCLHandler) RemoveAll(c *fiber.Ctx) error {
	info := requestInfo(c)

	var req removeAllRequest
	if issues := decodeBody(c, &req); len(issues) > 0 {
		return h.reject(c, diagnostics.EnvironmentUnified, info, issues)
	}

	var issues []validationIssue
	issues = requireField(issues, "doNotCallListName", req.DoNotCallListName, "Nome da DNCL é obrigatório")
	issues = requireField(issues, "number", req.Number, "Número é obrigatório")
	issues = requireCredentials(issues, "cloud", req.Cloud)
	issues = requireCredentials(issues, "onPrem", req.OnPrem)
	if len(issues) > 0 {
		return h.reject(c, diagnostics.EnvironmentUnified, info, issues)
	}

	result, err := h.service.RemoveAll(c.UserContext(), service.RemoveCommand{
		ListName:    *req.DoNotCallListName,
		PhoneNumber: *req.Number,
		Cloud:       toCredentials(req.Cloud),
		OnPrem:      toCredentials(req.OnPrem),
	}, info)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoTargetCredentials):
			return c.Status(fiber.StatusBadRequest).JSON(messageResponse{Message: messageMissingTargets})
		case errors.Is(err, domain.ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(validationResponse{
				Message: messageValidationError,
				Issues:  []validationIssue{{Field: "body", Message: err.Error()}},
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(messageResponse{Message: messageInternalError})
		}
	}

	results := service.ViewOutcomes(result.Outcomes)
	if result.Status == domain.AggregateOK {
		return c.Status(fiber.StatusOK).JSON(removeAllResponse{
			Message: messageRemoved,
			Results: results,
		})
	}

	success := make(map[string]service.OutcomeView)
	failed := make([]failedTarget, 0, len(result.Outcomes))
	for _, target := range domain.AllTargets {
		outcome, ok := result.Outcomes[target]
		if !ok {
			continue
		}
		if outcome.IsSuccess() {
			success[target.JSONKey()] = results[target.JSONKey()]
			continue
		}
		failed = append(failed, failedTarget{
			Env:    target.Label(),
			Status: outcome.Tag.String(),
			Error:  outcome.Reason,
			Detail: outcome.Detail,
		})
	}

	return c.Status(fiber.StatusMultiStatus).JSON(removeAllResponse{
		Message: messagePartiallyRemoved,
		Results: results,
		Success: success,
		Failed:  failed,
	})
}

func (h *DNCLHandler) reject(c *fiber.Ctx, environment string, info service.RequestInfo, issues []validationIssue) error {
	h.service.Reject(c.UserContext(), environment, info, issues)
	return c.Status(fiber.StatusBadRequest).JSON(validationResponse{
		Message: messageValidationError,
		Issues:  issues,
	})
}

// decodeBody treats an empty body as an empty object.
func decodeBody(c *fiber.Ctx, out any) []validationIssue {
	if len(bytes.TrimSpace(c.Body())) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return []validationIssue{{Field: "body", Message: "invalid request body"}}
	}
	return nil
}

func requireField(issues []validationIssue, field string, value *string, message string) []validationIssue {
	if value == nil || strings.TrimSpace(*value) == "" {
		return append(issues, validationIssue{Field: field, Message: message})
	}
	return issues
}

func requireCredentials(issues []validationIssue, field string, creds *credentialsRequest) []validationIssue {
	if creds == nil {
		return issues
	}
	issues = requireField(issues, field+".username", creds.Username, "Usuário é obrigatório")
	if creds.Password == nil || *creds.Password == "" {
		issues = append(issues, validationIssue{Field: field + ".password", Message: "Senha é obrigatória"})
	}
	return issues
}

func toCredentials(creds *credentialsRequest) *domain.Credentials {
	if creds == nil {
		return nil
	}
	return &domain.Credentials{
		Username: strings.TrimSpace(*creds.Username),
		Password: *creds.Password,
	}
}

func requestInfo(c *fiber.Ctx) service.RequestInfo {
	return service.RequestInfo{
		IP:      transport.ClientIP(c),
		Method:  c.Method(),
		URL:     c.OriginalURL(),
		Headers: transport.RequestHeaders(c),
		Body:    transport.RequestBody(c),
	}
}
