package handler

import (
	"strings"

	"formflow/internal/form/answers"
	id "formflow/pkg/domain"
	dErrors "formflow/pkg/domain-errors"
)

// CreateRequest is the body for POST /applications.
type CreateRequest struct {
	Template string `json:"template"`
}

func (r *CreateRequest) Validate() error {
	r.Template = strings.TrimSpace(r.Template)
	if r.Template == "" {
		return dErrors.New(dErrors.CodeBadRequest, "template is required")
	}
	return nil
}

// ParsedTemplate returns the template id (populated by Validate).
func (r *CreateRequest) ParsedTemplate() id.TemplateID {
	return id.TemplateID(r.Template)
}

// UpdateAnswersRequest is the body for PUT /applications/{id}/answers.
type UpdateAnswersRequest struct {
	Answers answers.Map `json:"answers"`
}

func (r *UpdateAnswersRequest) Validate() error {
	if len(r.Answers) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "answers must not be empty")
	}
	return nil
}

// SubmitRequest is the body for PUT /applications/{id}/submit.
type SubmitRequest struct {
	Event string `json:"event"`
}

func (r *SubmitRequest) Validate() error {
	r.Event = strings.TrimSpace(r.Event)
	if r.Event == "" {
		return dErrors.New(dErrors.CodeBadRequest, "event is required")
	}
	return nil
}

// ExternalDataRequest is the body for POST /applications/{id}/external-data.
// An empty provider list runs every provider the template declares.
type ExternalDataRequest struct {
	Providers []string `json:"providers"`
}

func (r *ExternalDataRequest) Validate() error {
	for _, p := range r.Providers {
		if strings.TrimSpace(p) == "" {
			return dErrors.New(dErrors.CodeBadRequest, "provider ids must not be blank")
		}
	}
	return nil
}

// ClaimRequest is the body for POST /applications/{id}/assign.
type ClaimRequest struct {
	Token string `json:"token"`
}

func (r *ClaimRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token is required")
	}
	return nil
}
