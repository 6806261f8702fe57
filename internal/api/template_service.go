package api

import (
	"context"

	"github.com/matheus3301/crmchat/internal/templates"
	"google.golang.org/grpc"
)

const templateServiceName = "crmchat.v1.TemplateService"

type ExportRequest struct{}

type ExportResponse struct {
	Document string `json:"document"`
}

type ImportRequest struct {
	Document string `json:"document"`
}

type ImportResponse struct {
	Fields []string `json:"fields"`
}

// TemplateService implements crmchat.v1.TemplateService.
type TemplateService struct {
	store *templates.Store
}

// NewTemplateService creates the template service.
func NewTemplateService(store *templates.Store) *TemplateService {
	return &TemplateService{store: store}
}

func (s *TemplateService) Export(_ context.Context, _ *ExportRequest) (*ExportResponse, error) {
	doc, err := s.store.Export()
	if err != nil {
		return nil, err
	}
	return &ExportResponse{Document: doc}, nil
}

func (s *TemplateService) Import(_ context.Context, req *ImportRequest) (*ImportResponse, error) {
	if err := s.store.Import(req.Document); err != nil {
		return nil, err
	}
	return &ImportResponse{Fields: s.store.Active().Fields()}, nil
}

var templateServiceDesc = grpc.ServiceDesc{
	ServiceName: templateServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(templateServiceName, "Export", (*TemplateService).Export),
		unary(templateServiceName, "Import", (*TemplateService).Import),
	},
}
