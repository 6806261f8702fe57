package api

import "google.golang.org/grpc"

// Register adds the daemon services to s. A nil service is skipped.
func Register(s grpc.ServiceRegistrar, conv *ConversationService, ext *ExtractService, tmpl *TemplateService) {
	if conv != nil {
		s.RegisterService(&conversationServiceDesc, conv)
	}
	if ext != nil {
		s.RegisterService(&extractServiceDesc, ext)
	}
	if tmpl != nil {
		s.RegisterService(&templateServiceDesc, tmpl)
	}
}
