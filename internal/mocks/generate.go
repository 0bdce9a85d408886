// Package mocks provides mock implementations of the pipeline collaborator ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces
// in internal/core. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	extractor := mocks.NewMockExtractor(ctrl)
//	extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(&model.Extraction{Text: "policy"}, nil)
package mocks

// Generate mocks for the stage collaborators: Extractor, Analyzer, Renderer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=stages_mock.go github.com/target/policy-analysis-api/internal/core Extractor,Analyzer,Renderer

// Generate mocks for the side-channel collaborators: PersistenceBackend, ArtifactStore, CallbackSender
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=delivery_mock.go github.com/target/policy-analysis-api/internal/core PersistenceBackend,ArtifactStore,CallbackSender
