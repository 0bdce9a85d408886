// Package testutil provides testing utilities and helpers for the policy analysis service.
package testutil

import (
	"github.com/target/policy-analysis-api/internal/domain/model"
)

// AnalysisRequestBuilder provides a fluent interface for building AnalysisRequest values for testing.
type AnalysisRequestBuilder struct {
	req model.AnalysisRequest
}

// NewAnalysisRequest creates a new AnalysisRequestBuilder with sensible defaults.
func NewAnalysisRequest() *AnalysisRequestBuilder {
	return &AnalysisRequestBuilder{
		req: model.AnalysisRequest{
			PolicyID:       "pol-123",
			ClientID:       "client-456",
			ClientName:     "Acme Corp",
			ClientIndustry: "Technology",
			PolicyType:     "cyber",
			FileName:       "policy.pdf",
			FileURL:        "https://files.example.com/policy.pdf",
			TenantID:       model.DefaultTenantID,
		},
	}
}

// WithPolicyID sets the policy identifier.
func (b *AnalysisRequestBuilder) WithPolicyID(id string) *AnalysisRequestBuilder {
	b.req.PolicyID = id
	return b
}

// WithClient sets the client id and display name.
func (b *AnalysisRequestBuilder) WithClient(id, name string) *AnalysisRequestBuilder {
	b.req.ClientID = id
	b.req.ClientName = name
	return b
}

// WithFileURL sets the remote document URL and clears any local path.
func (b *AnalysisRequestBuilder) WithFileURL(u string) *AnalysisRequestBuilder {
	b.req.FileURL = u
	b.req.LocalFilePath = ""
	return b
}

// WithLocalFile sets a local upload path and clears the URL.
func (b *AnalysisRequestBuilder) WithLocalFile(p string) *AnalysisRequestBuilder {
	b.req.LocalFilePath = p
	b.req.FileURL = ""
	return b
}

// WithCallback sets the callback URL.
func (b *AnalysisRequestBuilder) WithCallback(u string) *AnalysisRequestBuilder {
	b.req.CallbackURL = u
	return b
}

// WithRenewal marks the request as a renewal.
func (b *AnalysisRequestBuilder) WithRenewal(renewal bool) *AnalysisRequestBuilder {
	b.req.Renewal = renewal
	return b
}

// Build returns the built request.
func (b *AnalysisRequestBuilder) Build() model.AnalysisRequest {
	return b.req
}
