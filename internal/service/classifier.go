package service

import (
	"strings"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/Rrens/med-analyzer/internal/llm"
	"github.com/Rrens/med-analyzer/internal/security"
)

// RouteKind names a classification outcome
type RouteKind string

const (
	RouteGreeting        RouteKind = "greeting"
	RouteRejected        RouteKind = "rejected"
	RouteDocumentSummary RouteKind = "document_summary"
	RouteFreeformChat    RouteKind = "freeform_chat"
)

// Route is the result of classifying a user turn. The concrete types are
// GreetingRoute, RejectedRoute, DocumentSummaryRoute and FreeformChatRoute.
type Route interface {
	Kind() RouteKind
	route()
}

// GreetingRoute answers with a canned reply without calling a backend
type GreetingRoute struct {
	Reply string
}

// RejectedRoute answers with the rejection reason without calling a backend
type RejectedRoute struct {
	Reason string
}

// DocumentSummaryRoute summarizes attached document text for an audience
type DocumentSummaryRoute struct {
	Audience     domain.Audience
	DocumentText string
}

// FreeformChatRoute runs a general chat completion
type FreeformChatRoute struct {
	Images       []llm.Image
	DocumentText string
}

func (GreetingRoute) Kind() RouteKind        { return RouteGreeting }
func (RejectedRoute) Kind() RouteKind        { return RouteRejected }
func (DocumentSummaryRoute) Kind() RouteKind { return RouteDocumentSummary }
func (FreeformChatRoute) Kind() RouteKind    { return RouteFreeformChat }

func (GreetingRoute) route()        {}
func (RejectedRoute) route()        {}
func (DocumentSummaryRoute) route() {}
func (FreeformChatRoute) route()    {}

// ClassifyInput is everything the classifier looks at
type ClassifyInput struct {
	Text          string
	HasAttachment bool
	DocumentText  string
	Images        []llm.Image
	// Audience is empty when the client sent no hint
	Audience string
}

// Classifier picks the route for a user turn
type Classifier struct {
	guardrail *security.Guardrail
}

// NewClassifier creates a classifier over guardrail
func NewClassifier(guardrail *security.Guardrail) *Classifier {
	return &Classifier{guardrail: guardrail}
}

// Classify applies the routes in fixed precedence: greeting, rejection,
// document summary, freeform chat. Greetings are never length-checked and
// nothing rejected ever reaches a backend.
func (c *Classifier) Classify(in ClassifyInput) Route {
	if !in.HasAttachment && c.guardrail.IsGreeting(in.Text) {
		return GreetingRoute{Reply: llm.GreetingReply}
	}

	if ok, reason := c.guardrail.ValidateInput(in.Text); !ok {
		// An attachment carries the substance, so a terse caption is fine.
		if !(in.HasAttachment && reason == security.ReasonTooShort) {
			return RejectedRoute{Reason: reason}
		}
	}

	if strings.TrimSpace(in.DocumentText) != "" && in.Audience != "" {
		if audience, ok := domain.ParseAudience(in.Audience); ok {
			return DocumentSummaryRoute{Audience: audience, DocumentText: in.DocumentText}
		}
	}

	return FreeformChatRoute{Images: in.Images, DocumentText: in.DocumentText}
}
