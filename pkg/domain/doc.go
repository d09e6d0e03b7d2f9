// Package domain defines the core business types and interfaces for the
// LLM Safety Gateway.
//
// This package contains pure domain logic with ZERO external dependencies
// outside the Go standard library. All types in this package are:
//
// - Independent of infrastructure (no database, HTTP, classifier transport)
// - Technology-agnostic (no framework coupling)
// - Testable in isolation without mocks
//
// Other packages (classifier, storage, upstream, gateway, ...) implement the
// interfaces defined here and depend on these types. The dependency direction
// is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
